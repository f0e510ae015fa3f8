package realtime

import (
	"context"
	"sync"

	"livechat/internal/domain"
)

// Handler recibe cada mensaje insertado en la sesion suscrita. Puede ser
// invocado desde otra goroutine; el orden de llegada es solo una pista de
// baja latencia, el orden de render sale del Message Log.
type Handler func(domain.Message)

// Subscription es el unico primitivo de cancelacion del canal.
type Subscription interface {
	// Unsubscribe detiene la entrega y libera recursos. Idempotente.
	Unsubscribe()
}

// Broker es el canal pub/sub por sesion. Cada Publish llega a todos los
// suscriptores vivos de esa sesion, incluido el que origino el insert.
// Entrega at-least-once; tras una caida no hay replay, el suscriptor debe
// re-hidratar con el Message Log antes de volver a suscribirse.
type Broker interface {
	Publish(ctx context.Context, msg domain.Message) error
	Subscribe(ctx context.Context, sessionID string, fn Handler) (Subscription, error)
}

// MemoryBroker implementa el canal dentro del proceso. Sirve para despliegues
// de proceso unico y para tests; el contrato es el mismo que el de Redis.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*memorySubscription]Handler
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[*memorySubscription]Handler),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, msg domain.Message) error {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[msg.SessionID]))
	for _, fn := range b.subs[msg.SessionID] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	// Fan-out fuera del lock: un handler puede publicar a su vez.
	for _, fn := range handlers {
		fn(msg)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, sessionID string, fn Handler) (Subscription, error) {
	if fn == nil {
		return nil, domain.ErrChannel
	}
	sub := &memorySubscription{broker: b, sessionID: sessionID}
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*memorySubscription]Handler)
	}
	b.subs[sessionID][sub] = fn
	b.mu.Unlock()
	return sub, nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers, ok := b.subs[sub.sessionID]
	if !ok {
		return
	}
	delete(handlers, sub)
	if len(handlers) == 0 {
		delete(b.subs, sub.sessionID)
	}
}

type memorySubscription struct {
	broker    *MemoryBroker
	sessionID string
	once      sync.Once
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.remove(s)
	})
}

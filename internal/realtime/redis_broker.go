package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"livechat/internal/domain"
)

// Prefijo de topico por sesion, convencion heredada del esquema original.
const topicPrefix = "chat_"

// RedisBroker implementa Broker sobre Redis pub/sub para que widget y
// consola compartan canal entre procesos.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, logger: logger}
}

func topic(sessionID string) string {
	return topicPrefix + sessionID
}

func (b *RedisBroker) Publish(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", domain.ErrChannel, err)
	}
	if err := b.client.Publish(ctx, topic(msg.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", domain.ErrChannel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string, fn Handler) (Subscription, error) {
	if fn == nil {
		return nil, domain.ErrChannel
	}

	pubsub := b.client.Subscribe(ctx, topic(sessionID))
	// Receive confirma la suscripcion antes de reportar exito; sin esto un
	// Publish inmediato podria perderse en silencio.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrChannel, sessionID, err)
	}

	sub := &redisSubscription{pubsub: pubsub}
	go b.drain(pubsub, sessionID, fn)
	return sub, nil
}

// drain consume el canal hasta que la suscripcion se cierra. Un payload que
// no decodifica se descarta con log: el historial sigue siendo recuperable
// por re-hidratacion.
func (b *RedisBroker) drain(pubsub *redis.PubSub, sessionID string, fn Handler) {
	for raw := range pubsub.Channel() {
		var msg domain.Message
		if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
			b.logger.Warn("drop undecodable channel payload",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			continue
		}
		fn(msg)
	}
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
}

func (s *redisSubscription) Unsubscribe() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
	})
}

package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"livechat/internal/domain"
	"livechat/internal/realtime"
	"livechat/internal/service"
)

var ErrNoSelection = errors.New("no session selected")

// Controller maneja el lado agente: la lista de sesiones activas, un unico
// foco seleccionado y su unica suscripcion realtime viva.
type Controller struct {
	logger    *zap.Logger
	sessions  *service.SessionService
	messages  *service.MessageService
	broker    realtime.Broker
	agentName string

	mu       sync.Mutex
	active   []domain.Session
	selected string
	msgs     []domain.Message
	seen     map[string]bool
	sub      realtime.Subscription
	onInsert func(domain.Message)
}

func NewController(
	logger *zap.Logger,
	sessions *service.SessionService,
	messages *service.MessageService,
	broker realtime.Broker,
	agentName string,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if agentName == "" {
		agentName = "Support Agent"
	}
	return &Controller{
		logger:    logger,
		sessions:  sessions,
		messages:  messages,
		broker:    broker,
		agentName: agentName,
		seen:      make(map[string]bool),
	}
}

// SetOnInsert registra el callback de UI para mensajes de la sesion en foco.
func (c *Controller) SetOnInsert(fn func(domain.Message)) {
	c.mu.Lock()
	c.onInsert = fn
	c.mu.Unlock()
}

// Load refresca la lista de sesiones activas. Se llama al abrir la consola;
// la lista no se actualiza sola.
func (c *Controller) Load(ctx context.Context) error {
	sessions, err := c.sessions.ListActive(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.active = sessions
	c.mu.Unlock()
	return nil
}

// Select enfoca una sesion: primero desarma la suscripcion anterior (solo
// puede haber una viva, para no duplicar entregas), luego hidrata el
// historial y abre la nueva.
func (c *Controller) Select(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	prev := c.sub
	c.sub = nil
	c.selected = ""
	c.msgs = nil
	c.seen = make(map[string]bool)
	c.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}

	history, err := c.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	// El foco queda fijado antes de abrir la suscripcion para que ingest no
	// descarte una entrega que llegue durante la apertura.
	c.mu.Lock()
	c.selected = sessionID
	c.msgs = c.msgs[:0]
	for _, msg := range history {
		if c.seen[msg.ID] {
			continue
		}
		c.seen[msg.ID] = true
		c.msgs = append(c.msgs, msg)
	}
	sort.SliceStable(c.msgs, func(i, j int) bool {
		return c.msgs[i].Before(c.msgs[j])
	})
	c.mu.Unlock()

	sub, err := c.broker.Subscribe(ctx, sessionID, c.ingest)
	if err != nil {
		c.mu.Lock()
		c.selected = ""
		c.mu.Unlock()
		return fmt.Errorf("%w: console subscribe: %v", domain.ErrChannel, err)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

// Send agrega un turno del agente a la sesion en foco.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	sessionID := c.selected
	c.mu.Unlock()
	if sessionID == "" {
		return ErrNoSelection
	}

	msg, err := c.messages.Append(ctx, sessionID, text, domain.SenderAdmin, c.agentName)
	if err != nil {
		return err
	}
	c.ingest(msg)
	return nil
}

// CloseSelected cierra la sesion en foco: la marca cerrada en el registro,
// libera la suscripcion y la quita de la lista local sin recargar todo.
func (c *Controller) CloseSelected(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.selected
	c.mu.Unlock()
	if sessionID == "" {
		return ErrNoSelection
	}

	if err := c.sessions.Close(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.selected = ""
	c.msgs = nil
	c.seen = make(map[string]bool)
	filtered := c.active[:0]
	for _, s := range c.active {
		if s.ID != sessionID {
			filtered = append(filtered, s)
		}
	}
	c.active = filtered
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	return nil
}

// Stop libera la suscripcion viva, si la hay.
func (c *Controller) Stop() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Sessions devuelve una copia de la lista activa local.
func (c *Controller) Sessions() []domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Session, len(c.active))
	copy(out, c.active)
	return out
}

// Selected devuelve el id de la sesion en foco, o vacio.
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Messages devuelve una copia del historial en foco en orden de render.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *Controller) ingest(msg domain.Message) {
	c.mu.Lock()
	if msg.SessionID != c.selected || c.seen[msg.ID] {
		c.mu.Unlock()
		return
	}
	c.seen[msg.ID] = true
	c.msgs = append(c.msgs, msg)
	sort.SliceStable(c.msgs, func(i, j int) bool {
		return c.msgs[i].Before(c.msgs[j])
	})
	fn := c.onInsert
	c.mu.Unlock()

	if fn != nil {
		fn(msg)
	}
}

package widget

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

// Estados del agente visitante. No existe transicion de fin iniciada por el
// visitante: solo la consola cierra sesiones, y el widget nunca borra su
// handle local por cuenta propia.
type State string

const (
	StateCollectingIdentity State = "collecting_identity"
	StateActive             State = "active"
)

const anonymousName = "Anonymous"

var (
	ErrNotActive     = errors.New("no active session")
	ErrAlreadyActive = errors.New("session already active")
)

// Agent es la maquina de estados del lado visitante: crea o retoma la
// sesion, persiste el handle local y mantiene el loop enviar/recibir.
type Agent struct {
	logger   *zap.Logger
	sessions *service.SessionService
	messages *service.MessageService
	broker   realtime.Broker
	handles  HandleStore

	mu          sync.Mutex
	state       State
	sessionID   string
	visitorName string
	draft       string
	msgs        []domain.Message
	seen        map[string]bool
	sub         realtime.Subscription
	onInsert    func(domain.Message)
}

func NewAgent(
	logger *zap.Logger,
	sessions *service.SessionService,
	messages *service.MessageService,
	broker realtime.Broker,
	handles HandleStore,
) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		logger:   logger,
		sessions: sessions,
		messages: messages,
		broker:   broker,
		handles:  handles,
		state:    StateCollectingIdentity,
		seen:     make(map[string]bool),
	}
}

// SetOnInsert registra el callback de UI para cada mensaje nuevo. Puede ser
// invocado desde la goroutine del canal.
func (a *Agent) SetOnInsert(fn func(domain.Message)) {
	a.mu.Lock()
	a.onInsert = fn
	a.mu.Unlock()
}

// Start carga el handle local. Si existe, salta la captura de identidad:
// hidrata el historial y abre la suscripcion. Un fallo parcial deja al
// agente en Active degradado al ultimo set hidratado; Refresh lo reconcilia.
func (a *Agent) Start(ctx context.Context) error {
	id, ok, err := a.handles.Load()
	if err != nil {
		a.logger.Warn("load session handle failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	a.mu.Lock()
	a.sessionID = id
	a.state = StateActive
	a.mu.Unlock()

	if session, err := a.sessions.GetByID(ctx, id); err == nil {
		a.mu.Lock()
		a.visitorName = session.VisitorName
		a.mu.Unlock()
	}

	if err := a.hydrate(ctx, id); err != nil {
		return err
	}
	return a.subscribe(ctx, id)
}

// Begin crea la sesion con la identidad recien capturada y pasa a Active.
// Si la validacion o el store fallan, los campos quedan en manos del caller
// para reintentar.
func (a *Agent) Begin(ctx context.Context, name, email string, registered bool) error {
	a.mu.Lock()
	if a.state != StateCollectingIdentity {
		a.mu.Unlock()
		return ErrAlreadyActive
	}
	a.mu.Unlock()

	session, err := a.sessions.Create(ctx, service.CreateSessionInput{
		VisitorName:  name,
		VisitorEmail: email,
		IsRegistered: registered,
	})
	if err != nil {
		return err
	}

	if err := a.handles.Save(session.ID); err != nil {
		// La sesion sirve durante esta corrida; solo se pierde el resume.
		a.logger.Warn("persist session handle failed", zap.Error(err))
	}

	a.mu.Lock()
	a.sessionID = session.ID
	a.visitorName = session.VisitorName
	a.state = StateActive
	a.mu.Unlock()

	return a.subscribe(ctx, session.ID)
}

// Send agrega un turno del visitante. Si el append falla, el texto queda en
// Draft para que la UI lo restaure en lugar de perderlo; un envio a una
// sesion ya cerrada surge como fallo de store, no como crash, y el agente
// permanece en Active.
func (a *Agent) Send(ctx context.Context, text string) error {
	a.mu.Lock()
	if a.state != StateActive {
		a.mu.Unlock()
		return ErrNotActive
	}
	sessionID := a.sessionID
	name := a.visitorName
	a.mu.Unlock()

	if name == "" {
		name = anonymousName
	}

	msg, err := a.messages.Append(ctx, sessionID, text, domain.SenderVisitor, name)
	if err != nil {
		a.mu.Lock()
		a.draft = text
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	a.draft = ""
	a.mu.Unlock()

	// El canal tambien entregara este insert; ingest dedup por id hace que
	// cualquiera de los dos ordenes de llegada sea equivalente.
	a.ingest(msg)
	return nil
}

// Refresh es la reconciliacion tras una caida de canal: cierra la
// suscripcion, re-hidrata desde el log y recien entonces vuelve a escuchar.
func (a *Agent) Refresh(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateActive {
		a.mu.Unlock()
		return ErrNotActive
	}
	sessionID := a.sessionID
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if err := a.hydrate(ctx, sessionID); err != nil {
		return err
	}
	return a.subscribe(ctx, sessionID)
}

// Stop cierra la suscripcion. El handle local queda intacto.
func (a *Agent) Stop() {
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Draft devuelve el texto del ultimo envio fallido, listo para reintentar.
func (a *Agent) Draft() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.draft
}

// Messages devuelve una copia del historial en orden de render.
func (a *Agent) Messages() []domain.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Message, len(a.msgs))
	copy(out, a.msgs)
	return out
}

func (a *Agent) hydrate(ctx context.Context, sessionID string) error {
	history, err := a.messages.ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.msgs = a.msgs[:0]
	a.seen = make(map[string]bool)
	for _, msg := range history {
		a.seen[msg.ID] = true
		a.msgs = append(a.msgs, msg)
	}
	a.mu.Unlock()
	return nil
}

func (a *Agent) subscribe(ctx context.Context, sessionID string) error {
	sub, err := a.broker.Subscribe(ctx, sessionID, a.ingest)
	if err != nil {
		return fmt.Errorf("%w: widget subscribe: %v", domain.ErrChannel, err)
	}
	a.mu.Lock()
	a.sub = sub
	a.mu.Unlock()
	return nil
}

// ingest incorpora un mensaje (propio o del agente) manteniendo el orden
// autoritativo (created_at, seq) y descartando duplicados por id.
func (a *Agent) ingest(msg domain.Message) {
	a.mu.Lock()
	if a.seen[msg.ID] {
		a.mu.Unlock()
		return
	}
	a.seen[msg.ID] = true
	a.msgs = append(a.msgs, msg)
	sort.SliceStable(a.msgs, func(i, j int) bool {
		return a.msgs[i].Before(a.msgs[j])
	})
	fn := a.onInsert
	a.mu.Unlock()

	if fn != nil {
		fn(msg)
	}
}

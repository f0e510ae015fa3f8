package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"livechat/internal/domain"
	"livechat/internal/realtime"
	"livechat/internal/service"
	"livechat/internal/widget"
)

// Fakes del store compartido, mismos contratos que los repos Pg.
type fakeState struct {
	mu       sync.Mutex
	base     time.Time
	seq      int64
	sessions []domain.Session
	msgs     []domain.Message
}

func newFakeState() *fakeState {
	return &fakeState{base: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

type fakeSessionRepo struct{ st *fakeState }

func (r *fakeSessionRepo) Create(_ context.Context, s domain.Session) (domain.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.seq++
	s.CreatedAt = r.st.base.Add(time.Duration(r.st.seq) * time.Second)
	// Prepend: la lista activa se mantiene de mas reciente a mas vieja.
	r.st.sessions = append([]domain.Session{s}, r.st.sessions...)
	return s, nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (domain.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (r *fakeSessionRepo) ListActive(_ context.Context) ([]domain.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.Session
	for _, s := range r.st.sessions {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Close(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for i, s := range r.st.sessions {
		if s.ID == id && s.IsActive() {
			r.st.sessions[i].Status = domain.SessionStatusClosed
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

type fakeMessageRepo struct{ st *fakeState }

func (r *fakeMessageRepo) Create(_ context.Context, msg domain.Message) (domain.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	active := false
	for _, s := range r.st.sessions {
		if s.ID == msg.SessionID && s.IsActive() {
			active = true
			break
		}
	}
	if !active {
		return domain.Message{}, domain.ErrSessionNotFound
	}
	r.st.seq++
	msg.Seq = r.st.seq
	msg.CreatedAt = r.st.base.Add(time.Duration(r.st.seq) * time.Millisecond)
	r.st.msgs = append(r.st.msgs, msg)
	return msg, nil
}

func (r *fakeMessageRepo) ListBySessionID(_ context.Context, sessionID string) ([]domain.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.Message
	for _, m := range r.st.msgs {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

// countingBroker envuelve al broker en memoria contando suscripciones vivas.
type countingBroker struct {
	realtime.Broker
	mu   sync.Mutex
	live int
}

func (b *countingBroker) Subscribe(ctx context.Context, sessionID string, fn realtime.Handler) (realtime.Subscription, error) {
	sub, err := b.Broker.Subscribe(ctx, sessionID, fn)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.live++
	b.mu.Unlock()
	return &countingSubscription{broker: b, inner: sub}, nil
}

func (b *countingBroker) liveSubs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

type countingSubscription struct {
	broker *countingBroker
	inner  realtime.Subscription
	once   sync.Once
}

func (s *countingSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.inner.Unsubscribe()
		s.broker.mu.Lock()
		s.broker.live--
		s.broker.mu.Unlock()
	})
}

type consoleFixture struct {
	state      *fakeState
	broker     *countingBroker
	sessionSvc *service.SessionService
	messageSvc *service.MessageService
	controller *Controller
}

func newConsoleFixture() *consoleFixture {
	state := newFakeState()
	broker := &countingBroker{Broker: realtime.NewMemoryBroker()}
	sessionSvc := service.NewSessionService(&fakeSessionRepo{st: state})
	messageSvc := service.NewMessageService(zap.NewNop(), &fakeMessageRepo{st: state}, broker)
	return &consoleFixture{
		state:      state,
		broker:     broker,
		sessionSvc: sessionSvc,
		messageSvc: messageSvc,
		controller: NewController(zap.NewNop(), sessionSvc, messageSvc, broker, "Support Agent"),
	}
}

func (fx *consoleFixture) newSession(t *testing.T, name, email string) domain.Session {
	t.Helper()
	session, err := fx.sessionSvc.Create(context.Background(), service.CreateSessionInput{
		VisitorName:  name,
		VisitorEmail: email,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestControllerLoad_NewestFirst(t *testing.T) {
	fx := newConsoleFixture()
	fx.newSession(t, "Ada", "ada@example.com")
	second := fx.newSession(t, "Grace", "grace@example.com")

	if err := fx.controller.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	sessions := fx.controller.Sessions()
	if len(sessions) != 2 || sessions[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", sessions)
	}
}

func TestControllerSelect_SingleLiveSubscription(t *testing.T) {
	fx := newConsoleFixture()
	first := fx.newSession(t, "Ada", "ada@example.com")
	second := fx.newSession(t, "Grace", "grace@example.com")

	if err := fx.controller.Select(context.Background(), first.ID); err != nil {
		t.Fatalf("select first: %v", err)
	}
	if err := fx.controller.Select(context.Background(), second.ID); err != nil {
		t.Fatalf("select second: %v", err)
	}
	defer fx.controller.Stop()

	if fx.broker.liveSubs() != 1 {
		t.Fatalf("expected previous subscription torn down, %d live", fx.broker.liveSubs())
	}

	// Un mensaje en la sesion anterior ya no debe entrar al foco.
	if _, err := fx.messageSvc.Append(context.Background(), first.ID, "stale", domain.SenderVisitor, "Ada"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msgs := fx.controller.Messages(); len(msgs) != 0 {
		t.Fatalf("expected no delivery from deselected session, got %+v", msgs)
	}
	if fx.controller.Selected() != second.ID {
		t.Fatalf("expected focus on %s, got %s", second.ID, fx.controller.Selected())
	}
}

func TestControllerSelect_HydratesHistoryInOrder(t *testing.T) {
	fx := newConsoleFixture()
	session := fx.newSession(t, "Ada", "ada@example.com")
	for _, body := range []string{"one", "two", "three"} {
		if _, err := fx.messageSvc.Append(context.Background(), session.ID, body, domain.SenderVisitor, "Ada"); err != nil {
			t.Fatalf("append %q: %v", body, err)
		}
	}

	if err := fx.controller.Select(context.Background(), session.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	defer fx.controller.Stop()

	msgs := fx.controller.Messages()
	if len(msgs) != 3 || msgs[0].Body != "one" || msgs[2].Body != "three" {
		t.Fatalf("expected hydrated history in store order, got %+v", msgs)
	}
}

func TestControllerSend_UsesAdminRole(t *testing.T) {
	fx := newConsoleFixture()
	session := fx.newSession(t, "Ada", "ada@example.com")
	if err := fx.controller.Select(context.Background(), session.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	defer fx.controller.Stop()

	if err := fx.controller.Send(context.Background(), "Hi Ada"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := fx.controller.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].Sender != domain.SenderAdmin || msgs[0].SenderName != "Support Agent" {
		t.Fatalf("expected admin sender, got %+v", msgs[0])
	}
}

func TestControllerSend_WithoutSelection(t *testing.T) {
	fx := newConsoleFixture()
	if err := fx.controller.Send(context.Background(), "hello"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
}

func TestControllerCloseSelected(t *testing.T) {
	fx := newConsoleFixture()
	keep := fx.newSession(t, "Grace", "grace@example.com")
	target := fx.newSession(t, "Ada", "ada@example.com")

	if err := fx.controller.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := fx.controller.Select(context.Background(), target.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := fx.controller.CloseSelected(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if fx.broker.liveSubs() != 0 {
		t.Fatalf("expected subscription released, %d live", fx.broker.liveSubs())
	}
	if fx.controller.Selected() != "" {
		t.Fatalf("expected selection cleared, got %q", fx.controller.Selected())
	}
	sessions := fx.controller.Sessions()
	if len(sessions) != 1 || sessions[0].ID != keep.ID {
		t.Fatalf("expected closed session removed from local list, got %+v", sessions)
	}

	// El registro tambien dejo de listarla.
	active, err := fx.sessionSvc.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != keep.ID {
		t.Fatalf("expected only the remaining session active, got %+v", active)
	}
}

// Escenario completo: Ada abre el chat, la consola la atiende y el widget
// recibe la respuesta por su suscripcion, sin re-consultar historial.
func TestVisitorAdminConversationScenario(t *testing.T) {
	fx := newConsoleFixture()

	agent := widget.NewAgent(
		zap.NewNop(),
		fx.sessionSvc,
		fx.messageSvc,
		fx.broker,
		widget.NewMemoryHandleStore(),
	)
	if err := agent.Begin(context.Background(), "Ada", "ada@example.com", false); err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer agent.Stop()

	session, err := fx.sessionSvc.GetByID(context.Background(), agent.SessionID())
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Status != domain.SessionStatusActive {
		t.Fatalf("expected active session, got %q", session.Status)
	}

	if err := agent.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("visitor send: %v", err)
	}

	if err := fx.controller.Load(context.Background()); err != nil {
		t.Fatalf("console load: %v", err)
	}
	if err := fx.controller.Select(context.Background(), session.ID); err != nil {
		t.Fatalf("console select: %v", err)
	}
	defer fx.controller.Stop()

	hydrated := fx.controller.Messages()
	if len(hydrated) != 1 || hydrated[0].Body != "Hello" || hydrated[0].Sender != domain.SenderVisitor {
		t.Fatalf("expected exactly the visitor greeting, got %+v", hydrated)
	}

	if err := fx.controller.Send(context.Background(), "Hi Ada"); err != nil {
		t.Fatalf("console send: %v", err)
	}

	visitorView := agent.Messages()
	if len(visitorView) != 2 {
		t.Fatalf("expected visitor to hold both turns, got %+v", visitorView)
	}
	reply := visitorView[1]
	if reply.Sender != domain.SenderAdmin || reply.Body != "Hi Ada" {
		t.Fatalf("expected admin reply via subscription, got %+v", reply)
	}

	// Cierre: desaparece de la lista activa, el widget sigue Active y el
	// siguiente envio falla como store failure, no como crash.
	if err := fx.controller.CloseSelected(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	active, err := fx.sessionSvc.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active sessions, got %+v", active)
	}
	if agent.State() != widget.StateActive {
		t.Fatalf("widget must remain Active, got %s", agent.State())
	}
	if err := agent.Send(context.Background(), "anyone?"); !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore on send to closed session, got %v", err)
	}
}

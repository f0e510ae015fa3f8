package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"livechat/internal/domain"
	"livechat/internal/repository"
)

// SessionService encapsula las reglas del registro de sesiones.
type SessionService struct {
	repo repository.SessionRepository
}

var ErrSessionServiceNotConfigured = errors.New("session service not configured")

func NewSessionService(repo repository.SessionRepository) *SessionService {
	return &SessionService{repo: repo}
}

// CreateSessionInput son los datos de identidad que el visitante envia una
// sola vez, al abrir la conversacion.
type CreateSessionInput struct {
	VisitorName  string
	VisitorEmail string
	IsRegistered bool
}

// Create valida la identidad del visitante y persiste una sesion activa.
// Ningun fallo de validacion llega al store.
func (s *SessionService) Create(ctx context.Context, input CreateSessionInput) (domain.Session, error) {
	if s == nil || s.repo == nil {
		return domain.Session{}, ErrSessionServiceNotConfigured
	}

	name := strings.TrimSpace(input.VisitorName)
	email := strings.TrimSpace(input.VisitorEmail)
	if name == "" {
		return domain.Session{}, fmt.Errorf("%w: visitor name required", domain.ErrValidation)
	}
	if email == "" {
		return domain.Session{}, fmt.Errorf("%w: visitor email required", domain.ErrValidation)
	}
	if !looksLikeEmail(email) {
		return domain.Session{}, fmt.Errorf("%w: visitor email invalid", domain.ErrValidation)
	}

	session := domain.Session{
		ID:           uuid.NewString(),
		VisitorName:  name,
		VisitorEmail: email,
		IsRegistered: input.IsRegistered,
		Status:       domain.SessionStatusActive,
	}

	created, err := s.repo.Create(ctx, session)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: create session: %v", domain.ErrStore, err)
	}
	return created, nil
}

// ListActive devuelve las sesiones abiertas, la mas reciente primero.
func (s *SessionService) ListActive(ctx context.Context) ([]domain.Session, error) {
	if s == nil || s.repo == nil {
		return nil, ErrSessionServiceNotConfigured
	}
	sessions, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", domain.ErrStore, err)
	}
	return sessions, nil
}

// GetByID busca una sesion por id, abierta o cerrada.
func (s *SessionService) GetByID(ctx context.Context, id string) (domain.Session, error) {
	if s == nil || s.repo == nil {
		return domain.Session{}, ErrSessionServiceNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Session{}, fmt.Errorf("%w: session id required", domain.ErrValidation)
	}
	session, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Session{}, err
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: get session: %v", domain.ErrStore, err)
	}
	return session, nil
}

// Close transiciona la sesion de active a closed. La transicion inversa no
// existe; cerrar una sesion ya cerrada devuelve ErrSessionNotFound y los
// llamadores lo tratan como benigno.
func (s *SessionService) Close(ctx context.Context, id string) error {
	if s == nil || s.repo == nil {
		return ErrSessionServiceNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: session id required", domain.ErrValidation)
	}
	err := s.repo.Close(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: close session: %v", domain.ErrStore, err)
	}
	return nil
}

// looksLikeEmail es un chequeo minimo de forma; la validacion estricta vive
// en el binding del borde HTTP.
func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}

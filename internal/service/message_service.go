package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"livechat/internal/domain"
	"livechat/internal/realtime"
	"livechat/internal/repository"
)

// MessageService encapsula el log de mensajes y su fan-out realtime.
type MessageService struct {
	logger *zap.Logger
	repo   repository.MessageRepository
	broker realtime.Broker
}

var ErrMessageServiceNotConfigured = errors.New("message service not configured")

func NewMessageService(logger *zap.Logger, repo repository.MessageRepository, broker realtime.Broker) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{logger: logger, repo: repo, broker: broker}
}

// Append valida, persiste y publica un turno de chat. El timestamp y el seq
// vuelven asignados por el store: el orden global no depende del reloj del
// cliente. El insert es durable antes de publicar; si el publish falla el
// mensaje igual se reporta como enviado, los suscriptores lo veran en su
// proxima hidratacion.
func (s *MessageService) Append(ctx context.Context, sessionID, body, sender, senderName string) (domain.Message, error) {
	if s == nil || s.repo == nil {
		return domain.Message{}, ErrMessageServiceNotConfigured
	}

	sessionID = strings.TrimSpace(sessionID)
	body = strings.TrimSpace(body)
	sender = strings.TrimSpace(sender)
	senderName = strings.TrimSpace(senderName)

	if sessionID == "" {
		return domain.Message{}, fmt.Errorf("%w: session id required", domain.ErrValidation)
	}
	if body == "" {
		return domain.Message{}, fmt.Errorf("%w: message body required", domain.ErrValidation)
	}
	if !domain.ValidSender(sender) {
		return domain.Message{}, fmt.Errorf("%w: unknown sender role %q", domain.ErrValidation, sender)
	}

	msg := domain.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Body:       body,
		Sender:     sender,
		SenderName: senderName,
	}

	created, err := s.repo.Create(ctx, msg)
	if errors.Is(err, domain.ErrSessionNotFound) {
		// Conserva ambas identidades: clase de store para la UI de envio y
		// causa concreta para quien distingue sesion cerrada.
		return domain.Message{}, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: append message: %v", domain.ErrStore, err)
	}

	if s.broker != nil {
		if err := s.broker.Publish(ctx, created); err != nil {
			s.logger.Warn("publish after durable append failed",
				zap.String("session_id", created.SessionID),
				zap.String("message_id", created.ID),
				zap.Error(err),
			)
		}
	}

	return created, nil
}

// ListBySession devuelve el historial en el orden del store. Se usa para
// hidratar al abrir o reconectar una suscripcion, nunca como polling.
func (s *MessageService) ListBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if s == nil || s.repo == nil {
		return nil, ErrMessageServiceNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []domain.Message{}, nil
	}
	messages, err := s.repo.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", domain.ErrStore, err)
	}
	return messages, nil
}

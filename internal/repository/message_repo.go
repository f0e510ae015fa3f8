package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"livechat/internal/domain"
)

type MessageRepository interface {
	Create(ctx context.Context, message domain.Message) (domain.Message, error)
	ListBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

const pgFKViolation = "23503"

// Create inserta el mensaje solo si la sesion existe y sigue activa; el
// INSERT..SELECT predicado es la regla de negocio del store, no del cliente.
// created_at y seq vuelven asignados por el store para que dos remitentes en
// carrera produzcan igualmente un orden global unico.
func (r *PgMessageRepository) Create(ctx context.Context, message domain.Message) (domain.Message, error) {
	const query = `
		INSERT INTO chat_messages (id, session_id, body, sender, sender_name)
		SELECT $1, s.id, $2, $3, $4
		FROM chat_sessions s
		WHERE s.id = $5 AND s.status = $6
		RETURNING seq, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		message.ID,
		message.Body,
		message.Sender,
		nullable(message.SenderName),
		message.SessionID,
		domain.SessionStatusActive,
	).Scan(&message.Seq, &message.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, domain.ErrSessionNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgFKViolation {
		return domain.Message{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// ListBySessionID devuelve el historial completo en el orden autoritativo del
// store: created_at ascendente, empates rotos por seq (orden de insercion).
func (r *PgMessageRepository) ListBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error) {
	const query = `
		SELECT id, session_id, body, sender, sender_name, seq, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var senderName *string

		err = rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Body,
			&msg.Sender,
			&senderName,
			&msg.Seq,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if senderName != nil {
			msg.SenderName = *senderName
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

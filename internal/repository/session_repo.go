package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livechat/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) (domain.Session, error)
	GetByID(ctx context.Context, id string) (domain.Session, error)
	ListActive(ctx context.Context) ([]domain.Session, error)
	Close(ctx context.Context, id string) error
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

// Create inserta la sesion y devuelve la fila con el created_at que asigno
// el store (DEFAULT now()), no el reloj del cliente.
func (r *PgSessionRepository) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	const query = `
		INSERT INTO chat_sessions (id, visitor_name, visitor_email, is_registered, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		session.ID,
		session.VisitorName,
		session.VisitorEmail,
		session.IsRegistered,
		session.Status,
	).Scan(&session.CreatedAt)
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (r *PgSessionRepository) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `
		SELECT id, visitor_name, visitor_email, is_registered, status, created_at
		FROM chat_sessions
		WHERE id = $1
	`
	var session domain.Session
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.VisitorName,
		&session.VisitorEmail,
		&session.IsRegistered,
		&session.Status,
		&session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, err
}

// ListActive devuelve solo sesiones activas, la mas reciente primero.
func (r *PgSessionRepository) ListActive(ctx context.Context) ([]domain.Session, error) {
	const query = `
		SELECT id, visitor_name, visitor_email, is_registered, status, created_at
		FROM chat_sessions
		WHERE status = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, domain.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		err = rows.Scan(
			&s.ID,
			&s.VisitorName,
			&s.VisitorEmail,
			&s.IsRegistered,
			&s.Status,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// Close marca la sesion como cerrada. El predicado sobre status serializa la
// transicion: cerrar dos veces (o una sesion inexistente) no hace nada y se
// reporta como ErrSessionNotFound.
func (r *PgSessionRepository) Close(ctx context.Context, id string) error {
	const query = `
		UPDATE chat_sessions
		SET status = $1
		WHERE id = $2 AND status = $3
	`
	tag, err := r.pool.Exec(ctx, query, domain.SessionStatusClosed, id, domain.SessionStatusActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

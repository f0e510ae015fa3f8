package domain

import "time"

// Estados posibles de una sesion de chat. La transicion es solo active -> closed.
const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)

// Session representa una conversacion continua entre un visitante y un agente.
type Session struct {
	ID           string    `json:"id"`
	VisitorName  string    `json:"visitor_name"`
	VisitorEmail string    `json:"visitor_email"`
	IsRegistered bool      `json:"is_registered"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsActive indica si la sesion sigue aceptando mensajes.
func (s Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

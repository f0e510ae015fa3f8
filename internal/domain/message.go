package domain

import "time"

// Roles de remitente validos para un mensaje.
const (
	SenderVisitor = "visitor"
	SenderAdmin   = "admin"
)

// Message es un turno inmutable de chat perteneciente a una sola sesion.
// CreatedAt y Seq los asigna el store al insertar; el orden de render es
// siempre (CreatedAt, Seq) ascendente, nunca el orden de llegada.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Body       string    `json:"body"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name,omitempty"`
	Seq        int64     `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidSender valida que el rol sea uno de los conocidos.
func ValidSender(role string) bool {
	return role == SenderVisitor || role == SenderAdmin
}

// Before define el orden total de mensajes: timestamp del store y, en caso
// de empate, orden de insercion.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

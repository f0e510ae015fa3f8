package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"livechat/internal/domain"
	"livechat/internal/realtime"
	"livechat/internal/service"
)

// Eventos perdidos cuando el cliente no drena a tiempo se descartan: el
// contrato del canal es at-least-once sin replay, la re-hidratacion cierra
// cualquier hueco.
const streamBuffer = 64

// WSHandler expone el stream realtime de una sesion por WebSocket.
type WSHandler struct {
	logger        *zap.Logger
	messages      *service.MessageService
	broker        realtime.Broker
	allowedOrigin string
}

func NewWSHandler(logger *zap.Logger, messages *service.MessageService, broker realtime.Broker, allowedOrigin string) *WSHandler {
	return &WSHandler{
		logger:        logger,
		messages:      messages,
		broker:        broker,
		allowedOrigin: allowedOrigin,
	}
}

// Stream maneja GET /sessions/:id/stream: escribe primero el historial
// completo (hidratacion) y despues cada insert vivo, hasta que el cliente
// corta o el write falla. Recibe el ResponseWriter crudo porque Accept
// necesita hijackear la conexion y el writer envuelto de Gin rechaza el
// hijack una vez escrito el 101.
func (h *WSHandler) Stream(w http.ResponseWriter, r *http.Request, sessionID string) {
	// La hidratacion va antes de aceptar la suscripcion, igual que en los
	// agentes: un insert entre la lectura y la suscripcion queda fuera de
	// esta conexion y se recupera re-hidratando.
	history, err := h.messages.ListBySession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("stream hydration failed", zap.String("session_id", sessionID), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "could not load history"})
		return
	}

	opts := &websocket.AcceptOptions{}
	if h.allowedOrigin != "" {
		opts.OriginPatterns = []string{h.allowedOrigin}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	// Conexion solo de escritura: CloseRead cancela el contexto cuando el
	// cliente corta, aunque nunca llegue otro insert para la sesion.
	ctx := conn.CloseRead(r.Context())

	inserts := make(chan domain.Message, streamBuffer)
	sub, err := h.broker.Subscribe(ctx, sessionID, func(msg domain.Message) {
		select {
		case inserts <- msg:
		default:
			h.logger.Warn("slow stream consumer, dropping event",
				zap.String("session_id", sessionID),
				zap.String("message_id", msg.ID),
			)
		}
	})
	if err != nil {
		h.logger.Error("stream subscribe failed", zap.String("session_id", sessionID), zap.Error(err))
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Unsubscribe()

	for _, msg := range history {
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inserts:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("stream write failed", zap.String("session_id", sessionID), zap.Error(err))
				}
				return
			}
		}
	}
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"livechat/internal/domain"
	"livechat/internal/service"
)

// ChatHandler mantiene dependencias para endpoints de sesiones y mensajes.
type ChatHandler struct {
	logger   *zap.Logger
	sessions *service.SessionService
	messages *service.MessageService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, sessions *service.SessionService, messages *service.MessageService) *ChatHandler {
	return &ChatHandler{
		logger:   logger,
		sessions: sessions,
		messages: messages,
	}
}

// CreateSession maneja POST /sessions.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req struct {
		VisitorName  string `json:"visitor_name" binding:"required"`
		VisitorEmail string `json:"visitor_email" binding:"required,email"`
		IsRegistered bool   `json:"is_registered"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), service.CreateSessionInput{
		VisitorName:  req.VisitorName,
		VisitorEmail: req.VisitorEmail,
		IsRegistered: req.IsRegistered,
	})
	if errors.Is(err, domain.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// ListSessions maneja GET /sessions (solo consola).
func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list sessions"})
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// CloseSession maneja POST /sessions/:id/close (solo consola).
func (h *ChatHandler) CloseSession(c *gin.Context) {
	err := h.sessions.Close(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrSessionNotFound) {
		// Cerrar dos veces no es fallo duro para la consola.
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		h.logger.Error("close session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not close session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": domain.SessionStatusClosed})
}

// ListMessages maneja GET /sessions/:id/messages (hidratacion).
func (h *ChatHandler) ListMessages(c *gin.Context) {
	messages, err := h.messages.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list messages"})
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostMessage maneja POST /sessions/:id/messages. El rol lo decide el borde:
// un token de administrador valido fuerza admin, todo lo demas es visitor.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		Body       string `json:"body" binding:"required"`
		SenderName string `json:"sender_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sender := domain.SenderVisitor
	senderName := req.SenderName
	if claims, ok := GetAdminClaims(c); ok {
		sender = domain.SenderAdmin
		if claims.Name != "" {
			senderName = claims.Name
		}
	}

	msg, err := h.messages.Append(c.Request.Context(), c.Param("id"), req.Body, sender, senderName)
	if errors.Is(err, domain.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, domain.ErrSessionNotFound) {
		c.JSON(http.StatusConflict, gin.H{"error": "session closed or missing"})
		return
	}
	if err != nil {
		h.logger.Error("append message failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not post message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

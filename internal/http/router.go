package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas. Devuelve un
// handler que despacha el stream WebSocket antes de entrar a Gin, sobre el
// ResponseWriter crudo, para que Accept pueda hijackear la conexion.
func NewRouter(
	logger *zap.Logger,
	verifier *TokenVerifier,
	chatH *ChatHandler,
	wsH *WSHandler,
) http.Handler {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	// Borde visitante: sin autenticacion, el widget es anonimo.
	r.POST("/sessions", jsonContentTypeMiddleware(), chatH.CreateSession)
	r.GET("/sessions/:id/messages", jsonContentTypeMiddleware(), chatH.ListMessages)
	r.POST("/sessions/:id/messages", jsonContentTypeMiddleware(), OptionalAdminAuthMiddleware(verifier), chatH.PostMessage)

	// Borde consola: capacidad de administrador verificada en el borde.
	admin := r.Group("/", jsonContentTypeMiddleware(), AdminAuthMiddleware(verifier))
	admin.GET("/sessions", chatH.ListSessions)
	admin.POST("/sessions/:id/close", chatH.CloseSession)

	return &streamDispatcher{engine: r, ws: wsH}
}

// streamDispatcher intercepta GET /sessions/:id/stream y lo sirve fuera del
// writer envuelto de Gin; el resto de las rutas pasa al engine.
type streamDispatcher struct {
	engine *gin.Engine
	ws     *WSHandler
}

func (d *streamDispatcher) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodGet {
		if id, ok := streamSessionID(req.URL.Path); ok {
			d.ws.Stream(w, req, id)
			return
		}
	}
	d.engine.ServeHTTP(w, req)
}

func streamSessionID(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/sessions/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/stream")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

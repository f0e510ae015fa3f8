package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const adminClaimsKey = "admin_claims"

// AdminClaims son los claims minimos del token de consola. La emision del
// token es responsabilidad del sistema de identidad externo; aca solo se
// verifica la capacidad en el borde.
type AdminClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var ErrTokenInvalid = errors.New("token invalid")

// TokenVerifier valida tokens de administrador firmados con HS256.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) Parse(token string) (AdminClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return AdminClaims{}, ErrTokenInvalid
	}
	var claims AdminClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return AdminClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

// AdminAuthMiddleware exige un bearer token de administrador valido.
func AdminAuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, verifier)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			c.Abort()
			return
		}
		c.Set(adminClaimsKey, claims)
		c.Next()
	}
}

// OptionalAdminAuthMiddleware adjunta claims si hay token valido, sin exigir
// uno: la misma ruta de append sirve al visitante anonimo y al agente.
func OptionalAdminAuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, verifier); ok {
			c.Set(adminClaimsKey, claims)
		}
		c.Next()
	}
}

// GetAdminClaims obtiene los claims de administrador desde el contexto.
func GetAdminClaims(c *gin.Context) (AdminClaims, bool) {
	val, ok := c.Get(adminClaimsKey)
	if !ok {
		return AdminClaims{}, false
	}
	claims, ok := val.(AdminClaims)
	return claims, ok
}

func bearerClaims(c *gin.Context, verifier *TokenVerifier) (AdminClaims, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return AdminClaims{}, false
	}
	claims, err := verifier.Parse(strings.TrimSpace(header[len("Bearer "):]))
	if err != nil {
		return AdminClaims{}, false
	}
	return claims, true
}

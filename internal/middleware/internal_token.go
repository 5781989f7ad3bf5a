package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/novasocial/graph-backend/internal/pkg/errors"
	"github.com/novasocial/graph-backend/internal/platform/logger"
)

const internalTokenHeader = "X-Internal-Token"

// InternalAuth gates write and admin routes on a shared internal token.
// Graph mutations arrive from trusted services, not end users, so this is a
// service-to-service check rather than user auth.
type InternalAuth struct {
	token string
	log   *logger.Logger
}

func NewInternalAuth(token string, baseLog *logger.Logger) *InternalAuth {
	log := baseLog.With("middleware", "internal_auth")
	if strings.TrimSpace(token) == "" {
		log.Warn("INTERNAL_WRITE_TOKEN not set, write routes are unauthenticated")
	}
	return &InternalAuth{token: strings.TrimSpace(token), log: log}
}

func (ia *InternalAuth) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ia.token == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader(internalTokenHeader))
		if subtle.ConstantTimeCompare([]byte(got), []byte(ia.token)) != 1 {
			ia.log.Warn("internal token rejected", "path", c.FullPath(), "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperrors.ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}

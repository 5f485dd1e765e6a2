package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Заголовки, которые выставляет auth-прокси перед сервисом.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	roleAdmin   = "admin"
	ctxUserID   = "bookstore.user_id"
	ctxUserRole = "bookstore.user_role"
)

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.AbortWithStatusJSON(StatusForError(domain.ErrAuthRequired), errorResponse{
				Error: domain.ErrAuthRequired.Message,
				Code:  domain.ErrAuthRequired.Code,
			})
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxUserRole, strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserRole))))
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserRole) != roleAdmin {
			c.AbortWithStatusJSON(StatusForError(domain.ErrForbidden), errorResponse{
				Error: domain.ErrForbidden.Message,
				Code:  domain.ErrForbidden.Code,
			})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// requestLogger пишет одну строку на запрос.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if uid := userID(c); uid != "" {
			entry = entry.WithField("user_id", uid)
		}
		switch {
		case c.Writer.Status() >= 500:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// errorResponse: общий конверт ошибки всех эндпоинтов.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// StatusForError переводит категорию доменной ошибки в HTTP-статус.
func StatusForError(err error) int {
	if domain.IsIdempotencyConflict(err) {
		return http.StatusConflict
	}
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState, domain.KindValidation, domain.KindSecurityViolation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		if errors.Is(err, domain.ErrForbidden) {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case domain.KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{
		Success: false,
		Error:   domain.PublicMessage(err),
		Code:    domain.CodeOf(err),
	})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.abortWithError(c, domain.Wrap(domain.ErrInvalidRequest, err))
}

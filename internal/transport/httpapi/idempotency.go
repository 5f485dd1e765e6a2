package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/idempotency"
)

const (
	// HeaderIdempotencyKey - необязательный заголовок повторяемых POST-запросов.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется, когда ответ взят из кэша.
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

// responseRecorder дублирует тело ответа, чтобы сохранить его под ключом.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent сохраняет первый ответ на запрос с Idempotency-Key и повторяет его
// для запросов с тем же ключом. Ключ действует в пределах пользователя.
func (s *Server) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if s.guard == nil || key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			s.badRequest(c, err)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		scoped := idempotency.ScopedKey(userID(c), key)
		replay, err := s.guard.Begin(ctx, scoped, idempotency.Fingerprint(c.Request.Method, c.Request.URL.Path, body))
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		if replay != nil {
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(replay.Status, "application/json; charset=utf-8", replay.Body)
			c.Abort()
			return
		}

		rec := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = rec

		finished := false
		defer func() {
			if finished {
				return
			}
			// Обработчик упал с паникой: gin.Recovery ответит 500, а ключ не должен остаться processing.
			body, _ := json.Marshal(errorResponse{Error: domain.ErrInternal.Message, Code: domain.ErrInternal.Code})
			s.completeIdempotent(ctx, scoped, key, http.StatusInternalServerError, body)
		}()

		c.Next()
		finished = true
		s.completeIdempotent(ctx, scoped, key, rec.Status(), rec.body.Bytes())
	}
}

func (s *Server) completeIdempotent(ctx context.Context, scoped, key string, status int, body []byte) {
	if err := s.guard.Complete(ctx, scoped, status, body); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

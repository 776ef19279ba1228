package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/TangB5/restaurant/internal/domain"
)

// idempotencyHeader — ключ повторяемого запроса от клиента.
const idempotencyHeader = "Idempotency-Key"

// defaultIdempotencyTTL задаёт срок хранения сохранённых ответов.
const defaultIdempotencyTTL = 24 * time.Hour

// captureWriter перехватывает ответ handler'а, чтобы сохранить его для replay.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// withIdempotency оборачивает мутирующий handler протоколом Idempotency-Key:
// повтор запроса с тем же ключом и телом получает сохранённый ответ, повтор с
// другим телом отклоняется, гонка двух одинаковых запросов даёт 409 второму.
// Запрос без заголовка проходит насквозь.
func (h *Handler) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.idempotency == nil {
			next(w, r)
			return
		}
		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			next(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable request body"})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		sum := sha256.Sum256(body)
		requestHash := hex.EncodeToString(sum[:])

		_, err = h.idempotency.CreateProcessing(key, requestHash, time.Now().UTC().Add(defaultIdempotencyTTL))
		if err != nil {
			if errors.Is(err, domain.ErrIdempotencyHashMismatch) {
				respondError(w, err)
				return
			}
			if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
				h.replay(w, key)
				return
			}
			respondError(w, err)
			return
		}

		capture := &captureWriter{ResponseWriter: w}
		next(capture, r)

		status := capture.status
		if status == 0 {
			status = http.StatusOK
		}
		stored := append([]byte(nil), capture.body.Bytes()...)

		var markErr error
		if status < http.StatusInternalServerError {
			markErr = h.idempotency.MarkDone(key, stored, status)
		} else {
			markErr = h.idempotency.MarkFailed(key, stored, status)
		}
		if markErr != nil {
			h.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
	}
}

// replay отдаёт сохранённый ответ по уже известному ключу.
func (h *Handler) replay(w http.ResponseWriter, key string) {
	record, err := h.idempotency.Get(key)
	if err != nil {
		respondError(w, err)
		return
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		respondJSON(w, http.StatusConflict, errorResponse{Error: "request with this idempotency key is being processed"})
		return
	}

	h.logger.WithFields(log.Fields{
		"idempotency_key": key,
		"status":          record.HTTPStatus,
	}).Info("replaying stored idempotent response")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

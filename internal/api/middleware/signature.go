package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/amishayyadav/lyftr/internal/crypto"
	"github.com/amishayyadav/lyftr/internal/metrics"
)

// SignatureMiddleware verifies the HMAC signature of webhook requests.
type SignatureMiddleware struct {
	secret []byte
	logger zerolog.Logger
}

// NewSignatureMiddleware creates a signature middleware. An empty secret makes
// every request fail with 503 until the service is configured.
func NewSignatureMiddleware(secret string, logger zerolog.Logger) *SignatureMiddleware {
	return &SignatureMiddleware{secret: []byte(secret), logger: logger}
}

// RequireSignature checks X-Signature against the raw request body before
// anything parses it, then hands the same bytes to the next handler.
func (m *SignatureMiddleware) RequireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 {
			metrics.WebhookRequests.WithLabelValues("unconfigured").Inc()
			jsonError(w, http.StatusServiceUnavailable, crypto.ErrMissingSecret.Error())
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			jsonError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body)) // Reset for handler

		if err := crypto.CheckSignature(m.secret, body, r.Header.Get(crypto.SignatureHeader)); err != nil {
			metrics.WebhookRequests.WithLabelValues("invalid_signature").Inc()
			m.logger.Warn().
				Str("type", "security").
				Str("event", "invalid_signature").
				Str("ip", ClientIP(r)).
				Str("reason", err.Error()).
				Msg("webhook signature rejected")
			jsonError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

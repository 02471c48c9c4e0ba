package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/amishayyadav/lyftr/internal/metrics"
	"github.com/amishayyadav/lyftr/internal/models"
	"github.com/amishayyadav/lyftr/internal/store"
)

// WebhookRequest is the inbound webhook payload.
type WebhookRequest struct {
	MessageID string  `json:"message_id" validate:"required"`
	From      string  `json:"from" validate:"required"`
	To        string  `json:"to" validate:"required"`
	TS        string  `json:"ts" validate:"required"`
	Text      *string `json:"text,omitempty"`
}

// Webhook stores a verified webhook message. The signature has already been
// checked against the raw body by middleware.RequireSignature.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.WebhookRequests.WithLabelValues("validation_error").Inc()
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if fields := h.validateWebhook(&req); len(fields) > 0 {
		metrics.WebhookRequests.WithLabelValues("validation_error").Inc()
		h.ValidationFailed(w, fields)
		return
	}

	msg := &models.Message{
		MessageID: req.MessageID,
		From:      req.From,
		To:        req.To,
		TS:        req.TS,
		Text:      req.Text,
	}

	outcome, err := h.db.InsertMessage(r.Context(), msg)
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("storage_error").Inc()
		h.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("failed to store message")
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	metrics.WebhookRequests.WithLabelValues(outcome.String()).Inc()
	if outcome == store.Inserted {
		h.invalidateStats(r.Context())
	}

	h.logger.Debug().
		Str("message_id", msg.MessageID).
		Str("outcome", outcome.String()).
		Msg("webhook message accepted")

	// Duplicates are acknowledged exactly like fresh inserts.
	h.JSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// validateWebhook checks required fields and canonicalises req.TS in place.
func (h *Handler) validateWebhook(req *WebhookRequest) map[string]string {
	fields := make(map[string]string)

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			fields["body"] = err.Error()
			return fields
		}
		for _, fe := range verrs {
			fields[fe.Field()] = describeFieldError(fe)
		}
	}

	if _, bad := fields["ts"]; !bad {
		ts, err := models.CanonicalTimestamp(req.TS)
		if err != nil {
			fields["ts"] = err.Error()
		} else {
			req.TS = ts
		}
	}

	return fields
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	default:
		return "is invalid"
	}
}

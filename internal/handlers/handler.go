package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/amishayyadav/lyftr/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	cache    store.StatsCache // optional
	secret   string
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewHandler creates a new Handler. cache may be nil.
func NewHandler(db store.DataStore, cache store.StatsCache, webhookSecret string, logger zerolog.Logger) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		db:       db,
		cache:    cache,
		secret:   webhookSecret,
		logger:   logger,
		validate: validate,
	}
}

// StatusResponse is the generic {"status": ...} body.
type StatusResponse struct {
	Status string `json:"status"`
}

// ValidationErrorResponse carries field-level validation detail.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ValidationFailed sends a 400 with per-field messages.
func (h *Handler) ValidationFailed(w http.ResponseWriter, fields map[string]string) {
	h.JSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:  "validation failed",
		Fields: fields,
	})
}

// invalidateStats drops cached stats after a fresh insert.
func (h *Handler) invalidateStats(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateStats(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("stats cache invalidation failed")
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/amishayyadav/lyftr/internal/models"
	"github.com/amishayyadav/lyftr/internal/store"
)

// MessagesResponse is one page of messages.
type MessagesResponse struct {
	Data   []models.MessageView `json:"data"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListMessages handles GET /messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	filter, fields := parseListFilter(r)
	if len(fields) > 0 {
		h.ValidationFailed(w, fields)
		return
	}

	messages, total, err := h.db.ListMessages(r.Context(), filter)
	if err != nil {
		if errors.Is(err, store.ErrInvalidFilter) {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("failed to list messages")
		h.Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	h.JSON(w, http.StatusOK, MessagesResponse{
		Data:   messages,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// parseListFilter reads pagination and filters from the query string.
// Out-of-range values are reported, never clamped.
func parseListFilter(r *http.Request) (store.ListFilter, map[string]string) {
	query := r.URL.Query()
	fields := make(map[string]string)

	filter := store.ListFilter{
		Limit: store.DefaultListLimit,
		From:  query.Get("from"),
		Query: query.Get("q"),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 || l > store.MaxListLimit {
			fields["limit"] = "must be an integer between 1 and " + strconv.Itoa(store.MaxListLimit)
		} else {
			filter.Limit = l
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil || o < 0 {
			fields["offset"] = "must be a non-negative integer"
		} else {
			filter.Offset = o
		}
	}

	if since := query.Get("since"); since != "" {
		ts, err := models.CanonicalTimestamp(since)
		if err != nil {
			fields["since"] = err.Error()
		} else {
			filter.Since = ts
		}
	}

	return filter, fields
}

package handlers

import (
	"context"
	"net/http"

	"github.com/amishayyadav/lyftr/internal/metrics"
	"github.com/amishayyadav/lyftr/internal/models"
	"github.com/amishayyadav/lyftr/internal/store"
)

// Stats returns aggregate message statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cached, gen, cacheUsable := h.cachedStats(ctx)
	if cached != nil {
		h.JSON(w, http.StatusOK, cached)
		return
	}

	stats, err := h.db.GetStats(ctx, store.TopSendersLimit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to compute stats")
		h.Error(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	if cacheUsable {
		stored, err := h.cache.SetStats(ctx, gen, stats)
		switch {
		case err != nil:
			h.logger.Warn().Err(err).Msg("failed to cache stats")
		case !stored:
			h.logger.Debug().Uint64("generation", gen).Msg("messages arrived during stats computation, not caching")
		}
	}

	h.JSON(w, http.StatusOK, stats)
}

// cachedStats looks up the stats cache. It returns the cached entry (nil on a
// miss), the generation it was read at, and whether the cache can take a
// SetStats for that generation. Cache errors are logged and never fail the
// request.
func (h *Handler) cachedStats(ctx context.Context) (*models.Stats, uint64, bool) {
	if h.cache == nil {
		return nil, 0, false
	}

	stats, gen, err := h.cache.GetStats(ctx)
	switch {
	case err != nil:
		metrics.StatsCacheLookups.WithLabelValues("error").Inc()
		h.logger.Warn().Err(err).Msg("stats cache lookup failed")
		return nil, 0, false
	case stats == nil:
		metrics.StatsCacheLookups.WithLabelValues("miss").Inc()
		return nil, gen, true
	default:
		metrics.StatsCacheLookups.WithLabelValues("hit").Inc()
		if stats.TopSenders == nil {
			stats.TopSenders = []models.SenderCount{}
		}
		return stats, gen, true
	}
}

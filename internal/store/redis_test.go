package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/amishayyadav/lyftr/internal/models"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	s, err := NewRedisStore(context.Background(), url, time.Minute)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Client().Del(context.Background(), statsKey, statsGenKey).Err(); err != nil {
		t.Fatal(err)
	}
	return s
}

func sampleStats(total int64) *models.Stats {
	first := "2025-01-01T00:00:00Z"
	return &models.Stats{
		TotalMessages:  total,
		UniqueSenders:  2,
		TopSenders:     []models.SenderCount{{From: "+1", Count: 3}, {From: "+2", Count: 1}},
		FirstMessageTS: &first,
		LastMessageTS:  &first,
	}
}

// Redis tests need a disposable instance; they overwrite the stats keys.
func TestRedisStatsCache(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	got, gen, err := s.GetStats(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected miss, got %+v %v", got, err)
	}

	stored, err := s.SetStats(ctx, gen, sampleStats(4))
	if err != nil || !stored {
		t.Fatalf("expected store at gen %d, got %v %v", gen, stored, err)
	}

	got, _, err = s.GetStats(ctx)
	if err != nil || got == nil {
		t.Fatalf("expected hit, got %+v %v", got, err)
	}
	if got.TotalMessages != 4 || len(got.TopSenders) != 2 || *got.FirstMessageTS != "2025-01-01T00:00:00Z" {
		t.Fatalf("round trip mismatch %+v", got)
	}

	ttl, err := s.Client().TTL(ctx, statsKey).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected TTL within a minute, got %v %v", ttl, err)
	}

	if err := s.InvalidateStats(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _, _ := s.GetStats(ctx); got != nil {
		t.Fatal("expected miss after invalidation")
	}
}

func TestRedisStatsCacheRejectsStaleGeneration(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	// A reader takes the generation, then an insert lands before it writes.
	_, readGen, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InvalidateStats(ctx); err != nil {
		t.Fatal(err)
	}

	stored, err := s.SetStats(ctx, readGen, sampleStats(0))
	if err != nil {
		t.Fatal(err)
	}
	if stored {
		t.Fatal("stats computed before an insert must not be cached")
	}
	if got, _, _ := s.GetStats(ctx); got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}

	// An entry written under an old generation is not served either.
	_, gen, _ := s.GetStats(ctx)
	if stored, _ := s.SetStats(ctx, gen, sampleStats(1)); !stored {
		t.Fatal("expected store at current generation")
	}
	if err := s.Client().Incr(ctx, statsGenKey).Err(); err != nil {
		t.Fatal(err)
	}
	if got, _, _ := s.GetStats(ctx); got != nil {
		t.Fatalf("expected entry from old generation to be ignored, got %+v", got)
	}
}

func TestRedisStoreDefaultTTL(t *testing.T) {
	s := NewRedisStoreFromClient(nil, 0)
	if s.statsTTL != defaultStatsTTL {
		t.Fatalf("expected default TTL, got %v", s.statsTTL)
	}
}

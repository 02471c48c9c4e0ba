package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/amishayyadav/lyftr/internal/models"
)

// InsertOutcome reports what InsertMessage did with a message.
type InsertOutcome int

const (
	// Inserted means the message was new and is now stored.
	Inserted InsertOutcome = iota + 1
	// DuplicateIgnored means a message with the same id already existed; nothing changed.
	DuplicateIgnored
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case DuplicateIgnored:
		return "duplicate"
	default:
		return "unknown"
	}
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	TopSendersLimit  = 10
)

var ErrInvalidFilter = errors.New("invalid list filter")

// ListFilter selects a page of messages. Empty string filters are ignored.
type ListFilter struct {
	Limit  int
	Offset int
	From   string // exact match on sender
	Since  string // inclusive lower bound on ts
	Query  string // case-insensitive substring of text
}

// Validate checks the pagination bounds.
func (f ListFilter) Validate() error {
	if f.Limit < 1 || f.Limit > MaxListLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidFilter, MaxListLimit)
	}
	if f.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0", ErrInvalidFilter)
	}
	return nil
}

// DataStore defines the interface for persistent storage of webhook messages.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Write path
	InsertMessage(ctx context.Context, msg *models.Message) (InsertOutcome, error)

	// Read path
	ListMessages(ctx context.Context, filter ListFilter) ([]models.MessageView, int, error)
	GetStats(ctx context.Context, topN int) (*models.Stats, error)
}

// StatsCache caches the stats aggregate. Every fresh insert bumps a
// generation counter, and entries are tagged with the generation they were
// computed under, so stats computed before an insert are neither stored nor
// served after it.
type StatsCache interface {
	// GetStats returns the entry for the current generation (nil on a miss)
	// along with that generation.
	GetStats(ctx context.Context) (*models.Stats, uint64, error)
	// SetStats stores stats only while gen is still current.
	SetStats(ctx context.Context, gen uint64, stats *models.Stats) (bool, error)
	// InvalidateStats bumps the generation.
	InvalidateStats(ctx context.Context) error
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishayyadav/lyftr/internal/models"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: init postgres schema: %w", err)
	}

	return store, nil
}

// initSchema creates the messages table if it doesn't exist. Text columns use
// the "C" collation so ordering and range filters compare bytes.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			message_id  TEXT COLLATE "C" PRIMARY KEY,
			from_msisdn TEXT COLLATE "C" NOT NULL,
			to_msisdn   TEXT NOT NULL,
			ts          TEXT COLLATE "C" NOT NULL,
			text        TEXT,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts, message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_msisdn)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertMessage stores msg unless a message with the same id already exists.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) (InsertOutcome, error) {
	defer postgresDialect.observe("insert", time.Now())

	createdAt := s.now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (message_id, from_msisdn, to_msisdn, ts, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.MessageID, msg.From, msg.To, msg.TS, msg.Text, formatCreatedAt(createdAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return DuplicateIgnored, nil
		}
		return 0, fmt.Errorf("store: insert message: %w", err)
	}

	msg.CreatedAt = createdAt
	return Inserted, nil
}

// ListMessages returns one page of matching messages and the total match count.
func (s *PostgresStore) ListMessages(ctx context.Context, filter ListFilter) ([]models.MessageView, int, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	defer postgresDialect.observe("list", time.Now())

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, 0, fmt.Errorf("store: begin list: %w", err)
	}
	defer tx.Rollback(ctx)

	// Get total count
	var total int
	countSQL, countArgs := postgresDialect.countQuery(filter)
	if err := tx.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count messages: %w", err)
	}

	pageSQL, pageArgs := postgresDialect.pageQuery(filter)
	rows, err := tx.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.MessageView, 0, filter.Limit)
	for rows.Next() {
		var m models.MessageView
		if err := rows.Scan(&m.MessageID, &m.From, &m.To, &m.TS, &m.Text); err != nil {
			return nil, 0, fmt.Errorf("store: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: list messages: %w", err)
	}

	return messages, total, nil
}

// GetStats computes the aggregate summary over all messages.
func (s *PostgresStore) GetStats(ctx context.Context, topN int) (*models.Stats, error) {
	defer postgresDialect.observe("stats", time.Now())

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("store: begin stats: %w", err)
	}
	defer tx.Rollback(ctx)

	stats := &models.Stats{TopSenders: []models.SenderCount{}}
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT from_msisdn), MIN(ts), MAX(ts)
		FROM messages
	`).Scan(&stats.TotalMessages, &stats.UniqueSenders, &stats.FirstMessageTS, &stats.LastMessageTS)
	if err != nil {
		return nil, fmt.Errorf("store: aggregate messages: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT from_msisdn, COUNT(*) AS n
		FROM messages
		GROUP BY from_msisdn
		ORDER BY n DESC, from_msisdn ASC
		LIMIT $1
	`, topN)
	if err != nil {
		return nil, fmt.Errorf("store: top senders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc models.SenderCount
		if err := rows.Scan(&sc.From, &sc.Count); err != nil {
			return nil, fmt.Errorf("store: scan sender: %w", err)
		}
		stats.TopSenders = append(stats.TopSenders, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: top senders: %w", err)
	}

	return stats, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/amishayyadav/lyftr/internal/models"
)

// sqliteDriver is go-sqlite3 with a Unicode-aware fold() SQL function.
// SQLite's built-in lower() only folds ASCII.
const sqliteDriver = "sqlite3_lyftr"

var registerDriver sync.Once

func registerSQLiteDriver() {
	registerDriver.Do(func() {
		sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("fold", fold, true)
			},
		})
	})
}

// fold lowercases text values and passes NULL through.
func fold(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return strings.ToLower(t)
	case []byte:
		if t == nil { // NULL
			return nil
		}
		return strings.ToLower(string(t))
	default:
		return v
	}
}

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/app.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/app.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	registerSQLiteDriver()
	db, err := sql.Open(sqliteDriver, dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init sqlite schema: %w", err)
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		message_id  TEXT PRIMARY KEY,
		from_msisdn TEXT NOT NULL,
		to_msisdn   TEXT NOT NULL,
		ts          TEXT NOT NULL,
		text        TEXT,
		created_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts, message_id);
	CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_msisdn);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage stores msg unless a message with the same id already exists.
// The primary key decides; there is no read before the write.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) (InsertOutcome, error) {
	defer sqliteDialect.observe("insert", time.Now())

	createdAt := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, from_msisdn, to_msisdn, ts, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.MessageID, msg.From, msg.To, msg.TS, msg.Text, formatCreatedAt(createdAt))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return DuplicateIgnored, nil
		}
		return 0, fmt.Errorf("store: insert message: %w", err)
	}

	msg.CreatedAt = createdAt
	return Inserted, nil
}

// ListMessages returns one page of matching messages and the total match count.
func (s *SQLiteStore) ListMessages(ctx context.Context, filter ListFilter) ([]models.MessageView, int, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	defer sqliteDialect.observe("list", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("store: begin list: %w", err)
	}
	defer tx.Rollback()

	// Get total count
	var total int
	countSQL, countArgs := sqliteDialect.countQuery(filter)
	if err := tx.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count messages: %w", err)
	}

	pageSQL, pageArgs := sqliteDialect.pageQuery(filter)
	rows, err := tx.QueryContext(ctx, pageSQL, pageArgs...)
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
func (s *SQLiteStore) GetStats(ctx context.Context, topN int) (*models.Stats, error) {
	defer sqliteDialect.observe("stats", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin stats: %w", err)
	}
	defer tx.Rollback()

	stats := &models.Stats{TopSenders: []models.SenderCount{}}
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT from_msisdn), MIN(ts), MAX(ts)
		FROM messages
	`).Scan(&stats.TotalMessages, &stats.UniqueSenders, &stats.FirstMessageTS, &stats.LastMessageTS)
	if err != nil {
		return nil, fmt.Errorf("store: aggregate messages: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT from_msisdn, COUNT(*) AS n
		FROM messages
		GROUP BY from_msisdn
		ORDER BY n DESC, from_msisdn ASC
		LIMIT ?
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

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

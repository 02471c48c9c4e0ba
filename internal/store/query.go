package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/amishayyadav/lyftr/internal/metrics"
)

const messageColumns = `message_id, from_msisdn, to_msisdn, ts, text`

// dialect captures the SQL differences between the supported engines.
type dialect struct {
	name        string
	placeholder func(n int) string
	// contains renders a case-insensitive substring test of the text column.
	contains func(arg string) string
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	contains: func(arg string) string {
		return "instr(fold(text), fold(" + arg + ")) > 0"
	},
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	contains: func(arg string) string {
		return "strpos(lower(text), lower(" + arg + ")) > 0"
	},
}

// listWhere builds the WHERE clause shared by the count and page queries.
// All filters combine with AND; a NULL text never matches a substring filter.
func (d dialect) listWhere(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}

	if f.From != "" {
		conds = append(conds, "from_msisdn = "+next(f.From))
	}
	if f.Since != "" {
		conds = append(conds, "ts >= "+next(f.Since))
	}
	if f.Query != "" {
		conds = append(conds, "text IS NOT NULL AND "+d.contains(next(f.Query)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// pageQuery returns the ordered page query and its arguments.
func (d dialect) pageQuery(f ListFilter) (string, []any) {
	where, args := d.listWhere(f)
	args = append(args, f.Limit)
	limit := d.placeholder(len(args))
	args = append(args, f.Offset)
	offset := d.placeholder(len(args))

	q := `SELECT ` + messageColumns + ` FROM messages` + where +
		` ORDER BY ts ASC, message_id ASC LIMIT ` + limit + ` OFFSET ` + offset
	return q, args
}

// countQuery returns the total matching rows query, ignoring pagination.
func (d dialect) countQuery(f ListFilter) (string, []any) {
	where, args := d.listWhere(f)
	return `SELECT COUNT(*) FROM messages` + where, args
}

func (d dialect) observe(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(d.name, op).Observe(time.Since(start).Seconds())
}

// formatCreatedAt renders the server ingestion time with an explicit UTC marker.
func formatCreatedAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

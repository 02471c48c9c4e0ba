package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/amishayyadav/lyftr/internal/models"
)

// storeSuite runs the DataStore contract against a fresh, empty store per test.
func storeSuite(t *testing.T, newStore func(t *testing.T) DataStore) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s DataStore)
	}{
		{"InsertIdempotent", testInsertIdempotent},
		{"InsertConcurrentDuplicates", testInsertConcurrentDuplicates},
		{"ListEmpty", testListEmpty},
		{"ListPaginationStable", testListPaginationStable},
		{"ListFilters", testListFilters},
		{"ListQueryUnicode", testListQueryUnicode},
		{"ListBoundary", testListBoundary},
		{"ListRejectsBadFilter", testListRejectsBadFilter},
		{"StatsEmpty", testStatsEmpty},
		{"StatsCounts", testStatsCounts},
		{"StatsTopTen", testStatsTopTen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func strPtr(s string) *string { return &s }

func msg(id, from, ts string, text *string) *models.Message {
	return &models.Message{MessageID: id, From: from, To: "+10000000000", TS: ts, Text: text}
}

func mustInsert(t *testing.T, s DataStore, m *models.Message) {
	t.Helper()
	outcome, err := s.InsertMessage(context.Background(), m)
	if err != nil {
		t.Fatalf("insert %s: %v", m.MessageID, err)
	}
	if outcome != Inserted {
		t.Fatalf("insert %s: outcome = %v, want inserted", m.MessageID, outcome)
	}
}

func listAll(t *testing.T, s DataStore, f ListFilter) ([]models.MessageView, int) {
	t.Helper()
	if f.Limit == 0 {
		f.Limit = MaxListLimit
	}
	rows, total, err := s.ListMessages(context.Background(), f)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return rows, total
}

func testInsertIdempotent(t *testing.T, s DataStore) {
	ctx := context.Background()

	first := msg("m1", "+1", "2024-01-01T00:00:00Z", strPtr("hi"))
	outcome, err := s.InsertMessage(ctx, first)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if outcome != Inserted {
		t.Fatalf("first insert outcome = %v, want inserted", outcome)
	}
	if first.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped on insert")
	}

	// Same id with different fields, then an identical repeat.
	changed := msg("m1", "+9", "2030-01-01T00:00:00Z", strPtr("changed"))
	for i, m := range []*models.Message{changed, msg("m1", "+1", "2024-01-01T00:00:00Z", strPtr("hi"))} {
		outcome, err := s.InsertMessage(ctx, m)
		if err != nil {
			t.Fatalf("repeat %d: unexpected error: %v", i, err)
		}
		if outcome != DuplicateIgnored {
			t.Fatalf("repeat %d: outcome = %v, want duplicate", i, outcome)
		}
	}

	rows, total := listAll(t, s, ListFilter{})
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected exactly one row, got total=%d rows=%d", total, len(rows))
	}
	got := rows[0]
	if got.From != "+1" || got.TS != "2024-01-01T00:00:00Z" || got.Text == nil || *got.Text != "hi" {
		t.Errorf("stored row was mutated by duplicate insert: %+v", got)
	}
}

func testInsertConcurrentDuplicates(t *testing.T, s DataStore) {
	const workers = 16

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		dups     int
		errs     []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcome, err := s.InsertMessage(context.Background(), msg("race", "+1", "2024-01-01T00:00:00Z", nil))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errs = append(errs, err)
			case outcome == Inserted:
				inserted++
			case outcome == DuplicateIgnored:
				dups++
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("concurrent inserts returned errors: %v", errs)
	}
	if inserted != 1 || dups != workers-1 {
		t.Fatalf("inserted=%d duplicates=%d, want 1 and %d", inserted, dups, workers-1)
	}
}

func testListEmpty(t *testing.T, s DataStore) {
	filters := []ListFilter{
		{},
		{From: "+1"},
		{Since: "2024-01-01T00:00:00Z"},
		{Query: "hello"},
		{From: "+1", Since: "2024-01-01T00:00:00Z", Query: "x", Offset: 10},
	}
	for _, f := range filters {
		rows, total := listAll(t, s, f)
		if total != 0 || len(rows) != 0 {
			t.Errorf("filter %+v: got total=%d rows=%d, want empty", f, total, len(rows))
		}
		if rows == nil {
			t.Errorf("filter %+v: rows should be an empty slice, not nil", f)
		}
	}
}

func testListPaginationStable(t *testing.T, s DataStore) {
	// Many messages share a ts; inserted out of order.
	stamps := []string{"2024-03-01T00:00:00Z", "2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z"}
	var want []string
	for i := 24; i >= 0; i-- {
		ts := stamps[i%len(stamps)]
		id := fmt.Sprintf("id-%02d", i)
		mustInsert(t, s, msg(id, "+1", ts, nil))
		want = append(want, ts+"|"+id)
	}
	sort.Strings(want)

	const pageSize = 7
	var got []string
	seen := make(map[string]bool)
	for offset := 0; ; offset += pageSize {
		rows, total, err := s.ListMessages(context.Background(), ListFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			t.Fatalf("page at %d: %v", offset, err)
		}
		if total != len(want) {
			t.Fatalf("page at %d: total = %d, want %d", offset, total, len(want))
		}
		for _, r := range rows {
			if seen[r.MessageID] {
				t.Fatalf("message %s returned twice", r.MessageID)
			}
			seen[r.MessageID] = true
			got = append(got, r.TS+"|"+r.MessageID)
		}
		if offset+pageSize >= total {
			break
		}
	}

	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("paged order mismatch\n got: %v\nwant: %v", got, want)
	}
}

func testListFilters(t *testing.T, s DataStore) {
	fixtures := []*models.Message{
		msg("a1", "+111", "2024-01-01T00:00:00Z", strPtr("Hello World")),
		msg("a2", "+111", "2024-01-02T00:00:00Z", strPtr("goodbye")),
		msg("a3", "+111", "2024-01-03T00:00:00Z", nil),
		msg("b1", "+222", "2024-01-02T00:00:00Z", strPtr("HELLO again")),
		msg("b2", "+222", "2023-12-31T23:59:59Z", strPtr("say hello")),
		msg("c1", "+333", "2024-02-01T00:00:00Z", strPtr("nothing here")),
	}
	for _, m := range fixtures {
		mustInsert(t, s, m)
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"no filters", ListFilter{}, []string{"b2", "a1", "a2", "b1", "a3", "c1"}},
		{"from exact", ListFilter{From: "+111"}, []string{"a1", "a2", "a3"}},
		{"from is not prefix", ListFilter{From: "+11"}, nil},
		{"since inclusive", ListFilter{Since: "2024-01-02T00:00:00Z"}, []string{"a2", "b1", "a3", "c1"}},
		{"query case-insensitive", ListFilter{Query: "hElLo"}, []string{"b2", "a1", "b1"}},
		{"query skips null text", ListFilter{Query: "o"}, []string{"b2", "a1", "a2", "b1", "c1"}},
		{"from and since", ListFilter{From: "+222", Since: "2024-01-01T00:00:00Z"}, []string{"b1"}},
		{"all three", ListFilter{From: "+111", Since: "2024-01-01T00:00:00Z", Query: "world"}, []string{"a1"}},
		{"all three no match", ListFilter{From: "+333", Since: "2024-01-01T00:00:00Z", Query: "hello"}, nil},
		{"like wildcards are literal", ListFilter{Query: "%"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, total := listAll(t, s, tt.filter)
			var ids []string
			for _, r := range rows {
				ids = append(ids, r.MessageID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
			if total != len(tt.want) {
				t.Errorf("total = %d, want %d", total, len(tt.want))
			}
		})
	}

	// total ignores the page window
	rows, total, err := s.ListMessages(context.Background(), ListFilter{Limit: 1, Offset: 1, From: "+111"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(rows) != 1 || rows[0].MessageID != "a2" {
		t.Errorf("windowed list: total=%d rows=%+v, want total=3 and [a2]", total, rows)
	}
}

func testListQueryUnicode(t *testing.T, s DataStore) {
	mustInsert(t, s, msg("u1", "+1", "2024-01-01T00:00:00Z", strPtr("Rendez-vous à l'ÉCOLE")))
	mustInsert(t, s, msg("u2", "+1", "2024-01-02T00:00:00Z", strPtr("Straße gesperrt")))
	mustInsert(t, s, msg("u3", "+1", "2024-01-03T00:00:00Z", strPtr("plain ascii")))

	tests := []struct {
		query string
		want  string
	}{
		{"école", "u1"},
		{"ÉCOLE", "u1"},
		{"À L'É", "u1"},
		{"STRASSE", ""}, // folding is case-only, not full case-folding
		{"STRAßE", "u2"},
	}

	for _, tt := range tests {
		rows, total := listAll(t, s, ListFilter{Query: tt.query})
		var ids []string
		for _, r := range rows {
			ids = append(ids, r.MessageID)
		}
		if strings.Join(ids, ",") != tt.want {
			t.Errorf("q=%q: ids = %v, want %q", tt.query, ids, tt.want)
		}
		if total != len(ids) {
			t.Errorf("q=%q: total = %d, want %d", tt.query, total, len(ids))
		}
	}
}

func testListBoundary(t *testing.T, s DataStore) {
	for i := 0; i < 100; i++ {
		mustInsert(t, s, msg(fmt.Sprintf("m%03d", i), "+1", "2024-01-01T00:00:00Z", nil))
	}

	rows, total, err := s.ListMessages(context.Background(), ListFilter{Limit: 100, Offset: 0})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 100 || len(rows) != 100 {
		t.Fatalf("total=%d rows=%d, want 100/100", total, len(rows))
	}

	rows, total, err = s.ListMessages(context.Background(), ListFilter{Limit: 10, Offset: 100})
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if total != 100 || len(rows) != 0 {
		t.Fatalf("past end: total=%d rows=%d, want 100/0", total, len(rows))
	}
}

func testListRejectsBadFilter(t *testing.T, s DataStore) {
	for _, f := range []ListFilter{{Limit: 0}, {Limit: 101}, {Limit: 10, Offset: -1}} {
		_, _, err := s.ListMessages(context.Background(), f)
		if !errors.Is(err, ErrInvalidFilter) {
			t.Errorf("filter %+v: error = %v, want ErrInvalidFilter", f, err)
		}
	}
}

func testStatsEmpty(t *testing.T, s DataStore) {
	stats, err := s.GetStats(context.Background(), TopSendersLimit)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 0 || stats.UniqueSenders != 0 {
		t.Errorf("expected zero counts, got %+v", stats)
	}
	if stats.TopSenders == nil || len(stats.TopSenders) != 0 {
		t.Errorf("expected empty non-nil top senders, got %#v", stats.TopSenders)
	}
	if stats.FirstMessageTS != nil || stats.LastMessageTS != nil {
		t.Errorf("expected nil ts range on empty store, got %v / %v", stats.FirstMessageTS, stats.LastMessageTS)
	}
}

func testStatsCounts(t *testing.T, s DataStore) {
	senders := map[string]int{"A": 3, "B": 5, "C": 1}
	stamps := []string{
		"2024-01-05T00:00:00Z", "2024-01-01T00:00:00Z", "2024-01-09T00:00:00Z",
		"2024-01-03T00:00:00Z", "2024-01-07T00:00:00Z",
	}
	n := 0
	for _, from := range []string{"A", "B", "C"} {
		for i := 0; i < senders[from]; i++ {
			mustInsert(t, s, msg(fmt.Sprintf("%s-%d", from, i), from, stamps[n%len(stamps)], nil))
			n++
		}
	}

	stats, err := s.GetStats(context.Background(), TopSendersLimit)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 9 {
		t.Errorf("TotalMessages = %d, want 9", stats.TotalMessages)
	}
	if stats.UniqueSenders != 3 {
		t.Errorf("UniqueSenders = %d, want 3", stats.UniqueSenders)
	}
	want := []models.SenderCount{{From: "B", Count: 5}, {From: "A", Count: 3}, {From: "C", Count: 1}}
	if fmt.Sprint(stats.TopSenders) != fmt.Sprint(want) {
		t.Errorf("TopSenders = %v, want %v", stats.TopSenders, want)
	}
	if stats.FirstMessageTS == nil || *stats.FirstMessageTS != "2024-01-01T00:00:00Z" {
		t.Errorf("FirstMessageTS = %v, want 2024-01-01T00:00:00Z", stats.FirstMessageTS)
	}
	if stats.LastMessageTS == nil || *stats.LastMessageTS != "2024-01-09T00:00:00Z" {
		t.Errorf("LastMessageTS = %v, want 2024-01-09T00:00:00Z", stats.LastMessageTS)
	}
}

func testStatsTopTen(t *testing.T, s DataStore) {
	// 12 senders; sender k sends k+1 messages.
	for k := 0; k < 12; k++ {
		for i := 0; i <= k; i++ {
			mustInsert(t, s, msg(fmt.Sprintf("s%02d-%02d", k, i), fmt.Sprintf("+%02d", k), "2024-01-01T00:00:00Z", nil))
		}
	}

	stats, err := s.GetStats(context.Background(), TopSendersLimit)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.UniqueSenders != 12 {
		t.Errorf("UniqueSenders = %d, want 12", stats.UniqueSenders)
	}
	if len(stats.TopSenders) != TopSendersLimit {
		t.Fatalf("len(TopSenders) = %d, want %d", len(stats.TopSenders), TopSendersLimit)
	}
	for i, sc := range stats.TopSenders {
		wantFrom := fmt.Sprintf("+%02d", 11-i)
		if sc.From != wantFrom || sc.Count != int64(12-i) {
			t.Errorf("TopSenders[%d] = %+v, want {%s %d}", i, sc, wantFrom, 12-i)
		}
	}
}

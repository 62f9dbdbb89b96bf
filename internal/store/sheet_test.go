package store

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modqueue/modq/internal/record"
)

func writeSheet(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posts.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func readSheet(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestSheetFetchPending(t *testing.T) {
	path := writeSheet(t, [][]string{
		{"content", "platform", "scheduled_date", "status"},
		{"first", "x", "2025-07-01", "pending"},
		{"done", "x", "2025-07-02", "approved"},
		{"second", "x", "2025-07-03", "pending"},
	})
	s, err := NewSheet(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := s.FetchPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 pending, got %d", len(recs))
	}
	if recs[0].Content != "first" || recs[0].Position != 0 {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Content != "second" || recs[1].Position != 2 {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}
}

func TestSheetLocalizedHeadersAndLiterals(t *testing.T) {
	path := writeSheet(t, [][]string{
		{"Дата", "Соцсеть", "Текст", "Статус"},
		{"2025-07-01", "vk", "привет", "Ожидает"},
		{"2025-07-02", "tg", "пока", "Одобрено"},
	})
	cfg := Config{
		Path: path,
		Columns: Columns{
			Content:   "Текст",
			Platform:  "Соцсеть",
			Scheduled: "Дата",
			Status:    "Статус",
		},
		Values: StatusValues{Pending: "Ожидает", Approved: "Одобрено", Rejected: "Отклонено"},
	}
	s, err := NewSheet(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	recs, err := s.FetchPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Content != "привет" {
		t.Fatalf("unexpected fetch: %+v", recs)
	}

	if err := s.WriteStatus(ctx, recs[0], record.StatusPending, record.StatusApproved); err != nil {
		t.Fatal(err)
	}
	rows := readSheet(t, path)
	if rows[1][3] != "Одобрено" {
		t.Fatalf("sheet literal is %q", rows[1][3])
	}
}

func TestSheetWriteIgnoresStalePosition(t *testing.T) {
	path := writeSheet(t, [][]string{
		{"content", "platform", "scheduled_date", "status"},
		{"target", "x", "2025-07-01", "pending"},
	})
	s, err := NewSheet(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	recs, err := s.FetchPending(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// A new row is inserted ahead of the fetched one, as a sheet editor
	// would do by hand.
	rows := readSheet(t, path)
	rows = append(rows[:1], append([][]string{{"newcomer", "x", "2025-06-30", "pending"}}, rows[1:]...)...)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.WriteStatus(ctx, recs[0], record.StatusPending, record.StatusRejected); err != nil {
		t.Fatal(err)
	}
	got := readSheet(t, path)
	if got[1][3] != "pending" {
		t.Fatalf("newcomer row was written: %q", got[1][3])
	}
	if got[2][3] != "rejected" {
		t.Fatalf("target row is %q", got[2][3])
	}
}

func TestSheetWriteAmbiguousIdentity(t *testing.T) {
	path := writeSheet(t, [][]string{
		{"content", "platform", "scheduled_date", "status"},
		{"twin", "x", "2025-07-01", "pending"},
		{"twin", "x", "2025-07-01", "pending"},
	})
	s, err := NewSheet(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	rec := record.Record{Content: "twin", Platform: "x", ScheduledAt: "2025-07-01"}
	err = s.WriteStatus(context.Background(), rec, record.StatusPending, record.StatusApproved)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ambiguous write: %v", err)
	}
	// Neither row was touched.
	for i, row := range readSheet(t, path)[1:] {
		if row[3] != "pending" {
			t.Fatalf("row %d changed: %q", i, row[3])
		}
	}
}

func TestSheetWriteConflictAndNotFound(t *testing.T) {
	path := writeSheet(t, [][]string{
		{"content", "platform", "scheduled_date", "status"},
		{"resolved", "x", "2025-07-01", "approved"},
	})
	s, err := NewSheet(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	rec := record.Record{Content: "resolved", Platform: "x", ScheduledAt: "2025-07-01"}
	if err := s.WriteStatus(ctx, rec, record.StatusPending, record.StatusRejected); !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	ghost := record.Record{Content: "ghost", Platform: "x", ScheduledAt: "2025-07-01"}
	if err := s.WriteStatus(ctx, ghost, record.StatusPending, record.StatusApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSheetEnsureSchemaCreatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.csv")
	s, err := NewSheet(Config{Path: path, Columns: Columns{ID: "id"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	rows := readSheet(t, path)
	want := []string{"id", "content", "platform", "scheduled_date", "status"}
	if len(rows) != 1 || len(rows[0]) != len(want) {
		t.Fatalf("unexpected header: %v", rows)
	}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Fatalf("header[%d] = %q, want %q", i, rows[0][i], want[i])
		}
	}
}

func TestSheetRequiresPath(t *testing.T) {
	if _, err := NewSheet(Config{}); err == nil {
		t.Fatalf("empty path accepted")
	}
}

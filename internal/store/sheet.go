package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/modqueue/modq/internal/record"
)

// Sheet adapts a CSV file with a header row, the shape of an exported
// spreadsheet. The file only supports positional writes, so WriteStatus
// re-reads it and locates the row by the record's identity at write time;
// a position remembered from an earlier fetch is never trusted.
type Sheet struct {
	mu   sync.Mutex
	path string
	cols Columns
	vals StatusValues
}

func NewSheet(config Config) (*Sheet, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sheet store requires a path")
	}
	return &Sheet{
		path: config.Path,
		cols: config.Columns.withDefaults(),
		vals: config.Values.withDefaults(),
	}, nil
}

func (s *Sheet) Close() error { return nil }

func (s *Sheet) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// EnsureSchema writes the header row if the file does not exist yet.
func (s *Sheet) EnsureSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	header := s.header()
	return s.writeAll(header, nil)
}

func (s *Sheet) header() []string {
	h := []string{s.cols.Content, s.cols.Platform, s.cols.Scheduled, s.cols.Status}
	if s.cols.ID != "" {
		h = append([]string{s.cols.ID}, h...)
	}
	return h
}

// colIndex maps configured column names onto their position in the header.
type colIndex struct {
	id, content, platform, scheduled, status int
}

func (s *Sheet) index(header []string) (colIndex, error) {
	idx := colIndex{id: -1, content: -1, platform: -1, scheduled: -1, status: -1}
	for i, name := range header {
		switch name {
		case s.cols.ID:
			idx.id = i
		case s.cols.Content:
			idx.content = i
		case s.cols.Platform:
			idx.platform = i
		case s.cols.Scheduled:
			idx.scheduled = i
		case s.cols.Status:
			idx.status = i
		}
	}
	if idx.content < 0 || idx.platform < 0 || idx.scheduled < 0 || idx.status < 0 {
		return idx, fmt.Errorf("%w: sheet header %v lacks configured columns", ErrUnavailable, header)
	}
	return idx, nil
}

func (s *Sheet) readAll() ([]string, [][]string, colIndex, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, colIndex{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = f.Close() }()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, colIndex{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, nil, colIndex{}, fmt.Errorf("%w: sheet has no header row", ErrUnavailable)
	}
	idx, err := s.index(rows[0])
	if err != nil {
		return nil, nil, colIndex{}, err
	}
	return rows[0], rows[1:], idx, nil
}

// writeAll replaces the file atomically via rename, so a crashed write
// never leaves a half-written sheet. Callers hold s.mu.
func (s *Sheet) writeAll(header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".sheet-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	w := csv.NewWriter(tmp)
	_ = w.Write(header)
	_ = w.WriteAll(rows)
	w.Flush()
	// Underlying write errors are sticky on the csv.Writer.
	if err := errors.Join(w.Error(), tmp.Close()); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Sheet) FetchPending(_ context.Context) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, rows, idx, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []record.Record
	for i, row := range rows {
		st, ok := s.vals.Canonical(field(row, idx.status))
		if !ok || st != record.StatusPending {
			continue
		}
		r := record.Record{
			Content:     field(row, idx.content),
			Platform:    field(row, idx.platform),
			ScheduledAt: field(row, idx.scheduled),
			Status:      record.StatusPending,
			Position:    i,
		}
		if idx.id >= 0 {
			r.NativeID = field(row, idx.id)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Sheet) WriteStatus(_ context.Context, rec record.Record, from, to record.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	header, rows, idx, err := s.readAll()
	if err != nil {
		return err
	}

	match := -1
	for i, row := range rows {
		if !s.matches(row, idx, rec) {
			continue
		}
		if match >= 0 {
			// Two rows share the identity; refusing beats guessing.
			return fmt.Errorf("%w: identity matches multiple sheet rows", ErrConflict)
		}
		match = i
	}
	if match < 0 {
		return fmt.Errorf("%w: no sheet row matches identity", ErrNotFound)
	}
	st, _ := s.vals.Canonical(field(rows[match], idx.status))
	if st != from {
		return fmt.Errorf("%w: have %s, want %s", ErrConflict, st, from)
	}
	rows[match][idx.status] = s.vals.Literal(to)
	return s.writeAll(header, rows)
}

func (s *Sheet) matches(row []string, idx colIndex, rec record.Record) bool {
	if idx.id >= 0 && rec.NativeID != "" {
		return field(row, idx.id) == rec.NativeID
	}
	return field(row, idx.content) == rec.Content &&
		field(row, idx.platform) == rec.Platform &&
		field(row, idx.scheduled) == rec.ScheduledAt
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

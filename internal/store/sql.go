package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/modqueue/modq/internal/record"
)

// sqlAdapter implements Adapter on database/sql. The sqlite and postgres
// constructors only differ in driver, DSN and placeholder style.
type sqlAdapter struct {
	db          *sql.DB
	cols        Columns
	vals        StatusValues
	placeholder func(n int) string // 1-based
}

func qident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *sqlAdapter) Close() error { return s.db.Close() }

func (s *sqlAdapter) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *sqlAdapter) EnsureSchema(ctx context.Context) error {
	var defs []string
	if s.cols.ID != "" {
		defs = append(defs, qident(s.cols.ID)+" TEXT PRIMARY KEY")
	}
	defs = append(defs,
		qident(s.cols.Content)+" TEXT NOT NULL",
		qident(s.cols.Platform)+" TEXT NOT NULL",
		qident(s.cols.Scheduled)+" TEXT NOT NULL",
		qident(s.cols.Status)+" TEXT NOT NULL",
	)
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qident(s.cols.Table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *sqlAdapter) FetchPending(ctx context.Context) ([]record.Record, error) {
	sel := []string{qident(s.cols.Content), qident(s.cols.Platform), qident(s.cols.Scheduled), qident(s.cols.Status)}
	if s.cols.ID != "" {
		sel = append([]string{qident(s.cols.ID)}, sel...)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s, %s",
		strings.Join(sel, ", "), qident(s.cols.Table),
		qident(s.cols.Status), s.placeholder(1),
		qident(s.cols.Scheduled), qident(s.cols.Platform))
	rows, err := s.db.QueryContext(ctx, q, s.vals.Pending)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch pending: %v", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []record.Record
	for rows.Next() {
		var r record.Record
		var lit string
		var dest []any
		if s.cols.ID != "" {
			dest = append(dest, &r.NativeID)
		}
		dest = append(dest, &r.Content, &r.Platform, &r.ScheduledAt, &lit)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scan pending row: %v", ErrUnavailable, err)
		}
		st, ok := s.vals.Canonical(lit)
		if !ok {
			st = record.StatusPending
		}
		r.Status = st
		r.Position = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: fetch pending: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *sqlAdapter) WriteStatus(ctx context.Context, rec record.Record, from, to record.Status) error {
	where, args := s.identity(rec)
	n := len(args)
	q := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s AND %s = %s",
		qident(s.cols.Table),
		qident(s.cols.Status), s.placeholder(n+1),
		where,
		qident(s.cols.Status), s.placeholder(n+2))
	// Both backends use numbered placeholders ($N / ?N), so argument
	// order follows numbering, not position in the query text.
	args = append(args, s.vals.Literal(to), s.vals.Literal(from))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: write status: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: write status: %v", ErrUnavailable, err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing matched: distinguish a vanished record from a lost race.
	sq := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		qident(s.cols.Status), qident(s.cols.Table), where)
	var lit string
	idArgs := args[:n]
	switch err := s.db.QueryRowContext(ctx, sq, idArgs...).Scan(&lit); {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: no row matches identity", ErrNotFound)
	case err != nil:
		return fmt.Errorf("%w: write status recheck: %v", ErrUnavailable, err)
	}
	have, _ := s.vals.Canonical(lit)
	return fmt.Errorf("%w: have %s, want %s", ErrConflict, have, from)
}

// identity builds the WHERE clause locating rec. Native id wins; otherwise
// the natural key triple. Positions are never part of the clause.
func (s *sqlAdapter) identity(rec record.Record) (string, []any) {
	if s.cols.ID != "" && rec.NativeID != "" {
		return fmt.Sprintf("%s = %s", qident(s.cols.ID), s.placeholder(1)), []any{rec.NativeID}
	}
	where := fmt.Sprintf("%s = %s AND %s = %s AND %s = %s",
		qident(s.cols.Content), s.placeholder(1),
		qident(s.cols.Platform), s.placeholder(2),
		qident(s.cols.Scheduled), s.placeholder(3))
	return where, []any{rec.Content, rec.Platform, rec.ScheduledAt}
}

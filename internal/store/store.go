// Package store adapts external tabular stores (SQL tables, a CSV sheet,
// or memory for tests) to the engine's fetch/write-back contract. Writes
// are addressed by the record's durable identity, never by a row position
// captured at fetch time.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/modqueue/modq/internal/record"
)

var (
	// ErrUnavailable marks a transient store failure. Callers may retry
	// with backoff; in-memory state is not corrupted.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound means no record matches the given identity.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means the record exists but its status no longer matches
	// the expected one, i.e. the decision was already applied elsewhere.
	ErrConflict = errors.New("record status changed")
)

// Adapter is the minimal contract the engine needs from a backing store.
type Adapter interface {
	EnsureSchema(ctx context.Context) error
	// FetchPending returns records with pending status in store-native
	// order. Position is set to each record's place in that order.
	FetchPending(ctx context.Context) ([]record.Record, error)
	// WriteStatus applies a status transition to the record identified by
	// rec's native id (when present) or its natural key fields. The write
	// only succeeds while the stored status still equals from; otherwise
	// ErrConflict (status moved on) or ErrNotFound (record gone) is
	// returned. Row positions cached at fetch time are never trusted.
	WriteStatus(ctx context.Context, rec record.Record, from, to record.Status) error
	Ping(ctx context.Context) error
	Close() error
}

// Columns maps the engine's record fields onto store-native column names.
// Source deployments disagreed on naming (and some wrote to a hardcoded
// column offset), so the mapping is configuration, not convention.
type Columns struct {
	Table     string `toml:"table,omitempty" mapstructure:"table"`
	ID        string `toml:"id,omitempty" mapstructure:"id"` // optional immutable id column
	Content   string `toml:"content,omitempty" mapstructure:"content"`
	Platform  string `toml:"platform,omitempty" mapstructure:"platform"`
	Scheduled string `toml:"scheduled,omitempty" mapstructure:"scheduled"`
	Status    string `toml:"status,omitempty" mapstructure:"status"`
}

func (c Columns) withDefaults() Columns {
	if c.Table == "" {
		c.Table = "posts"
	}
	if c.Content == "" {
		c.Content = "content"
	}
	if c.Platform == "" {
		c.Platform = "platform"
	}
	if c.Scheduled == "" {
		c.Scheduled = "scheduled_date"
	}
	if c.Status == "" {
		c.Status = "status"
	}
	return c
}

// StatusValues holds the store-native literals for each canonical status,
// e.g. localized strings in a legacy sheet.
type StatusValues struct {
	Pending  string `toml:"pending,omitempty" mapstructure:"pending"`
	Approved string `toml:"approved,omitempty" mapstructure:"approved"`
	Rejected string `toml:"rejected,omitempty" mapstructure:"rejected"`
}

func (v StatusValues) withDefaults() StatusValues {
	if v.Pending == "" {
		v.Pending = string(record.StatusPending)
	}
	if v.Approved == "" {
		v.Approved = string(record.StatusApproved)
	}
	if v.Rejected == "" {
		v.Rejected = string(record.StatusRejected)
	}
	return v
}

// Literal converts a canonical status to the store's literal.
func (v StatusValues) Literal(s record.Status) string {
	switch s {
	case record.StatusApproved:
		return v.Approved
	case record.StatusRejected:
		return v.Rejected
	default:
		return v.Pending
	}
}

// Canonical converts a store literal back to a canonical status.
// Unknown literals map to ok=false.
func (v StatusValues) Canonical(lit string) (record.Status, bool) {
	switch lit {
	case v.Pending:
		return record.StatusPending, true
	case v.Approved:
		return record.StatusApproved, true
	case v.Rejected:
		return record.StatusRejected, true
	}
	return "", false
}

// Config represents configuration for the supported store types.
type Config struct {
	Type string `toml:"type" mapstructure:"type"` // "sqlite", "postgres", "sheet", "memory"

	// SQLite / sheet specific.
	Path string `toml:"path,omitempty" mapstructure:"path"`

	// PostgreSQL specific.
	Host     string `toml:"host,omitempty" mapstructure:"host"`
	Port     int    `toml:"port,omitempty" mapstructure:"port"`
	Database string `toml:"database,omitempty" mapstructure:"database"`
	Username string `toml:"username,omitempty" mapstructure:"username"`
	Password string `toml:"password,omitempty" mapstructure:"password"`
	SSLMode  string `toml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
	DSN      string `toml:"dsn,omitempty" mapstructure:"dsn"` // overrides host/port fields

	// Connection pooling.
	MaxOpenConns int           `toml:"max_open_conns,omitempty" mapstructure:"max_open_conns"`
	MaxIdleConns int           `toml:"max_idle_conns,omitempty" mapstructure:"max_idle_conns"`
	ConnMaxAge   time.Duration `toml:"conn_max_age,omitempty" mapstructure:"conn_max_age"`

	Columns Columns      `toml:"columns,omitempty" mapstructure:"columns"`
	Values  StatusValues `toml:"values,omitempty" mapstructure:"values"`
}

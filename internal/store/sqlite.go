package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"
)

// SQLite adapts a local SQLite table.
type SQLite struct {
	sqlAdapter
	config Config
}

// NewSQLite opens (or creates) the database at config.Path. An empty path
// selects an in-memory database, which is only useful for tests.
func NewSQLite(config Config) (*SQLite, error) {
	path := config.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(1) // SQLite works best with a single connection
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxAge > 0 {
		db.SetConnMaxLifetime(config.ConnMaxAge)
	}

	s := &SQLite{
		sqlAdapter: sqlAdapter{
			db:   db,
			cols: config.Columns.withDefaults(),
			vals: config.Values.withDefaults(),
			placeholder: func(n int) string {
				return "?" + strconv.Itoa(n)
			},
		},
		config: config,
	}

	if err := s.db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return s, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres adapts a PostgreSQL table via the pgx stdlib driver.
type Postgres struct {
	sqlAdapter
	config Config
}

// NewPostgres connects using config.DSN when set, otherwise the discrete
// host/port/credential fields.
func NewPostgres(config Config) (*Postgres, error) {
	dsn := config.DSN
	if dsn == "" {
		if config.Host == "" {
			config.Host = "localhost"
		}
		if config.Port == 0 {
			config.Port = 5432
		}
		if config.SSLMode == "" {
			config.SSLMode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxAge > 0 {
		db.SetConnMaxLifetime(config.ConnMaxAge)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &Postgres{
		sqlAdapter: sqlAdapter{
			db:   db,
			cols: config.Columns.withDefaults(),
			vals: config.Values.withDefaults(),
			placeholder: func(n int) string {
				return "$" + strconv.Itoa(n)
			},
		},
		config: config,
	}

	if err := s.db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgresql database: %w", err)
	}
	return s, nil
}

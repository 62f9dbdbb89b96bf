// Package modq exposes the embeddable approval-queue engine: poll a
// tabular store for pending posts, prompt an operator over chat, write the
// verdict back by durable identity.
package modq

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/modqueue/modq/internal/config"
	"github.com/modqueue/modq/internal/engine"
	"github.com/modqueue/modq/internal/metrics"
	"github.com/modqueue/modq/internal/record"
	iapi "github.com/modqueue/modq/internal/server"
	"github.com/modqueue/modq/internal/snapshot"
	"github.com/modqueue/modq/internal/store"
	"github.com/modqueue/modq/internal/transport"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Record = record.Record

type Status = record.Status

type Verdict = record.Verdict

const (
	StatusPending  = record.StatusPending
	StatusApproved = record.StatusApproved
	StatusRejected = record.StatusRejected

	VerdictApprove = record.VerdictApprove
	VerdictReject  = record.VerdictReject
)

type Ref = snapshot.Ref

type Entry = snapshot.Entry

type Store = store.Adapter

type StoreConfig = store.Config

type Transport = transport.Transport

type TransportConfig = transport.Config

type Engine = engine.Engine

type Options = engine.Options

type Config = cfg.Config

// NewStore builds a record store adapter from config ("sqlite",
// "postgres", "sheet" or "memory").
func NewStore(c StoreConfig) (Store, error) { return store.New(c) }

// NewTransport builds a chat transport from config ("telegram" or
// "memory").
func NewTransport(c TransportConfig) (Transport, error) { return transport.New(c) }

// NewEngine wires a store and a transport into an engine.
func NewEngine(st Store, tr Transport, opts Options) (*Engine, error) {
	return engine.New(st, tr, opts)
}

// ParseRef parses a surrogate ref string ("<gen>-<seq>").
func ParseRef(s string) (Ref, error) { return snapshot.ParseRef(s) }

// LoadConfig reads a TOML config file; empty path yields defaults.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the daemon API.
func NewHTTPServer(addr, basePath string, eng *Engine, st Store) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, eng, st)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

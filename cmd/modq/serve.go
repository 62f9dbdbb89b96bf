package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modqueue/modq"
	"github.com/modqueue/modq/internal/engine"
)

// runServe boots the daemon: config, logger, store, transport, engine,
// HTTP API. Startup failures (bad credentials, unreachable store) abort
// with a diagnostic and a non-zero exit; there is no partial startup.
func runServe(configPath string, f ServeFlags) error {
	cfg, err := modq.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if f.Listen != "" {
		cfg.Server.Listen = f.Listen
	}

	logger, logCloser := cfg.Log.New("modq")
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	st, err := modq.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("store schema: %w", err)
	}
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}

	tr, err := modq.NewTransport(cfg.Transport)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer func() { _ = tr.Close() }()

	eng, err := engine.New(st, tr, engine.Options{
		Schedule:      cfg.Schedule,
		StoreTimeout:  cfg.StoreTimeout,
		WriteRetries:  cfg.WriteRetries,
		RetryInterval: cfg.RetryInterval,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if err := modq.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Stop()

	srv, err := modq.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, eng, st)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("modq daemon started",
		"listen", cfg.Server.Listen, "base", cfg.Server.BasePath,
		"store", cfg.Store.Type, "transport", cfg.Transport.Type,
		"poll", eng.Period().String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", "signal", s.String())

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return nil
}

// Package app wires the Beacon server runtime: config, logging, the durable
// log store, and the realtime gateway behind a single HTTP listener.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"beacon/cmd/internal/relay"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Beacon server runtime: it owns HTTP server wiring and the relay
// gateway dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	gw *relay.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbPool, dbEnabled, logStore, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	roster := relay.NewRoster(log)
	sequencer := relay.NewSequencer(log, logStore)
	reconciler := relay.NewReconciler(log, logStore)
	gw := relay.NewGateway(log, roster, sequencer, reconciler)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		gw:        gw,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.gw)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore picks the durable log backend: Postgres when a database URL is
// configured, the single-file SQLite log otherwise, in-memory on request.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, relay.LogStore, error) {
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, false, nil, err
		}

		// Ownership model:
		// - app owns pool lifecycle
		// - PostgresStore.Close() is a no-op
		logStore, err := relay.NewPostgresStore(pool) // default schema "beacon"
		if err != nil {
			pool.Close()
			return nil, nil, false, nil, err
		}
		if err := logStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, false, nil, err
		}

		log.Info("store.postgres")
		return dbStore{pool: pool, logStore: logStore}, pool, true, logStore, nil
	}

	if cfg.SQLitePath == SQLitePathMemory {
		log.Info("store.memory")
		return nopStore{}, nil, false, relay.NewMemoryStore(), nil
	}

	logStore, err := relay.OpenSQLiteStore(cfg.SQLitePath)
	if err != nil {
		return nil, nil, false, nil, err
	}

	log.Info("store.sqlite", "path", cfg.SQLitePath)
	return sqliteStore{logStore: logStore}, nil, false, logStore, nil
}

type dbStore struct {
	pool     *pgxpool.Pool
	logStore relay.LogStore
}

func (s dbStore) Close(_ context.Context) error {
	// PostgresStore.Close() is a no-op by design (pool is owned here).
	if s.logStore != nil {
		_ = s.logStore.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type sqliteStore struct {
	logStore relay.LogStore
}

func (s sqliteStore) Close(_ context.Context) error {
	if s.logStore != nil {
		return s.logStore.Close()
	}
	return nil
}

// Command ledger-daemon loads a YAML configuration file, opens the
// configured EventStore backend, rebuilds the ledger's projections from
// its full event history, starts the periodic Merkle-anchoring
// scheduler, optionally exposes the read-only projection API over
// HTTP, and shuts down gracefully on SIGTERM or SIGINT.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tedy97123/accountabiltyme/internal/anchor"
	"github.com/tedy97123/accountabiltyme/internal/anchor/scheduler"
	"github.com/tedy97123/accountabiltyme/internal/config"
	"github.com/tedy97123/accountabiltyme/internal/eventstore/memory"
	"github.com/tedy97123/accountabiltyme/internal/eventstore/postgres"
	"github.com/tedy97123/accountabiltyme/internal/eventstore/sqlite"
	"github.com/tedy97123/accountabiltyme/internal/httpapi"
	"github.com/tedy97123/accountabiltyme/internal/ledger"
	"github.com/tedy97123/accountabiltyme/internal/signer"
)

func main() {
	var configPath string
	var jwtPublicKeyPath string

	flag.StringVar(&configPath, "config", "ledger-daemon.yaml", "path to the YAML daemon config file")
	flag.StringVar(&jwtPublicKeyPath, "jwt-pubkey", "", "path to PEM RSA public key for JWT validation on the optional HTTP surface (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger-daemon: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("accountabilityme ledger daemon starting",
		slog.String("eventstore_driver", cfg.EventStoreDriver),
		slog.Bool("anchor_enabled", cfg.Anchor.Enabled),
		slog.Bool("production", cfg.Production),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Production {
		kp := signer.Keypair{PrivateKey: cfg.SystemPrivateKey, PublicKey: cfg.SystemPublicKey}
		if err := signer.RoundTrip(kp); err != nil {
			logger.Error("system keypair failed round-trip validation", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("system keypair validated")
	}

	store, closeStore, err := openEventStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open event store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	svc, err := ledger.LoadFromStore(ctx, store)
	if err != nil {
		logger.Error("ledger failed startup verification; refusing to serve a corrupted chain", slog.Any("error", err))
		os.Exit(1)
	}
	count, err := store.GetEventCount(ctx)
	if err != nil {
		logger.Error("failed to count events", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("ledger loaded and verified", slog.Int64("event_count", count))

	anchorSvc := anchor.NewService()

	var sched *scheduler.Scheduler
	if cfg.Anchor.Enabled {
		sched = scheduler.New(store, anchorSvc,
			scheduler.WithBatchSize(cfg.Anchor.BatchSize),
			scheduler.WithInterval(time.Duration(cfg.Anchor.IntervalSeconds)*time.Second),
			scheduler.WithMinUnanchored(cfg.Anchor.MinEvents),
			scheduler.WithLogger(logger),
		)
		sched.Start()
		defer sched.Stop()
		logger.Info("anchor scheduler started",
			slog.Int("batch_size", cfg.Anchor.BatchSize),
			slog.Int("interval_seconds", cfg.Anchor.IntervalSeconds),
			slog.Int("min_events", cfg.Anchor.MinEvents),
		)
	} else {
		logger.Warn("anchor scheduler disabled; events will not be Merkle-anchored")
	}

	var httpServer *http.Server
	var httpErrCh chan error // nil (never ready) while the HTTP surface is disabled
	if cfg.HTTPAddr != "" {
		var pubKey *rsa.PublicKey
		if jwtPublicKeyPath != "" {
			pem, err := os.ReadFile(jwtPublicKeyPath)
			if err != nil {
				logger.Error("failed to read JWT public key", slog.Any("error", err))
				os.Exit(1)
			}
			pubKey, err = jwt.ParseRSAPublicKeyFromPEM(pem)
			if err != nil {
				logger.Error("failed to parse JWT public key", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("JWT validation enabled on projection API")
		} else {
			logger.Warn("jwt-pubkey not configured; projection API authentication disabled")
		}

		apiSrv := httpapi.NewServer(svc, store)
		httpServer = &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      httpapi.NewRouter(apiSrv, pubKey),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		httpErrCh = make(chan error, 1)
		go func() {
			logger.Info("projection HTTP API listening", slog.String("addr", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				httpErrCh <- fmt.Errorf("HTTP server: %w", err)
			}
			close(httpErrCh)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("projection HTTP API error", slog.Any("error", err))
		}
	}

	logger.Info("shutting down")
	cancel()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", slog.Any("error", err))
		}
	}

	logger.Info("ledger daemon exited cleanly")
}

// openEventStore constructs the EventStore named by cfg.EventStoreDriver
// and returns a close function that releases its resources, regardless
// of which driver was selected.
func openEventStore(ctx context.Context, cfg *config.Config) (ledger.EventStore, func(), error) {
	switch cfg.EventStoreDriver {
	case "memory":
		return memory.New(), func() {}, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		dsn := postgresDSN(cfg.Database)
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown eventstore_driver %q", cfg.EventStoreDriver)
	}
}

func postgresDSN(db config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		db.User, db.Password, db.Host, db.Port, db.Name, db.SSLMode, db.ConnectTimeoutSeconds)
}

// newLogger constructs a *slog.Logger that writes log records to stderr
// at the requested minimum level, as text when format is "text" and as
// JSON otherwise.
func newLogger(level, format string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: l}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

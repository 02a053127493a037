// Command magiclink-server serves passwordless magic-link login for one realm.
//
// Configuration is read from MAGICLINK_* environment variables, optionally
// seeded from a .env file:
//
//	MAGICLINK_REALM_NAME=acme
//	MAGICLINK_SIGNING_KEY=<at least 32 bytes>
//	MAGICLINK_BASE_URL=https://id.example.com
//	MAGICLINK_REALM_FILE=realm.yaml
//	MAGICLINK_STORE=postgres MAGICLINK_DATABASE_URL=postgres://...
//	MAGICLINK_REDIS_ADDRS=localhost:6379
//	MAGICLINK_NOTIFIER=smtp MAGICLINK_SMTP_HOST=... MAGICLINK_SMTP_FROM=...
//
// Endpoints are those of package httpapi plus /healthz and /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/magiclink"
	"github.com/MrEthical07/magiclink/httpapi"
	"github.com/MrEthical07/magiclink/memhost"
	"github.com/MrEthical07/magiclink/metrics/export/prometheus"
	"github.com/MrEthical07/magiclink/middleware"
	"github.com/MrEthical07/magiclink/notify"
	"github.com/MrEthical07/magiclink/pgstore"
	"github.com/MrEthical07/magiclink/realmfile"
)

func main() {
	dotenv := flag.String("env-file", "", "optional .env file loaded before the environment")
	flag.Parse()

	if err := run(*dotenv); err != nil {
		slog.Error("magiclink-server stopped", "error", err)
		os.Exit(1)
	}
}

// host bundles the collaborators backing the engine.
type host struct {
	users   magiclink.UserDirectory
	clients magiclink.ClientRegistry
	groups  magiclink.GroupDirectory
	markers magiclink.UsedTokenStore
	seed    realmfile.Target
	ping    func(context.Context) error
	close   func()
}

func run(dotenv string) error {
	cfg, err := loadConfig(dotenv)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	lint := engineCfg.Lint()
	for _, w := range lint {
		logger.Info("config lint", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}
	if threshold, ok := cfg.lintThreshold(); ok {
		if err := lint.AsError(threshold); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openHost(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer h.close()

	if cfg.RealmFile != "" {
		realm, err := realmfile.LoadFile(cfg.RealmFile)
		if err != nil {
			return err
		}
		if realm.Name != cfg.RealmName {
			return fmt.Errorf("realm file %s describes realm %q, want %q", cfg.RealmFile, realm.Name, cfg.RealmName)
		}
		if err := realm.Apply(ctx, h.seed, uuid.NewString); err != nil {
			return err
		}
		logger.Info("realm seeded", "file", cfg.RealmFile, "clients", len(realm.Clients), "users", len(realm.Users))
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	b := magiclink.New().
		WithConfig(engineCfg).
		WithUserDirectory(h.users).
		WithClientRegistry(h.clients).
		WithGroupDirectory(h.groups).
		WithSessionFactory(memhost.NewSessionFactory()).
		WithNotifier(notifier).
		WithNextStepResolver(memhost.RedirectResolver{}).
		WithAuditSink(magiclink.NewSlogSink(logger.With("component", "audit"))).
		WithLogger(logger)
	var rdb redis.UniversalClient
	if len(cfg.RedisAddrs) > 0 {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: cfg.RedisAddrs})
		defer rdb.Close()
		b.WithRedis(rdb)
	} else {
		b.WithUsedTokenStore(h.markers)
	}

	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("engine ready",
		"realm", engine.Realm(),
		"signing_algorithm", report.SigningAlgorithm,
		"marker_store", report.MarkerStore,
		"action_types", report.ActionTypes,
	)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := h.ping(r.Context()); err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", prometheus.NewPrometheusExporter(engine).Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestContext(cfg.TrustProxy))
		r.Use(middleware.NoStore)
		httpapi.Routes(r, engine, httpapi.Options{
			DeriveBaseURL: cfg.DeriveBaseURL,
			TrustProxy:    cfg.TrustProxy,
			Logger:        logger,
		})
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg serverConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.slogLevel()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openHost(ctx context.Context, cfg serverConfig, logger *slog.Logger) (*host, error) {
	switch cfg.Store {
	case "memory":
		dir := memhost.NewDirectory()
		return &host{
			users:   dir,
			clients: dir,
			groups:  dir,
			markers: magiclink.NewMemoryUsedTokenStore(),
			seed:    realmfile.Memory(dir),
			ping:    func(context.Context) error { return nil },
			close:   func() {},
		}, nil
	case "postgres":
		pgCfg, err := parsePostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		pool, err := pgstore.Connect(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		store, err := pgstore.New(pool, cfg.RealmName)
		if err != nil {
			pool.Close()
			return nil, err
		}
		go purgeMarkers(ctx, store, logger)
		return &host{
			users:   store,
			clients: store,
			groups:  store,
			markers: store,
			seed:    store,
			ping:    pool.Ping,
			close:   closePool(pool),
		}, nil
	default:
		return nil, fmt.Errorf("config: unknown store %q", cfg.Store)
	}
}

func closePool(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}

// purgeMarkers deletes expired single-use markers every few minutes.
func purgeMarkers(ctx context.Context, store *pgstore.Store, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpiredMarkers(ctx)
			if err != nil {
				logger.Warn("marker purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired markers purged", "count", n)
			}
		}
	}
}

func newNotifier(cfg serverConfig, logger *slog.Logger) (magiclink.Notifier, error) {
	switch cfg.Notifier {
	case "log":
		logger.Warn("links are logged, not delivered; use only for development")
		return notify.NewLogNotifier(logger), nil
	case "smtp":
		smtpCfg, err := parseSMTPConfig()
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return notify.NewSMTPNotifier(smtpCfg, nil, logger)
	case "postmark":
		pmCfg, err := parsePostmarkConfig()
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return notify.NewPostmarkNotifier(pmCfg, nil, logger)
	default:
		return nil, fmt.Errorf("config: unknown notifier %q", cfg.Notifier)
	}
}

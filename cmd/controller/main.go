// Package main is the entry point for the formplane controller: the HTTP API
// and the reconciliation engine in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"formplane/internal/config"
	"formplane/internal/controller"
	"formplane/internal/controller/handlers"
	"formplane/internal/coordinator"
	"formplane/internal/logger"
	"formplane/internal/observability"
	"formplane/internal/reconciler"
	"formplane/internal/runtime"
	"formplane/internal/runtime/fake"
	"formplane/internal/store"
	"formplane/internal/store/memory"
	"formplane/internal/store/postgres"
	"formplane/internal/store/sqlite"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting (postgres only)")
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	level, _ := cfg.Level()
	slogger := logger.NewWithLevel(level)
	slog.SetDefault(slogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Desired-state store
	st, err := openStore(ctx, cfg, *migrateFlag, slogger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	// Container runtime
	rt, closeRuntime, err := openRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to init runtime: %v", err)
	}
	defer closeRuntime()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "formplane-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slogger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Error("failed to shutdown metrics", "error", err)
		}
	}()
	if _, err := observability.RegisterEntityGauge(st); err != nil {
		slogger.Warn("failed to register entity gauge", "error", err)
	}

	engine := reconciler.New(st, rt, reconciler.Config{
		Workers:         cfg.EngineWorkers,
		Image:           cfg.ContainerImage,
		JobTimeout:      cfg.JobTimeout,
		ResyncInterval:  cfg.ResyncInterval,
		StatusRetention: cfg.StatusRetention,
		Policy: reconciler.Policy{
			UnavailableRetries:  cfg.UnavailableRetries,
			MaxAttempts:         cfg.MaxAttempts,
			NameConflictRetries: cfg.NameConflicts,
			InitialBackoff:      cfg.InitialBackoff,
			MaxBackoff:          cfg.MaxBackoff,
		},
	}, slogger)

	coord := coordinator.New(st, engine, slogger)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, handlers.Dependencies{
		Service: coord,
		Store:   st,
		Runtime: rt,
		Started: engine.Started(),
		Logger:  slogger,
	}, controller.Options{
		APIToken:       cfg.APIToken,
		RateLimit:      cfg.RateLimit,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        metricsHandler,
		Logger:         slogger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := engine.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		slogger.Info("formplane controller starting",
			"addr", addr,
			"store", cfg.StoreDriver,
			"runtime", cfg.Runtime,
		)
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		slogger.Error("controller stopped with error", "error", err)
		os.Exit(1)
	}
	slogger.Info("controller exited properly")
}

// openStore builds the configured backend.
func openStore(ctx context.Context, cfg *config.Config, migrate bool, slogger *slog.Logger) (store.EntityStore, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		st, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if migrate {
			slogger.Info("running database migrations")
			if err := postgres.Migrate(st.DB()); err != nil {
				st.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return st, nil
	case config.StoreSQLite:
		return sqlite.Open(cfg.DatabaseURL)
	case config.StoreMemory:
		slogger.Warn("using the in-memory store; state is lost on exit")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openRuntime builds the configured container runtime and its cleanup.
func openRuntime(cfg *config.Config) (runtime.Runtime, func(), error) {
	switch cfg.Runtime {
	case config.RuntimeDocker:
		rt, err := runtime.NewDockerRuntime(cfg.StopTimeout)
		if err != nil {
			return nil, nil, err
		}
		return rt, func() { rt.Close() }, nil
	case config.RuntimeFake:
		return fake.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
}

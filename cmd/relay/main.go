package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aevon-lab/segment-relay/internal/catalog"
	corecfg "github.com/aevon-lab/segment-relay/internal/core/config"
	"github.com/aevon-lab/segment-relay/internal/core/storage"
	"github.com/aevon-lab/segment-relay/internal/core/storage/memory"
	"github.com/aevon-lab/segment-relay/internal/core/storage/postgres"
	"github.com/aevon-lab/segment-relay/internal/dispatch"
	"github.com/aevon-lab/segment-relay/internal/guest"
	"github.com/aevon-lab/segment-relay/internal/identity"
	"github.com/aevon-lab/segment-relay/internal/jobs"
	"github.com/aevon-lab/segment-relay/internal/migrations"
	"github.com/aevon-lab/segment-relay/internal/server"
	"github.com/aevon-lab/segment-relay/internal/tracking"
	"github.com/aevon-lab/segment-relay/internal/transport/logging"
	"github.com/aevon-lab/segment-relay/internal/transport/segment"
)

// actorBackend bundles what the relay reads from the host database.
type actorBackend interface {
	storage.ActorStore
	identity.SSOLookup
}

func main() {
	configPath := flag.String("config", "relay.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Mode == "release" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}
	slog.Info("Loaded config",
		"database", cfg.Database.Type,
		"tracking_enabled", cfg.Tracking.Enabled,
		"transport", cfg.Tracking.Transport,
		"user_id_source", cfg.Tracking.Source(),
	)

	// 2. Initialize Storage
	var (
		db       *sql.DB
		actors   actorBackend
		sessions guest.Store
	)
	switch cfg.Database.Type {
	case "postgres":
		db, err = postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		// 2.1. Run Database Migrations
		if err := migrations.RunMigrations(db, cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}

		actorAdapter, err := postgres.NewActorAdapter(db)
		if err != nil {
			slog.Error("Failed to initialize actor storage", "error", err)
			os.Exit(1)
		}
		defer actorAdapter.Close()
		actors = actorAdapter

		sessionAdapter, err := postgres.NewSessionAdapter(db)
		if err != nil {
			slog.Error("Failed to initialize session storage", "error", err)
			os.Exit(1)
		}
		defer sessionAdapter.Close()
		sessions = sessionAdapter

	case "memory":
		actorStore, err := memory.LoadActorStore(cfg.Database.ActorsFile)
		if err != nil {
			slog.Error("Failed to initialize actor storage", "actors_file", cfg.Database.ActorsFile, "error", err)
			os.Exit(1)
		}
		if cfg.Database.ActorsFile == "" {
			slog.Warn("No database.actors_file set, the in-memory actor store is empty")
		}
		actors = actorStore
		sessions = guest.NewMemoryStore(cfg.Guest.SessionCacheSize)
		slog.Warn("Running with in-memory storage, guest sessions are lost on restart")
	}

	// 3. Initialize Catalog
	cat, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		slog.Error("Failed to load catalog", "dir", cfg.Catalog.Dir, "error", err)
		os.Exit(1)
	}
	slog.Info("Catalog loaded", "triggers", cat.Triggers())

	// 4. Initialize Identity Resolution
	resolver := identity.NewResolver(identity.Options{
		Source:         cfg.Tracking.Source(),
		InternalDomain: cfg.Tracking.InternalDomain,
		Secret:         cfg.Tracking.AnonymousSecret,
	}, guest.NewRegistry(), actors)

	// 5. Initialize Dispatcher
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var factory dispatch.TransportFactory
	switch cfg.Tracking.Transport {
	case "log":
		factory = logging.NewFactory(slog.Default())
	default:
		factory = segment.NewFactory(segment.Options{
			Endpoint:       cfg.Tracking.Endpoint,
			BatchSize:      cfg.Tracking.BatchSize,
			FlushInterval:  cfg.Tracking.FlushIntervalDuration(),
			RequestTimeout: cfg.Tracking.RequestTimeoutDuration(),
		})
	}

	dispatcher := dispatch.New(
		dispatch.Settings{Enabled: cfg.Tracking.Enabled, WriteKey: cfg.Tracking.WriteKey},
		factory,
		dispatch.WithRecorder(dispatch.NewCollector(reg)),
	)
	slog.Info("Dispatcher initialized", "enabled", dispatcher.Enabled())

	// 6. Initialize Jobs
	identifyJob := jobs.NewIdentifyJob(actors, resolver, dispatcher)
	pool := jobs.NewPool(jobs.PoolConfig{
		WorkerCount: cfg.Jobs.WorkerCount,
		QueueSize:   cfg.Jobs.QueueSize,
		Registerer:  reg,
	}, map[string]jobs.Handler{
		jobs.NameIdentify: identifyJob.Handle,
	})

	// 7. Initialize Server
	var health server.HealthChecker
	if db != nil {
		health = db
	}
	var opts []server.Option
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(cfg.Metrics.Path, reg))
	}
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), health, cfg.Server.Mode, opts...)

	handler := tracking.NewHandler(
		tracking.NewService(cat, resolver, dispatcher),
		actors,
		sessions,
		pool,
		cfg.Server.MaxBodySizeMB,
	)
	handler.RegisterRoutes(srv.Engine)

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Jobs outlive ctx so queued work can still reach the database while draining.
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	defer jobsCancel()
	pool.Start(jobsCtx)

	if cfg.Jobs.BackfillOnStart {
		if dispatcher.Enabled() {
			go func() {
				n, err := jobs.NewBackfill(actors, pool, cfg.Jobs.BackfillPageSize).Run(ctx)
				if err != nil {
					slog.Error("Identify backfill stopped", "enqueued", n, "error", err)
					return
				}
				slog.Info("Identify backfill finished", "enqueued", n)
			}()
		} else {
			slog.Info("Identify backfill skipped, tracking is disabled")
		}
	}

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
		cancel()
	}

	// Drain queued jobs before flushing the analytics client they feed.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := pool.Stop(shutdownCtx); err != nil {
		slog.Error("Job pool did not drain", "error", err)
	}
	jobsCancel()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Error("Dispatcher did not flush", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

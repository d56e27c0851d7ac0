// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/archive"
	"github.com/opengouv/datasync/internal/catalog"
	"github.com/opengouv/datasync/internal/config"
	"github.com/opengouv/datasync/internal/logging"
	"github.com/opengouv/datasync/internal/metrics"
	"github.com/opengouv/datasync/internal/notify"
	notifypubsub "github.com/opengouv/datasync/internal/notify/pubsub"
	"github.com/opengouv/datasync/internal/parser"
	"github.com/opengouv/datasync/internal/store"
	memorystore "github.com/opengouv/datasync/internal/store/memory"
	pgstore "github.com/opengouv/datasync/internal/store/postgres"
	"github.com/opengouv/datasync/internal/syncer"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the commands that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     store.Store
	archive   archive.Provider
	publisher notify.Publisher
	catalog   *catalog.Client
	syncer    *syncer.Syncer
	processor *parser.Processor
	ops       *http.Server
}

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes the configured record store.
func (a *App) Store() store.Store { return a.store }

// Syncer returns the catalog sync orchestrator.
func (a *App) Syncer() *syncer.Syncer { return a.syncer }

// Processor returns the resource processing orchestrator.
func (a *App) Processor() *parser.Processor { return a.processor }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// New creates and initializes an App from the loaded configuration. It is
// the central point for service initialization and fails fast if any critical
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	metrics.Init()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	arch, err := newArchive(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		st.Close()
		_ = arch.Close()
		return nil, err
	}

	client := catalog.NewClient(catalog.ClientConfig{
		BaseURL:   cfg.Catalog.BaseURL,
		UserAgent: cfg.Catalog.UserAgent,
		Timeout:   cfg.CatalogTimeout(),
	}, logger.Named("catalog"))

	a := &App{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		archive:   arch,
		publisher: publisher,
		catalog:   client,
		syncer: syncer.New(client, st, publisher, syncer.Config{
			PageSize: cfg.Sync.PageSize,
			Topic:    cfg.Notify.TopicName,
		}, logger.Named("syncer")),
		processor: parser.NewProcessor(st, client, arch, cfg.Sync.BatchSize, logger.Named("processor")),
	}

	if cfg.Ops.Enabled {
		a.startOpsServer()
	}

	logger.Info("application services initialized",
		zap.String("db_provider", cfg.DB.Provider),
		zap.String("archive_provider", cfg.Archive.Provider),
		zap.String("notify_provider", cfg.Notify.Provider),
	)
	return a, nil
}

func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.DB.Provider {
	case "postgres":
		logger.Info("connecting to PostgreSQL")
		st, err := pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		return st, nil
	case "memory":
		logger.Info("using in-memory store, data will not survive restarts")
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}
}

func newArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Provider, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		logger.Info("using GCS archive", zap.String("bucket", cfg.Archive.GCSBucket))
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize GCS client: %w", err)
		}
		return archive.NewGCS(client, cfg.Archive.GCSBucket, cfg.Archive.Prefix)
	case "local":
		logger.Info("using local archive", zap.String("dir", cfg.Archive.LocalDir))
		return archive.NewLocal(cfg.Archive.LocalDir, cfg.Archive.Prefix)
	case "noop":
		logger.Info("archiving disabled, raw downloads will be discarded")
		return &archive.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Publisher, error) {
	switch cfg.Notify.Provider {
	case "pubsub":
		logger.Info("connecting to Pub/Sub", zap.String("topic", cfg.Notify.TopicName))
		client, err := gpubsub.NewClient(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		return notifypubsub.New(client)
	case "noop":
		logger.Info("sync event publishing disabled")
		return &notify.NoOpPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", cfg.Notify.Provider)
	}
}

// startOpsServer serves health and metrics endpoints in the background for
// the lifetime of the process.
func (a *App) startOpsServer() {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.Handler())

	a.ops = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Ops.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("ops server listening", zap.Int("port", a.cfg.Ops.Port))
		if err := a.ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("ops server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down all services in the App container. It is called
// by a Cobra hook after the command finishes execution.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.ops.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown", zap.Error(err))
		}
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("close publisher", zap.Error(err))
	}
	if err := a.archive.Close(); err != nil {
		a.logger.Warn("close archive", zap.Error(err))
	}
	a.store.Close()

	// Best effort, logging itself may be failing here.
	_ = a.logger.Sync()
}

// Package app initializes and holds the long-lived services of the
// harvester, acting as a dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/thread-harvester/internal/api"
	"github.com/JakeFAU/thread-harvester/internal/checkpoint"
	"github.com/JakeFAU/thread-harvester/internal/config"
	"github.com/JakeFAU/thread-harvester/internal/export"
	"github.com/JakeFAU/thread-harvester/internal/progress"
	"github.com/JakeFAU/thread-harvester/internal/progress/sinks"
	"github.com/JakeFAU/thread-harvester/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/thread-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/thread-harvester/internal/storage"
	gcsstore "github.com/JakeFAU/thread-harvester/internal/storage/gcs"
	"github.com/JakeFAU/thread-harvester/internal/storage/local"
	"github.com/JakeFAU/thread-harvester/internal/storage/memory"
	"github.com/JakeFAU/thread-harvester/internal/storage/postgres"
	"github.com/JakeFAU/thread-harvester/internal/store"
)

// App holds the shared services used by every harvest run of this process.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	blobs       storage.BlobStore
	checkpoints *checkpoint.Store
	exporter    *export.Writer
	runs        store.RunRepository
	publisher   publisher.Publisher
	registry    *prometheus.Registry
	status      *sinks.StatusSink
	hub         *progress.Hub
	closers     []func() error
}

// Option customizes New.
type Option func(*App)

// WithBlobStore overrides the configured storage backend.
func WithBlobStore(blobs storage.BlobStore) Option {
	return func(a *App) { a.blobs = blobs }
}

// WithPublisher overrides the configured completion publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithRunRepository overrides the configured run history store.
func WithRunRepository(repo store.RunRepository) Option {
	return func(a *App) { a.runs = repo }
}

// New builds every service named by cfg. It fails fast when any of them
// cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.init(ctx); err != nil {
		if closeErr := a.closeResources(); closeErr != nil {
			logger.Warn("cleanup after failed init", zap.Error(closeErr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.blobs == nil {
		blobs, err := a.openBlobStore(ctx)
		if err != nil {
			return err
		}
		a.blobs = blobs
	}
	var err error
	if a.checkpoints, err = checkpoint.New(a.blobs); err != nil {
		return fmt.Errorf("init checkpoint store: %w", err)
	}
	if a.exporter, err = export.NewWriter(a.blobs); err != nil {
		return fmt.Errorf("init exporter: %w", err)
	}
	if a.runs == nil {
		if a.runs, err = a.openRunRepository(ctx); err != nil {
			return err
		}
	}
	if a.publisher == nil && a.cfg.PubSub.Enabled() {
		a.logger.Info("connecting to pubsub", zap.String("topic", a.cfg.PubSub.TopicID))
		pub, err := pubsubpublisher.New(ctx, pubsubpublisher.Config{
			ProjectID: a.cfg.PubSub.ProjectID,
			TopicID:   a.cfg.PubSub.TopicID,
		})
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	if err := a.registry.Register(collectors.NewGoCollector()); err != nil {
		return fmt.Errorf("register go collector: %w", err)
	}
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}
	a.status = sinks.NewStatusSink()
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		Logger:         a.logger.Named("progress"),
	},
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		a.status,
		sinks.NewStoreSink(a.runs, a.logger.Named("progress")),
	)
	return nil
}

func (a *App) openBlobStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using gcs storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		blobs, err := gcsstore.New(client, gcsstore.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return blobs, nil
	case config.BackendMemory:
		a.logger.Warn("using memory storage; checkpoints will not survive the process")
		return memory.NewBlobStore(), nil
	default:
		a.logger.Info("using local storage", zap.String("dir", a.cfg.Storage.LocalDir))
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return blobs, nil
	}
}

func (a *App) openRunRepository(ctx context.Context) (store.RunRepository, error) {
	if a.cfg.DB.DSN == "" {
		return memory.NewRunStore(), nil
	}
	a.logger.Info("connecting to postgres")
	repo, err := postgres.NewRunStore(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("init run store: %w", err)
	}
	a.closers = append(a.closers, func() error { repo.Close(); return nil })
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure run schema: %w", err)
	}
	return repo, nil
}

// Server builds the status server over this App's read models.
func (a *App) Server() (*api.Server, error) {
	srv, err := api.NewServer(api.Deps{
		Status:     a.status,
		Runs:       a.runs,
		Gatherer:   a.registry,
		Registerer: a.registry,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init status server: %w", err)
	}
	return srv, nil
}

// Blobs exposes the checkpoint and export storage.
func (a *App) Blobs() storage.BlobStore {
	return a.blobs
}

// Runs exposes the run history store.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Status exposes the live run snapshot.
func (a *App) Status() *sinks.StatusSink {
	return a.status
}

// Close flushes progress events and releases every resource New opened.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

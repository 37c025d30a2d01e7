package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/archive"
	"github.com/martin3r-me/platforms-brands-sub000/internal/catalog"
	"github.com/martin3r-me/platforms-brands-sub000/internal/config"
	"github.com/martin3r-me/platforms-brands-sub000/internal/events"
	"github.com/martin3r-me/platforms-brands-sub000/internal/platforms"
	"github.com/martin3r-me/platforms-brands-sub000/internal/service"
	"github.com/martin3r-me/platforms-brands-sub000/internal/store"
)

// app holds the process-wide dependencies; close releases them in reverse
// order of acquisition.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   store.Store
	svc     *service.Service
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func openDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// openStore uses Postgres when a database URL is configured and an in-memory
// store otherwise.
func (a *app) openStore(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.logger.Warn("no database configured, using in-memory store")
		a.store = store.NewMemoryStore()
		return nil
	}
	db, err := openDB(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	a.store = store.NewPGStore(db)
	return nil
}

// seedCatalog upserts the configured format catalog so every entry point,
// the in-memory store included, starts with the shipped formats.
func (a *app) seedCatalog(ctx context.Context) error {
	if a.cfg.CatalogFile == "" {
		return nil
	}
	c, err := catalog.LoadFile(a.cfg.CatalogFile)
	if err != nil {
		return err
	}
	n, err := catalog.Seed(ctx, a.store, c)
	if err != nil {
		return err
	}
	a.logger.Info("format catalog seeded", zap.String("file", a.cfg.CatalogFile), zap.Int("formats", n))
	return nil
}

func buildRegistry(cfg config.Config, logger *zap.Logger) (*platforms.Registry, error) {
	registry := platforms.NewRegistry()
	if cfg.PublishDryRun {
		for _, key := range []string{"facebook", "instagram"} {
			registry.Register(key, platforms.DryRun{})
		}
		logger.Warn("publishing in dry-run mode")
		return registry, nil
	}

	if cfg.FacebookToken == "" && cfg.InstagramToken == "" {
		logger.Warn("no platform credentials configured; every publish will report unsupported platform")
		return registry, nil
	}
	graph, err := platforms.NewGraphClient(platforms.GraphConfig{
		BaseURL: cfg.GraphAPIBaseURL,
		Timeout: cfg.AdapterTimeout,
		Retries: cfg.AdapterRetries,
	})
	if err != nil {
		return nil, err
	}
	if cfg.FacebookToken != "" {
		if cfg.FacebookPageID == "" {
			return nil, errors.New("BRANDS_FACEBOOK_PAGE_ID required with BRANDS_FACEBOOK_TOKEN")
		}
		registry.Register("facebook", &platforms.FacebookAdapter{Graph: graph, PageID: cfg.FacebookPageID, Token: cfg.FacebookToken})
	}
	if cfg.InstagramToken != "" {
		if cfg.InstagramAccountID == "" {
			return nil, errors.New("BRANDS_INSTAGRAM_ACCOUNT_ID required with BRANDS_INSTAGRAM_TOKEN")
		}
		registry.Register("instagram", &platforms.InstagramAdapter{Graph: graph, AccountID: cfg.InstagramAccountID, Token: cfg.InstagramToken})
	}
	logger.Info("platform adapters registered", zap.Strings("platforms", registry.Keys()))
	return registry, nil
}

// newApp loads config, opens the store and wires the service with its
// optional event and archive sinks.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.seedCatalog(ctx); err != nil {
		a.close()
		return nil, err
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithConfig(service.Config{
			PublishConcurrency: cfg.PublishConcurrency,
			AdapterTimeout:     cfg.AdapterTimeout,
		}),
	}
	if len(cfg.KafkaBrokers) > 0 {
		notifier, err := events.NewKafkaNotifier(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, notifier.Close)
		opts = append(opts, service.WithNotifier(notifier))
		logger.Info("kafka events enabled", zap.String("topic", cfg.KafkaTopic))
	}
	if cfg.S3Bucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			a.close()
			return nil, err
		}
		opts = append(opts, service.WithArchiver(archiver))
		logger.Info("publish reports archived to s3", zap.String("bucket", cfg.S3Bucket))
	}

	a.svc = service.New(a.store, registry, opts...)
	return a, nil
}

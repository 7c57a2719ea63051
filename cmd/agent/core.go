package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/app"
	"zvit_agent/internal/domain/storage"
	"zvit_agent/internal/infra/api"
	"zvit_agent/internal/infra/config"
	idb "zvit_agent/internal/infra/database"
	"zvit_agent/internal/infra/logger"
	"zvit_agent/internal/infra/metrics"
	istorage "zvit_agent/internal/infra/storage"
	"zvit_agent/internal/infra/syncmanager"
)

// core is the part of the agent shared by every command: storage, session,
// backend client, offline queue and sync.
type core struct {
	cfg     *config.AppConfig
	log     *logrus.Entry
	closers []func() error

	local   storage.KeyValue
	cookies storage.KeyValue
	caches  storage.CacheStorage

	http      *http.Client
	metrics   *metrics.Metrics
	sessions  *app.SessionStore
	api       *api.Client
	sync      *syncmanager.Manager
	queue     *app.OfflineQueue
	processor *app.SyncProcessor
	reminders *app.ReminderService
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	return cfg, nil
}

func newCore(ctx context.Context, cfg *config.AppConfig) (*core, error) {
	c := &core{
		cfg:     cfg,
		log:     logger.Component("main"),
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		metrics: metrics.New(),
	}
	if err := c.openStorage(ctx); err != nil {
		return nil, err
	}

	c.sessions = app.NewSessionStore(c.local, c.cookies, logger.Component("session"))
	c.api = api.NewClient(cfg.APIBaseURL(), c.http, c.sessions, logger.Component("api"))
	c.sync = syncmanager.New(c.local, c.api, logger.Component("sync"))
	c.queue = app.NewOfflineQueue(c.caches, c.sync, queueCapabilities(cfg), logger.Component("offline_queue"), c.metrics)
	c.processor = app.NewSyncProcessor(c.caches, c.api, logger.Component("sync_processor"), c.metrics)
	c.sync.Handle(app.SyncTagReports, c.processor.HandleSync)
	c.reminders = app.NewReminderService(c.local, logger.Component("reminders"))
	return c, nil
}

// queueCapabilities reports what the offline queue may rely on. Without
// background sync, reports that fail offline are surfaced and not stored.
func queueCapabilities(cfg *config.AppConfig) app.Capabilities {
	return app.Capabilities{Queue: true, BackgroundSync: cfg.BackgroundSync}
}

func (c *core) openStorage(ctx context.Context) error {
	switch c.cfg.StorageDriver {
	case config.StoragePostgres:
		db, err := idb.NewPostgresConnection(ctx, c.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("could not connect to database: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		if err := idb.EnsureSchema(ctx, db); err != nil {
			return err
		}
		c.local = idb.NewPostgresKV(db, idb.ScopeLocal)
		c.cookies = idb.NewPostgresKV(db, idb.ScopeCookies)
		c.caches = idb.NewPostgresCacheStorage(db)
		c.log.Info("Database connection established successfully.")
	default:
		store, err := istorage.OpenBolt(c.cfg.BoltPath)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, store.Close)
		c.local = store.LocalStorage()
		c.cookies = store.Cookies()
		c.caches = store
		c.log.WithField("path", c.cfg.BoltPath).Info("Bolt store opened.")
	}
	return nil
}

func (c *core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.log.WithError(err).Warn("Error during shutdown")
		}
	}
}

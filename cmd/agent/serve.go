package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"

	"zvit_agent/internal/app"
	"zvit_agent/internal/infra/logger"
	"zvit_agent/internal/infra/notifier"
	"zvit_agent/internal/infra/pushsource"
	"zvit_agent/internal/infra/scheduler"
	"zvit_agent/internal/infra/telegram"
	"zvit_agent/internal/infra/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent: local proxy, push intake, notifications and background sync",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"backend":     cfg.BackendURL,
		"storage":     cfg.StorageDriver,
	}).Info("ZVIT agent starting...")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := newCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	// Windows and displays
	hub := web.NewHub(web.NewCommandOpener(cfg.WindowOpenerCommand, logger.Component("opener")), cfg.PublicURL, logger.Component("windows"))
	center := notifier.NewCenter(cfg.NotificationTTL, logger.Component("notifications"), hub)
	if len(cfg.ShoutrrrURLs) > 0 {
		backend, err := notifier.NewShoutrrrBackend(cfg.ShoutrrrURLs, logger.Component("shoutrrr"))
		if err != nil {
			return err
		}
		center.AddBackend(backend)
	}

	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, tc telebot.Context) {
				entry := logger.Component("telebot").WithError(err)
				if tc != nil && tc.Chat() != nil {
					entry = entry.WithField("chat_id", tc.Chat().ID)
				}
				entry.Error("Telegram handler failed")
			},
		})
		if err != nil {
			return fmt.Errorf("could not create Telegram bot: %w", err)
		}
		center.AddBackend(telegram.NewNotificationBackend(telegram.NewTelebotAdapter(bot), cfg.TelegramChatID, cfg.NotificationTTL))
	}

	// Application services
	presenter := app.NewPushPresenter(hub, center, logger.Component("push"), c.metrics)
	clicks := app.NewClickRouter(hub, center, center, cfg.ShellURL, logger.Component("clicks"), c.metrics)
	router := app.NewCacheRouter(app.CacheRouterConfig{
		APIPrefix:    cfg.CacheAPIPrefix,
		StaticCache:  cfg.StaticCacheName(),
		DynamicCache: cfg.DynamicCacheName(),
		ShellURL:     cfg.ShellURL,
		Precache:     app.DefaultPrecache,
	}, c.caches, app.NewHTTPUpstream(cfg.BackendURL, c.http), hub, logger.Component("cache_router"), c.metrics)
	schedule := app.NewScheduleService(c.api, c.local, presenter, logger.Component("schedule"))
	reports := app.NewReportService(c.api, c.sessions, c.queue, c.sync, c.reminders, logger.Component("reports"), c.metrics)
	auth := app.NewAuthService(c.api, c.sessions, logger.Component("auth"))
	status := app.NewStatusService(c.sync, c.queue, c.reminders, c.sessions)
	hub.AddClient(app.NewCompanion(c.reminders, schedule, logger.Component("companion")))

	// Lifecycle: precache the shell, drop caches of older versions, take
	// over open windows and re-arm a sync left over from the last run.
	installed := router.Install(ctx)
	mainLogger.WithField("cached", installed).Info("Shell precached.")
	if evicted, err := router.Activate(ctx); err != nil {
		mainLogger.WithError(err).Warn("Cache activation failed")
	} else if len(evicted) > 0 {
		mainLogger.WithField("evicted", evicted).Info("Old caches removed.")
	}
	if err := c.queue.RestoreRegistration(ctx); err != nil {
		mainLogger.WithError(err).Warn("Could not restore pending sync registration")
	}

	server, err := web.NewServer(web.ServerConfig{ListenAddr: cfg.ListenAddr, BackendURL: cfg.BackendURL}, web.Services{
		Router:        router,
		Push:          presenter,
		Clicks:        clicks,
		Notifications: center,
		Reports:       reports,
		Pending:       c.queue,
		Reminders:     c.reminders,
		Schedule:      schedule,
		Auth:          auth,
		Signup:        auth,
		Account:       auth,
		Banners:       auth,
		Status:        status,
		Sync:          c.sync,
		Metrics:       c.metrics.Handler(),
	}, hub, logger.Component("http"))
	if err != nil {
		return err
	}

	agentScheduler := scheduler.NewAgentScheduler(c.sync, schedule, schedule, logger.Component("scheduler"), scheduler.Specs{
		Sync:          cfg.CronSpecSync,
		ReminderCheck: cfg.CronSpecReminderCheck,
		GroupsRefresh: cfg.CronSpecGroupsRefresh,
	})
	if err := agentScheduler.Start(); err != nil {
		return err
	}
	defer agentScheduler.Stop()

	errCh := make(chan error, 2)
	go func() { errCh <- server.Start() }()

	if cfg.RedisAddr != "" {
		rdb := pushsource.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		defer rdb.Close()
		source := pushsource.NewRedisSource(rdb, cfg.RedisChannel, presenter, logger.Component("redis_push"))
		go func() {
			if err := source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("redis push source: %w", err)
			}
		}()
	}

	if bot != nil {
		telegram.RegisterClickHandlers(ctx, bot, clicks, logger.Component("telegram"))
		telegram.RegisterBotCommands(ctx, bot, cfg.TelegramChatID, status, c.sync, logger.Component("telegram"))
		go bot.Start()
		defer bot.Stop()
		mainLogger.Info("Telegram bot started.")
	}

	mainLogger.Info("Application setup complete. Agent is running.")

	select {
	case <-ctx.Done():
		mainLogger.Info("Shutting down application...")
	case err = <-errCh:
		mainLogger.WithError(err).Error("Component failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		mainLogger.WithError(serr).Warn("HTTP server shutdown failed")
	}
	return err
}

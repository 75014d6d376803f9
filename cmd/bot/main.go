// mesbot - school portal assistant for Telegram
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/mesbot/mesbot/internal/api"
	"github.com/mesbot/mesbot/internal/bot"
	"github.com/mesbot/mesbot/internal/cache"
	"github.com/mesbot/mesbot/internal/config"
	"github.com/mesbot/mesbot/internal/portal"
	"github.com/mesbot/mesbot/internal/session"
	"github.com/mesbot/mesbot/internal/store"
	"github.com/mesbot/mesbot/internal/worker"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	loc := cfg.Location()
	slog.Info("Starting bot", "version", version, "webhook", cfg.UseWebhook(), "timezone", loc.String())

	restored, err := store.RestoreBackup(cfg.DBPath, cfg.BackupPath)
	if err != nil {
		slog.Error("Failed to restore database backup", "error", err)
		os.Exit(1)
	}
	if restored {
		slog.Warn("Database restored from backup", "backup", cfg.BackupPath)
	}

	repo, err := store.NewSQLite(cfg.DBPath, loc)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	slog.Info("Database connected", "path", cfg.DBPath)

	portalCfg := portal.DefaultConfig()
	portalCfg.BaseURL = cfg.Portal.BaseURL
	portalCfg.ProfileURL = cfg.Portal.ProfileURL
	portalCfg.Timeout = cfg.Portal.Timeout
	portalCfg.MarksWindow = portal.MarksWindow(cfg.Portal.MarksWindow)

	sessions := session.NewManager(
		repo,
		cache.New(repo, logger),
		portal.New(portalCfg, logger),
		logger,
	)

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		slog.Error("Failed to connect to Telegram", "error", err)
		os.Exit(1)
	}
	tg.Debug = cfg.TelegramDebug
	slog.Info("Authorized on Telegram", "bot", tg.Self.UserName)

	b := bot.New(tg, sessions, bot.Config{Location: loc, AdminIDs: cfg.AdminIDs}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maintenance := worker.NewMaintenance(repo, worker.Config{
		Interval:       cfg.MaintenanceInterval,
		Retention:      cfg.CacheRetention,
		BackupPath:     cfg.BackupPath,
		BackupInterval: cfg.BackupInterval,
	}, logger)
	maintenanceDone := maintenance.Start(ctx)

	rt := routes{Health: api.NewHandler(repo, version, logger).Health}
	runDone := make(chan struct{})
	if cfg.UseWebhook() {
		path, err := registerWebhook(tg, cfg)
		if err != nil {
			slog.Error("Failed to register webhook", "error", err)
			os.Exit(1)
		}
		rt.WebhookPath = path
		rt.WebhookSecret = cfg.WebhookSecret
		rt.Webhook = b.WebhookHandler(ctx)
		close(runDone)
		slog.Info("Webhook registered", "path", path)
	} else {
		if _, err := tg.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			slog.Warn("Failed to delete webhook before polling", "error", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.PollTimeout
		updates := tg.GetUpdatesChan(u)
		go func() {
			defer close(runDone)
			b.Run(ctx, updates)
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(rt),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if rt.Webhook == nil {
		tg.StopReceivingUpdates()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	// Run waits for its own handlers; webhook handlers are dispatched only
	// while the server is up, so Wait is safe once Shutdown returns.
	<-runDone
	b.Wait()
	<-maintenanceDone

	slog.Info("Bot stopped successfully")
}

// registerWebhook points Telegram at WEBHOOK_URL and returns the path the
// router should serve it on.
func registerWebhook(tg *tgbotapi.BotAPI, cfg *config.Config) (string, error) {
	u, err := url.Parse(cfg.WebhookURL)
	if err != nil {
		return "", err
	}

	params := tgbotapi.Params{"url": u.String()}
	params.AddNonEmpty("secret_token", cfg.WebhookSecret)
	if _, err := tg.MakeRequest("setWebhook", params); err != nil {
		return "", err
	}

	info, err := tg.GetWebhookInfo()
	if err != nil {
		return "", err
	}
	if info.LastErrorDate != 0 {
		slog.Warn("Telegram reported a webhook error", "message", info.LastErrorMessage)
	}

	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dutyroster/internal/api"
	"dutyroster/internal/auth"
	"dutyroster/internal/batch"
	"dutyroster/internal/config"
	"dutyroster/internal/database"
	"dutyroster/internal/export"
	"dutyroster/internal/google"
	"dutyroster/internal/metrics"
	"dutyroster/internal/models"
	"dutyroster/internal/notify"
	"dutyroster/internal/override"
	"dutyroster/internal/registry"
	"dutyroster/internal/remind"
	"dutyroster/internal/resolve"
	"dutyroster/internal/swap"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("ROSTER_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	notifier := buildNotifier(cfg, db, logger)
	workflow := cfg.Workflow()

	registrySvc := registry.NewService(db, logger)
	authSvc := auth.NewService(db, logger)
	batchSvc := batch.NewService(db, authSvc, notifier, workflow, logger)
	swapSvc := swap.NewService(db, authSvc, notifier, workflow, logger)
	overrideSvc := override.NewService(db, authSvc, notifier, workflow, logger)
	exportSvc := export.NewService(db, logger)

	resolveSvc := resolve.NewService(db, registrySvc, logger)
	if rdb != nil && cfg.RedisCacheTTL() > 0 {
		resolveSvc.UseRedisCache(rdb, cfg.RedisCacheTTL())
		batchSvc.SetCacheInvalidator(resolveSvc)
		swapSvc.SetCacheInvalidator(resolveSvc)
		overrideSvc.SetCacheInvalidator(resolveSvc)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sheets.Enabled {
		sheetsSvc, err := google.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, logger)
		if err != nil {
			logger.Error().Err(err).Msg("sheets disabled, publisher unavailable")
		} else {
			batchSvc.SetPublisher(&sheetsPublisher{sheets: sheetsSvc, users: db})
		}
	}

	backupSvc := database.NewBackupService(cfg.Database.Path, database.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backupSvc.Start(ctx)

	if cfg.Reminder.Enabled {
		reminder := remind.NewService(remind.Config{
			CheckInterval: cfg.ReminderInterval(),
			DaysBefore:    cfg.Reminder.DaysBefore,
		}, db, notifier, logger)
		reminder.Start()
		defer reminder.Stop()
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	apiSrv := api.NewServer(db, registrySvc, batchSvc, swapSvc, overrideSvc, resolveSvc, exportSvc, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiSrv.Routes(),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("duty roster service started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

// sheetsPublisher adapts the Sheets service to the batch workflow,
// resolving display names from the local user table.
type sheetsPublisher struct {
	sheets *google.SheetsService
	users  *database.DB
}

func (p *sheetsPublisher) PublishBatch(ctx context.Context, b *models.ScheduleBatch, schedules []models.Schedule) error {
	return p.sheets.PublishBatch(ctx, b, schedules, func(userID int64) string {
		u, err := p.users.GetUser(ctx, userID)
		if err != nil || u.DisplayName == "" {
			return fmt.Sprintf("user %d", userID)
		}
		return u.DisplayName
	})
}

// buildNotifier returns a Telegram notifier when a bot token is
// configured and a log-only notifier otherwise.
func buildNotifier(cfg *config.Config, db *database.DB, logger zerolog.Logger) notify.Notifier {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Warn().Msg("no telegram bot token, notifications are log-only")
		return notify.NewLogNotifier(logger)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("create bot error, notifications are log-only")
		return notify.NewLogNotifier(logger)
	}
	bot.Debug = cfg.Telegram.Debug
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
	return notify.NewTelegramNotifier(bot, db, notify.DefaultTelegramConfig(), logger)
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

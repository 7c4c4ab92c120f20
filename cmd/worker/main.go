// Package main runs the background worker: QR code emails and the event archive sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventpass/checkin-backend/config"
	"github.com/eventpass/checkin-backend/internal/emaillogs"
	"github.com/eventpass/checkin-backend/internal/events"
	"github.com/eventpass/checkin-backend/internal/notify"
	"github.com/eventpass/checkin-backend/internal/registrations"
	"github.com/eventpass/checkin-backend/internal/worker"
	"github.com/eventpass/checkin-backend/pkg/database"
	"github.com/eventpass/checkin-backend/pkg/queue"
	"github.com/eventpass/checkin-backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler, err := worker.NewArchiveScheduler(workerCtx, events.NewArchiver(events.NewRepository(pool), logger), cfg.Archive.Interval, logger)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	done := make(chan struct{})
	if cfg.Email.Enabled() {
		mailer := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			User:     cfg.Email.SMTPUser,
			Pass:     cfg.Email.SMTPPass,
			SSL:      cfg.Email.SMTPSSL,
			From:     cfg.Email.FromAddress,
			FromName: cfg.Email.FromName,
		})
		processor := worker.NewEmailProcessor(
			queue.NewQueue(rdb.Client, logger),
			registrations.NewRepository(pool),
			emaillogs.NewRepository(pool),
			mailer,
			cfg.App.PublicBaseURL,
			logger,
		)
		go func() {
			processor.Run(workerCtx)
			close(done)
		}()
		logger.Info("email worker started")
	} else {
		close(done)
		logger.Warn("smtp not configured, email worker disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown", zap.Error(err))
	}
	<-done
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

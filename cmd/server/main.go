// Package main runs the event check-in HTTP server with the live scan feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventpass/checkin-backend/config"
	"github.com/eventpass/checkin-backend/internal/analytics"
	"github.com/eventpass/checkin-backend/internal/attendance"
	"github.com/eventpass/checkin-backend/internal/auth"
	"github.com/eventpass/checkin-backend/internal/emaillogs"
	"github.com/eventpass/checkin-backend/internal/events"
	"github.com/eventpass/checkin-backend/internal/middleware"
	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/internal/participants"
	"github.com/eventpass/checkin-backend/internal/realtime"
	"github.com/eventpass/checkin-backend/internal/registrations"
	"github.com/eventpass/checkin-backend/pkg/database"
	"github.com/eventpass/checkin-backend/pkg/queue"
	"github.com/eventpass/checkin-backend/pkg/redis"
	"github.com/eventpass/checkin-backend/pkg/response"
	"github.com/eventpass/checkin-backend/pkg/storage"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var qrStore registrations.QRStore
	if cfg.AWS.QRCodesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			QRCodesBucket:        cfg.AWS.QRCodesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			qrStore = s3Client
		}
	}

	userRepo := auth.NewRepository(pool)
	eventRepo := events.NewRepository(pool)
	participantRepo := participants.NewRepository(pool)
	registrationRepo := registrations.NewRepository(pool)
	attendanceRepo := attendance.NewRepository(pool)
	emailLogRepo := emaillogs.NewRepository(pool)

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := auth.EnsureAdmin(ctx, userRepo, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name, logger); err != nil {
			logger.Fatal("bootstrap admin", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	scanFeed := realtime.NewScanFeed(rdb.Client, logger)

	transactor := attendance.NewPGTransactor(pool, func(db database.DBTX) attendance.Stores {
		return attendance.Stores{
			Registrations: registrations.NewRepository(db),
			Attendance:    attendance.NewRepository(db),
		}
	})
	ledger := attendance.NewLedger(registrationRepo, transactor, logger)

	archiver := events.NewArchiver(eventRepo, logger)
	registrationService := registrations.NewService(registrationRepo, logger)

	var emailJobs registrations.EmailEnqueuer
	if cfg.Email.Enabled() {
		emailJobs = jobQueue
	} else {
		logger.Warn("smtp not configured, send-email disabled")
	}

	authHandler := auth.NewHandler(userRepo, jwtService, logger)
	eventHandler := events.NewHandler(eventRepo, archiver, logger)
	participantHandler := participants.NewHandler(participantRepo, attendanceRepo, logger)
	registrationHandler := registrations.NewHandler(registrationService, registrationRepo, qrStore, emailLogRepo, emailJobs,
		registrations.Links{PublicBaseURL: cfg.App.PublicBaseURL, DefaultCountryCode: cfg.App.DefaultCountryCode}, logger)
	attendanceHandler := attendance.NewHandler(ledger, attendanceRepo, scanFeed, logger)
	emailLogHandler := emaillogs.NewHandler(emailLogRepo, logger)
	analyticsHandler := analytics.NewHandler(analytics.Sources{
		CountEvents:          eventRepo.CountActive,
		CountRegistrations:   registrationRepo.CountActive,
		CountCheckIns:        attendanceRepo.Count,
		CountUsers:           userRepo.Count,
		GetEvent:             eventRepo.GetByID,
		ListRegistrations:    registrationRepo.ListByEvent,
		ListAttendanceByRegs: attendanceRepo.ListByRegistrations,
	}, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public
	router.POST("/auth/login", authHandler.Login)
	router.GET("/public/qrcode/:code", registrationHandler.PublicQRCode)

	authn := middleware.JWT(jwtService)
	gestor := middleware.RequireRole(models.RoleGestor)
	operador := middleware.RequireRole(models.RoleOperador)

	api := router.Group("")
	api.Use(authn)
	{
		api.GET("/auth/me", authHandler.Me)
		api.GET("/dashboard/stats", analyticsHandler.Dashboard)

		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", gestor, eventHandler.Create)
		api.POST("/events/archive", gestor, eventHandler.ArchiveEnded)
		api.GET("/events/:id", eventHandler.GetByID)
		api.PUT("/events/:id", gestor, eventHandler.Update)
		api.DELETE("/events/:id", gestor, eventHandler.Archive)
		api.GET("/events/:id/registrations", registrationHandler.ListByEvent)
		api.GET("/events/:id/attendance", gestor, attendanceHandler.ListByEvent)
		api.GET("/events/:id/report", gestor, analyticsHandler.EventReport)
		api.GET("/events/:id/emails", gestor, emailLogHandler.ListByEvent)

		// Participants
		api.GET("/participants", participantHandler.List)
		api.POST("/participants", gestor, participantHandler.Create)
		api.GET("/participants/:id", participantHandler.GetByID)
		api.PUT("/participants/:id", gestor, participantHandler.Update)
		api.GET("/participants/:id/history", participantHandler.History)
		api.POST("/participants/:id/registrations", gestor, registrationHandler.Enroll)
		api.DELETE("/participants/:id/registrations/:eventId", gestor, registrationHandler.Cancel)

		// Registrations
		api.GET("/registrations/:id/qrcode.png", registrationHandler.QRCodePNG)
		api.POST("/registrations/:id/qrcode/publish", gestor, registrationHandler.PublishQRCode)
		api.POST("/registrations/:id/send-email", gestor, registrationHandler.SendEmail)
		api.GET("/registrations/:id/whatsapp-link", registrationHandler.WhatsAppLink)

		// Scanner
		api.POST("/scanner/checkin", operador, attendanceHandler.Scan)
	}

	// WebSocket (token in query; browsers cannot set the Authorization header)
	router.GET("/ws/events/:id/scans", authn, gestor, realtime.ServeScans(scanFeed, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

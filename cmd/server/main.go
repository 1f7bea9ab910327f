// Package main runs the video ingest HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clipforge/backend/config"
	"github.com/clipforge/backend/internal/auth"
	"github.com/clipforge/backend/internal/middleware"
	"github.com/clipforge/backend/internal/mux"
	"github.com/clipforge/backend/internal/videos"
	"github.com/clipforge/backend/internal/worker"
	"github.com/clipforge/backend/pkg/database"
	"github.com/clipforge/backend/pkg/queue"
	"github.com/clipforge/backend/pkg/redis"
	"github.com/clipforge/backend/pkg/response"
	"github.com/clipforge/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.ArchiveBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchiveBucket:        cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Videos
	muxClient := mux.NewClient(mux.Config{
		TokenID:     cfg.Mux.TokenID,
		TokenSecret: cfg.Mux.TokenSecret,
		BaseURL:     cfg.Mux.APIBaseURL,
		CORSOrigin:  cfg.Mux.CORSOrigin,
		MP4Support:  cfg.Mux.EnableMP4Download,
	}, logger)

	videoRepo := videos.NewRepository(pool)
	statusCache := videos.NewStatusCache(rdb.Client, logger)
	authorizer := videos.TrustLevelPolicy{MinTrustLevel: cfg.Mux.MinTrustLevel}
	videoHandler := videos.NewHandler(videoRepo, muxClient, authorizer, statusCache, s3Client, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	verifier := videos.NewSignatureVerifier(cfg.Mux.WebhookSecret, cfg.Mux.SkipSignatureVerify)
	if cfg.Mux.SkipSignatureVerify {
		logger.Warn("webhook signature verification is disabled")
	}
	var enqueuer videos.ArchiveEnqueuer
	if s3Client != nil && cfg.Mux.EnableMP4Download {
		enqueuer = jobQueue
	}
	webhookHandler := videos.NewWebhookHandler(videoRepo, verifier, enqueuer, logger)

	// Rendition archive worker (also runs standalone via cmd/worker)
	archiveProcessor := worker.NewArchiveProcessor(videoRepo, s3Client, jobQueue, cfg.Mux.StreamBaseURL, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/videos/upload", videoHandler.CreateUpload)
		api.GET("/videos", videoHandler.List)
		api.GET("/videos/:video_id/status", videoHandler.Status)
		api.GET("/videos/:video_id/download-url", videoHandler.DownloadURL)

		api.PATCH("/users/:id/trust-level", middleware.RequireRole("admin"), authHandler.SetTrustLevel)
	}

	// Webhooks (no JWT; authenticated by signature)
	router.POST("/webhooks/mux", webhookHandler.HandleEvent)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if enqueuer != nil {
		go archiveProcessor.Run(workerCtx)
		logger.Info("archive worker started")
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

	workerCancel()
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

package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"booknest/internal/app"
	"booknest/internal/config"
	"booknest/internal/ratelimit"
	"booknest/internal/server"
	"booknest/internal/util"
	"booknest/pkg/ai"
	"booknest/pkg/storage"
	"booknest/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	summarizer, err := ai.NewSummarizer(cfg.SummarizerProvider, cfg.SummarizerBaseURL, cfg.SummarizerAPIKey, cfg.SummarizerModel, cfg.SummaryMaxInputRunes)
	if err != nil {
		log.Fatalf("failed to init summarizer: %v", err)
	}

	var uploadLimiter *ratelimit.FixedWindowLimiter
	if cfg.UploadRateLimitPerMin > 0 {
		uploadLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "booknest:uploads",
			cfg.UploadRateLimitPerMin, time.Minute,
		)
		if err != nil {
			log.Fatalf("failed to init upload rate limiter: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:          dataStore,
		Objects:        objects,
		Summarizer:     summarizer,
		SummaryTimeout: time.Duration(cfg.SummaryTimeoutSeconds) * time.Second,
		StorageTimeout: time.Duration(cfg.StorageTimeoutSeconds) * time.Second,
		PresignExpiry:  time.Duration(cfg.PresignExpiryMinutes) * time.Minute,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		UploadLimiter:  uploadLimiter,
		TrustProxy:     cfg.TrustProxy,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("booknest server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

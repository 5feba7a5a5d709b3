package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"magazine/internal/archive"
	"magazine/internal/assets"
	"magazine/internal/auth"
	"magazine/internal/cloudinary"
	"magazine/internal/comment"
	"magazine/internal/config"
	"magazine/internal/contribution"
	"magazine/internal/event"
	"magazine/internal/httpapi"
	"magazine/internal/httpmiddleware"
	"magazine/internal/notify"
	"magazine/internal/queue"
	"magazine/internal/report"
	"magazine/internal/store"
	"magazine/internal/user"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			return fmt.Errorf("open database: %w", err)
		}
		slog.Warn("db not reachable", "error", err)
	} else if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db.Client); err != nil {
			return err
		}
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		consumer := notify.NewConsumer(q, notify.NewMailer(smtpConfig(cfg)))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("mail consumer stopped", "error", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}
	notifier := notify.NewNotifier(q)

	signer := auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	files := assets.New(cfg.UploadDir)

	userRepo := user.NewRepository(db.Client)
	users := user.NewService(userRepo, signer, notifier, files, user.Options{
		PublicBaseURL:   cfg.PublicBaseURL,
		MaxPictureBytes: cfg.MaxUploadBytes,
	})

	// Cloudinary client (local disk when not configured)
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		users.WithPictureHost(cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder))
		slog.Info("cloudinary configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		slog.Info("cloudinary not configured, profile pictures stored locally")
	}

	eventRepo := event.NewRepository(db.Client)
	contributions := contribution.NewService(
		contribution.NewRepository(db.Client), eventRepo, userRepo, files,
		assets.DocumentPolicy(cfg.MaxUploadBytes),
	)

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "magazine:ratelimit", cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", auth.HeaderToken},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.RateLimit(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy || (!redisHealthy && needsRedis(cfg)) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})
	r.Static("/public/uploads", cfg.UploadDir)

	httpapi.Register(r, httpapi.Deps{
		Signer:         signer,
		Users:          users,
		Events:         event.NewService(eventRepo),
		Contributions:  contributions,
		Comments:       comment.NewService(comment.NewRepository(db.Client), contributions, userRepo, notifier),
		Reports:        report.NewService(report.NewRepository(db.Client)),
		Exporter:       archive.NewExporter(filepath.Join(cfg.UploadDir, assets.CategoryContributions), cfg.ArchiveTempDir),
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		// Archives of large events stream for a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return err
	}
	slog.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server forced shutdown", "error", err)
	}
	cancel()

	slog.Info("server exited")
	return nil
}

func needsRedis(cfg config.App) bool {
	return cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis"
}

func smtpConfig(cfg config.App) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}
}

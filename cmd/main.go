/**
 * @description
 * Entry point for the membership service. It loads configuration, connects to PostgreSQL
 * (falling back to an in-memory repository for local development), wires the optional
 * Redis rate limiter and RabbitMQ notifier, starts the expiry scheduler and serves HTTP.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: For database connection pooling.
 * - github.com/joho/godotenv: To load .env files for local development.
 * - github.com/redis/go-redis/v9: Backs the submission rate limiter.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/gart/membership-service/internal/api"
	"github.com/gart/membership-service/internal/app"
	"github.com/gart/membership-service/internal/config"
	"github.com/gart/membership-service/internal/store"
	"github.com/gart/membership-service/pkg/filestore"
	"github.com/gart/membership-service/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var repository store.Repository
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set, using in-memory repository")
		repository = store.NewMemoryRepository()
	} else {
		pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Error("unable to parse database URL", "error", err)
			os.Exit(1)
		}
		pgConfig.MaxConns = 20
		pgConfig.MinConns = 2
		pgConfig.MaxConnLifetime = 30 * time.Minute
		pgConfig.MaxConnIdleTime = 5 * time.Minute
		pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
		if err != nil {
			logger.Error("unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()
		logger.Info("database connection established")

		if cfg.RunMigrations {
			if err := store.Migrate(ctx, dbpool); err != nil {
				logger.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
			logger.Info("database migrations applied")
		}
		repository = store.NewPostgresRepository(dbpool)
	}

	limits := app.ApplicantRateLimits{
		QuotesPerMinute:  cfg.QuoteRateLimitPerMinute,
		AppliesPerMinute: cfg.ApplyRateLimitPerMinute,
	}
	var rateLimiter app.RateLimiter
	if limits.QuotesPerMinute > 0 || limits.AppliesPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; applicant rate limiting disabled\" env=REDIS_URL")
		} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; applicant rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; applicant rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
				rateLimiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix, limits)
			}
		}
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}
	notifier := app.NewEventNotifier(publisher, cfg.NotificationExchange, cfg.AdminEmail)

	files, err := filestore.NewLocal(cfg.UploadDir)
	if err != nil {
		logger.Error("unable to prepare upload directory", "error", err, "dir", cfg.UploadDir)
		os.Exit(1)
	}

	service := app.NewService(repository, notifier, app.Options{
		Payment:     app.PaymentTarget{VPA: cfg.PaymentUPIVPA, PayeeName: cfg.PaymentPayeeName},
		Attachments: files,
		RateLimiter: rateLimiter,
	})

	jobs := app.NewJobs(service, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg.MembershipExpirySchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	auth := api.NewAuthenticator(api.AuthConfig{
		Secret:   cfg.JWTSecret,
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	handler := api.NewHandler(service, files)
	router := api.NewRouter(handler, auth)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()

	logger.Info("server stopped")
}

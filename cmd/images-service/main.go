package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tieredmedia/images-service/internal/config"
	"github.com/tieredmedia/images-service/internal/http/handlers/access"
	"github.com/tieredmedia/images-service/internal/http/handlers/images"
	"github.com/tieredmedia/images-service/internal/http/handlers/users"
	"github.com/tieredmedia/images-service/internal/http/middleware"
	"github.com/tieredmedia/images-service/internal/services/blob"
	"github.com/tieredmedia/images-service/internal/services/derivatives"
	"github.com/tieredmedia/images-service/internal/services/tiers"
	"github.com/tieredmedia/images-service/internal/services/tokens"
	"github.com/tieredmedia/images-service/internal/services/uploads"
	"github.com/tieredmedia/images-service/internal/storage/postgres"
	"github.com/tieredmedia/images-service/internal/utils/password"
)

func main() {
	// load config
	cfg := config.MustLoad()

	// database setup
	storage, err := postgres.NewPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	slog.Info("Connected to Postgres database")

	// seed default tiers and the admin account
	adminHash, err := password.HashPassword(cfg.Seed.AdminPassword)
	if err != nil {
		log.Fatal("Failed to hash admin password:", err)
	}
	if err := storage.Seed(context.Background(), cfg.Seed.AdminUsername, adminHash); err != nil {
		log.Fatal("Failed to seed defaults:", err)
	}

	// redis for tier cache and rate limiting
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	slog.Info("Connected to Redis")

	// blob storage
	blobs, err := blob.NewService(cfg)
	if err != nil {
		log.Fatal("Failed to initialize blob storage:", err)
	}
	slog.Info("Connected to MinIO")

	// services
	tierPolicy := tiers.NewService(storage, redisClient)
	generator := derivatives.NewGenerator(blobs)
	ledger := tokens.NewLedger(storage)
	uploadService := uploads.NewService(storage, tierPolicy, generator, ledger, blobs, cfg.HTTPServer.BaseURL)

	// handlers
	imageHandlers := images.NewHandlers(uploadService, storage, tierPolicy, blobs, cfg.HTTPServer.BaseURL, cfg.Media.MaxUploadSize)
	accessHandlers := access.NewHandlers(ledger, blobs)

	// middleware
	requireAuth := middleware.RequireAuth(cfg.JWTSecret)
	optionalAuth := middleware.OptionalAuth(cfg.JWTSecret)
	rateLimits := middleware.NewRateLimitConfig(redisClient, cfg.Media.UploadsPerMinute)
	uploadLimit := rateLimits.RateLimitMiddleware(middleware.ActionUploads)

	// setup server
	router := http.NewServeMux()

	router.HandleFunc("POST /signup", users.SignUp(storage))
	router.HandleFunc("POST /login", users.Login(storage, cfg.JWTSecret))

	router.Handle("POST /upload", optionalAuth(uploadLimit(imageHandlers.Upload())))
	router.Handle("GET /images", requireAuth(imageHandlers.List()))
	router.HandleFunc("GET /token/{token}", accessHandlers.Fetch())

	server := http.Server{
		Addr:    cfg.HTTPServer.Address,
		Handler: router,
	}

	log.Println("server started on", cfg.HTTPServer.Address)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %s", err)
		}
	}()

	<-done

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = server.Shutdown(ctx)
	if err != nil {
		slog.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
		return
	}

	slog.Info("Server stopped")
}

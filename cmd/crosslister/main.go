package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/flipline/crosslister/internal/api"
	"github.com/flipline/crosslister/internal/browser"
	"github.com/flipline/crosslister/internal/bullets"
	"github.com/flipline/crosslister/internal/config"
	"github.com/flipline/crosslister/internal/database"
	"github.com/flipline/crosslister/internal/events"
	"github.com/flipline/crosslister/internal/listing"
	"github.com/flipline/crosslister/internal/llm"
	"github.com/flipline/crosslister/internal/parser"
	"github.com/flipline/crosslister/internal/ratelimit"
	"github.com/flipline/crosslister/internal/resolver"
	"github.com/flipline/crosslister/internal/settings"
	"github.com/flipline/crosslister/internal/titles"
)

func main() {
	// Setup logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis client serves both the settings store and the outbox relay
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Initialize and start Relay for outbox processing
	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	// Browser is optional: without Chromium the service still assembles
	// drafts from HTML the extension ships directly.
	var fetcher api.PageFetcher
	b, err := browser.New(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	})
	if err != nil {
		logger.Warn("browser unavailable, url-only assembly disabled", "error", err)
	} else {
		defer b.Close()
		fetcher = b
	}

	// Initialize services
	llmClient := llm.NewHTTPClient(llm.Options{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	pacer := ratelimit.NewPacer(cfg.Resolver.PacerBaseDelay, cfg.Resolver.PacerMaxDelay)

	settingsStore := settings.NewStore(redisClient, logger)
	for _, key := range []string{settings.KeyMarkupPercentage, settings.KeyEndPrice} {
		key := key
		settingsStore.OnChange(ctx, key, func(value string) {
			logger.Info("pricing setting changed", "key", key, "value", value)
		})
	}

	draftRepo := database.NewDraftRepository(db)
	denylistRepo := database.NewDenylistRepository(db)
	publisher := events.NewPublisher(db, logger)

	listingService := listing.NewService(
		draftRepo,
		denylistRepo,
		settingsStore,
		publisher,
		resolver.New(llmClient, pacer, logger),
		bullets.NewGenerator(llmClient, pacer, logger),
		titles.NewPipeline(llmClient, logger),
		logger,
	)

	// Initialize API handlers
	handlers := api.NewHandlers(listingService, parser.NewListingParser(), settingsStore, denylistRepo, fetcher, logger)

	// Setup Chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS: the browser extension calls from extension origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*", "chrome-extension://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		pendingCount, _ := relay.GetPendingCount(context.Background())
		deadLetterCount, _ := relay.GetDeadLetterCount(context.Background())

		health := map[string]interface{}{
			"status": "ok",
			"outbox": map[string]interface{}{
				"pending":     pendingCount,
				"dead_letter": deadLetterCount,
			},
		}

		status := http.StatusOK
		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	})

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/drafts", func(r chi.Router) {
			r.Post("/assemble", handlers.AssembleDraft)
			r.Get("/{draftID}", handlers.GetDraft)
			r.Post("/{draftID}/submit", handlers.SubmitDraft)
			r.Put("/{draftID}/title", handlers.SelectTitle)
		})

		r.Post("/pricing/preview", handlers.PricingPreview)

		r.Route("/vero", func(r chi.Router) {
			r.Post("/check", handlers.VeroCheck)
			r.Post("/brands", handlers.AddBrand)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/{key}", handlers.GetSetting)
			r.Put("/{key}", handlers.PutSetting)
		})
	})

	// Start server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func logLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

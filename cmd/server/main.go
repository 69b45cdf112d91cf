package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/triage/common/id"
	"basegraph.app/triage/common/logger"
	"basegraph.app/triage/common/otel"
	"basegraph.app/triage/core/config"
	"basegraph.app/triage/core/db"
	"basegraph.app/triage/internal/http/handler"
	"basegraph.app/triage/internal/http/handler/webhook"
	"basegraph.app/triage/internal/http/middleware"
	httprouter "basegraph.app/triage/internal/http/router"
	"basegraph.app/triage/internal/mapper"
	"basegraph.app/triage/internal/queue"
	"basegraph.app/triage/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "triage server starting",
		"env", cfg.Env,
		"service", cfg.OTel.ServiceName,
		"provider", cfg.Ticketing.Provider)

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())
	runs := store.NewStores(database.Querier()).TriageRuns()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, producer, runs)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, producer queue.Producer, runs store.TriageRunStore) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	traceHeader := cfg.Pipeline.TraceHeaderName
	hooks := make(map[string]*webhook.Handler)
	switch cfg.Ticketing.Provider {
	case config.ProviderHelpScout:
		hooks[config.ProviderHelpScout] = webhook.NewHandler(config.ProviderHelpScout,
			webhook.HelpScoutVerifier{Secret: cfg.Ticketing.HelpScout.WebhookSecret},
			mapper.NewHelpScoutEventMapper(), producer, traceHeader)
	case config.ProviderGitLab:
		hooks[config.ProviderGitLab] = webhook.NewHandler(config.ProviderGitLab,
			webhook.GitLabVerifier{Token: cfg.Ticketing.GitLab.WebhookSecret},
			mapper.NewGitLabEventMapper(cfg.Ticketing.GitLab.SupportBotUser), producer, traceHeader)
	}

	httprouter.SetupRoutes(router, httprouter.RouterConfig{
		AdminAPIKey: cfg.AdminAPIKey,
		Webhooks:    hooks,
		Triage:      handler.NewTriageHandler(producer, runs, cfg.Ticketing.Provider, traceHeader),
	})

	return router
}

const banner = `
 _____ ____  ___    _    ____ _____   ____  _____ ______     _______ ____
|_   _|  _ \|_ _|  / \  / ___| ____| / ___|| ____|  _ \ \   / / ____|  _ \
  | | | |_) || |  / _ \| |  _|  _|   \___ \|  _| | |_) \ \ / /|  _| | |_) |
  | | |  _ < | | / ___ \ |_| | |___   ___) | |___|  _ < \ V / | |___|  _ <
  |_| |_| \_\___/_/   \_\____|_____| |____/|_____|_| \_\ \_/  |_____|_| \_\
`

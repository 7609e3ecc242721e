package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"leaseline/internal/infrastructure"
	"leaseline/internal/interfaces"
	"leaseline/internal/interfaces/http"
	"leaseline/internal/logger"
	"leaseline/internal/repository"
	"leaseline/internal/usecases"
)

func main() {
	// Load .env file (optional in containerized deploys)
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment")
	}

	log := logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	// Connect to PostgreSQL
	pgClient, err := infrastructure.NewPostgresClient(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()

	// Optional Redis fast-path dedup; the ledger's unique index is the
	// durable guard either way.
	var dedup interfaces.DedupCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cache, err := infrastructure.NewRedisDedupCache(addr)
		if err != nil {
			log.Warn("redis unavailable, relying on database dedup only", "error", err)
		} else {
			defer cache.Close()
			dedup = cache
		}
	}

	// Messaging + alert channels
	twilio := infrastructure.NewTwilioClient(
		os.Getenv("TWILIO_ACCOUNT_SID"),
		os.Getenv("TWILIO_AUTH_TOKEN"),
		os.Getenv("TWILIO_FROM_NUMBER"),
	)
	// Signatures are only enforced in production; local webhook testing has
	// no stable public URL to sign against.
	var validator http.SignatureValidator
	if os.Getenv("APP_ENV") == "production" {
		if os.Getenv("PUBLIC_BASE_URL") == "" {
			log.Error("PUBLIC_BASE_URL is required in production to validate webhook signatures")
			os.Exit(1)
		}
		validator = infrastructure.NewRequestValidator(os.Getenv("TWILIO_AUTH_TOKEN"))
		gin.SetMode(gin.ReleaseMode)
	}
	telegram := infrastructure.NewTelegramAlerter(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if telegram.Enabled() {
		log.Info("telegram alerts enabled")
	} else {
		log.Info("telegram alerts disabled (token missing or invalid)")
	}

	llm, err := infrastructure.NewLLMClient(infrastructure.LLMConfig{
		APIKey:        os.Getenv("LLM_API_KEY"),
		BaseURL:       os.Getenv("LLM_BASE_URL"),
		Model:         os.Getenv("LLM_MODEL"),
		FallbackModel: os.Getenv("LLM_FALLBACK_MODEL"),
	})
	if err != nil {
		log.Error("llm client init failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	leaseRepo := repository.NewLeaseRepository(pgClient.Pool)
	ledgerRepo := repository.NewLedgerRepository(pgClient.Pool)
	actionRepo := repository.NewActionRepository(pgClient.Pool)
	workflowRepo := repository.NewWorkflowRepository(pgClient.Pool)
	contextRepo := repository.NewContextRepository(pgClient.Pool)

	// Use cases
	notifier := usecases.NewNotifier(twilio, telegram)
	workflowService := usecases.NewWorkflowService(workflowRepo, leaseRepo, notifier)
	agentService := usecases.NewAgentService(llm, workflowService, notifier, contextRepo, actionRepo)
	summarizer := usecases.NewSummarizer(contextRepo)

	dispatcher := infrastructure.NewDispatcher(envInt("DISPATCHER_WORKERS", 4), envInt("DISPATCHER_QUEUE_DEPTH", 64))
	defer dispatcher.Shutdown()

	// HTTP server
	h := http.NewHandler(
		agentService,
		workflowService,
		leaseRepo,
		ledgerRepo,
		notifier,
		summarizer,
		dedup,
		dispatcher,
		validator,
		os.Getenv("PUBLIC_BASE_URL"),
	)
	h.SetHealthCheck(func(c *gin.Context) error {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		return pgClient.Pool.Ping(ctx)
	})

	r := gin.Default()
	http.SetupRoutes(r, h)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		log.Info("http server listening", "port", port)
		if err := r.Run("0.0.0.0:" + port); err != nil {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

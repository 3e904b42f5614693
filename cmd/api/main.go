package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/abdi2332/calender-app/internal/api/router"
	"github.com/abdi2332/calender-app/internal/appointments"
	"github.com/abdi2332/calender-app/internal/call"
	appconfig "github.com/abdi2332/calender-app/internal/config"
	"github.com/abdi2332/calender-app/internal/conversation"
	"github.com/abdi2332/calender-app/internal/observability/metrics"
	"github.com/abdi2332/calender-app/internal/speech"
	"github.com/abdi2332/calender-app/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting calendar API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Appointment store: Postgres when configured, in-memory otherwise.
	var repo appointments.Repository
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo = appointments.NewPostgresRepository(pool)
		logger.Info("using postgres appointment store")
	} else {
		memRepo := appointments.NewMemoryRepository()
		if cfg.SeedDemoData {
			if err := memRepo.SeedDemoData(ctx); err != nil {
				logger.Warn("failed to seed demo appointments", "error", err)
			} else {
				logger.Info("seeded demo appointments")
			}
		}
		repo = memRepo
		logger.Warn("DATABASE_URL not set, using in-memory appointment store")
	}

	// Redis backs live change notifications and call transcript history.
	var notifier appointments.ChangeNotifier = appointments.NewNoopNotifier()
	var archive *call.TranscriptArchive
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, live updates disabled", "error", err)
		} else {
			notifier = appointments.NewRedisNotifier(redisClient, logger)
			archive = call.NewTranscriptArchive(redisClient, logger)
			logger.Info("redis connected", "addr", cfg.RedisAddr)
		}
	} else {
		logger.Warn("REDIS_ADDR not set, live updates disabled")
	}

	responder := buildResponder(ctx, cfg, logger)

	var synth speech.Synthesizer
	if cfg.ElevenLabsAPIKey != "" {
		client, err := speech.New(speech.Config{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("speech synthesis disabled", "error", err)
		} else {
			synth = client
			logger.Info("speech synthesis enabled")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	callMetrics := metrics.NewCallMetrics(registry)

	manager, err := call.NewManager(call.ManagerConfig{
		Repo:      repo,
		Notifier:  notifier,
		Responder: responder,
		Synth:     synth,
		Archive:   archive,
		Delays: call.Delays{
			Dial:     cfg.CallDialDelay,
			Greeting: cfg.CallGreetingDelay,
			ReplyMin: cfg.CallReplyMinDelay,
			ReplyMax: cfg.CallReplyMaxDelay,
			WrapUp:   cfg.CallWrapUpDelay,
			Dismiss:  cfg.CallDismissDelay,
		},
		Logger:  logger,
		Metrics: callMetrics,
	})
	if err != nil {
		logger.Error("failed to build call manager", "error", err)
		os.Exit(1)
	}
	defer manager.Shutdown()

	r := router.New(&router.Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(repo, notifier, logger),
		CallHandler:         call.NewHandler(manager, archive, logger),
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildResponder picks the conversation engine: OpenAI first, Gemini as
// fallback, keyword matching when neither is configured.
func buildResponder(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) conversation.Responder {
	var clients []conversation.LLMClient

	if cfg.OpenAIAPIKey != "" {
		client, err := conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			logger.Warn("openai client unavailable", "error", err)
		} else {
			clients = append(clients, client)
			logger.Info("openai responder configured", "model", cfg.OpenAIModel)
		}
	}
	if cfg.GeminiAPIKey != "" {
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini client unavailable", "error", err)
		} else {
			clients = append(clients, client)
			logger.Info("gemini responder configured", "model", cfg.GeminiModel)
		}
	}

	switch len(clients) {
	case 0:
		logger.Warn("no LLM configured, using keyword responder")
		return conversation.NewKeywordResponder()
	case 1:
		return conversation.NewLLMResponder(clients[0], logger)
	default:
		return conversation.NewLLMResponder(
			conversation.NewFallbackLLMClient(clients[0], clients[1], logger), logger)
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"outreach_backend/internal/adapters"
	"outreach_backend/internal/email"
	"outreach_backend/internal/leads/agent"
	leadsrepo "outreach_backend/internal/leads/repository"
	"outreach_backend/internal/leads/scoring"
	"outreach_backend/internal/notification"
	"outreach_backend/internal/scheduler"
	"outreach_backend/internal/tasks"
	"outreach_backend/internal/whatsapp"
	"outreach_backend/platform/ai/embeddings"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/events"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/qdrant"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	// Notification module subscribes to task lifecycle events so failed
	// enhancements alert the owner from the worker side too.
	sender := email.NewSMTPSender(cfg)
	notifier := notification.NewService(sender, whatsapp.NewClient(cfg, log), cfg, log)
	notification.RegisterSubscribers(eventBus, notifier)

	// Worker-side enhancement wiring (no HTTP handlers required).
	leadRepo := leadsrepo.New(pool)
	taskRepo := tasks.NewRepository(pool)
	tracker := tasks.NewTracker(taskRepo, eventBus, log, cfg)

	profiles := adapters.NewLeadProfiles(leadRepo)

	executors := make([]tasks.Executor, 0, 3)
	if researcher := initResearcher(cfg, log); researcher != nil {
		enricher := adapters.NewProfileEnricher(leadRepo, researcher)
		executors = append(executors, tasks.NewEnrichProfileExecutor(profiles, enricher))
	}
	if embedder := initVectorEmbedder(cfg, log); embedder != nil {
		executors = append(executors, tasks.NewEmbedProfileExecutor(profiles, embedder))
	}
	rescorer := adapters.NewLeadRescorer(leadRepo, scoring.New(log))
	executors = append(executors, tasks.NewRefreshScoreExecutor(rescorer))

	runner := tasks.NewRunner(tracker, log, cfg, executors...)

	cleanupInterval := getDurationEnv("TASK_CLEANUP_INTERVAL", time.Hour)
	retention := time.Duration(getPositiveIntEnv("TASK_RETENTION_DAYS", 30)) * 24 * time.Hour
	cleanup := tasks.NewCleanup(taskRepo, log, cleanupInterval, retention)
	go cleanup.Run(ctx)

	// Without redis the ledger is worked directly from Postgres instead
	// of through the asynq queue.
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; polling the task ledger in process")
		runDirect(ctx, runner, log)
		return
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	dispatcher := scheduler.NewEnhancementDispatcher(client, tracker, log)
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, runner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// runDirect claims pending ledger tasks on an interval until the
// context is cancelled. Used when no redis queue is configured.
func runDirect(ctx context.Context, runner *tasks.Runner, log *logger.Logger) {
	const batchSize = 50
	interval := getDurationEnv("TASK_POLL_INTERVAL", 5*time.Second)
	log.Info("task poller started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := runner.ProcessPending(ctx, batchSize); err != nil {
				log.Error("failed to process pending tasks", "error", err)
			}
		}
	}
}

func initResearcher(cfg config.AIConfig, log *logger.Logger) *agent.Researcher {
	if cfg.GetMoonshotAPIKey() == "" {
		log.Warn("MOONSHOT_API_KEY not configured; profile enrichment disabled")
		return nil
	}
	r, err := agent.NewResearcher(cfg.GetMoonshotAPIKey())
	if err != nil {
		log.Error("failed to initialize researcher agent", "error", err)
		return nil
	}
	return r
}

func initVectorEmbedder(cfg *config.Config, log *logger.Logger) *adapters.VectorEmbedder {
	if !cfg.IsEmbeddingEnabled() || !cfg.IsQdrantEnabled() {
		log.Warn("embedding or qdrant not configured; profile embedding disabled")
		return nil
	}
	embedClient := embeddings.NewClient(embeddings.Config{
		BaseURL: cfg.GetEmbeddingAPIURL(),
		APIKey:  cfg.GetEmbeddingAPIKey(),
	})
	vectorClient := qdrant.NewClient(qdrant.Config{
		BaseURL:    cfg.GetQdrantURL(),
		APIKey:     cfg.GetQdrantAPIKey(),
		Collection: cfg.GetQdrantCollection(),
	})
	return adapters.NewVectorEmbedder(embedClient, vectorClient)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

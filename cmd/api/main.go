package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach_backend/internal/adapters"
	"outreach_backend/internal/api"
	"outreach_backend/internal/email"
	"outreach_backend/internal/leads/agent"
	leadsrepo "outreach_backend/internal/leads/repository"
	"outreach_backend/internal/leads/scoring"
	"outreach_backend/internal/mailbox"
	"outreach_backend/internal/notification"
	"outreach_backend/internal/orchestrator"
	"outreach_backend/internal/proposals"
	"outreach_backend/internal/sequence"
	seqrepo "outreach_backend/internal/sequence/repository"
	seqscheduler "outreach_backend/internal/sequence/scheduler"
	"outreach_backend/internal/tasks"
	"outreach_backend/internal/whatsapp"
	"outreach_backend/migrations"
	"outreach_backend/platform/ai/embeddings"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/events"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/qdrant"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg.GetDatabaseURL(), migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	sender := email.NewSMTPSender(cfg)
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadRepo := leadsrepo.New(pool)
	sequenceRepo := seqrepo.New(pool)
	taskRepo := tasks.NewRepository(pool)

	catalog := loadCatalog(cfg, log)

	personalizer := initPersonalizer(cfg, log)
	var seqPersonalizer seqscheduler.Personalizer
	if personalizer != nil {
		seqPersonalizer = personalizer
	}

	sequenceService := seqscheduler.NewService(
		sequenceRepo,
		catalog,
		adapters.NewLeadDirectory(leadRepo),
		adapters.NewOutreachSender(sender),
		seqPersonalizer,
		eventBus,
		log,
		cfg,
	)
	sequenceTicker := seqscheduler.NewTicker(sequenceService, cfg, log)
	go sequenceTicker.Run(ctx)

	tracker := tasks.NewTracker(taskRepo, eventBus, log, cfg)
	scorer := scoring.New(log)

	// Notification module subscribes to domain events (not HTTP-facing)
	whatsappClient := whatsapp.NewClient(cfg, log)
	notifier := notification.NewService(sender, whatsappClient, cfg, log)
	notification.RegisterSubscribers(eventBus, notifier)

	deps := orchestrator.Deps{
		Leads:  leadRepo,
		Scorer: scorer,
		Sequences: adapters.NewSequenceRunner(
			sequenceService,
			sequence.DefaultTemplateID,
			cfg.GetEmailFromName(),
		),
		Notifier: notifier,
		Tasker:   tracker,
		Bus:      eventBus,
		Log:      log,
	}

	if researcher := initResearcher(cfg, log); researcher != nil {
		deps.Research = adapters.NewLeadResearcher(researcher)
	}
	if triage := initReplyTriage(cfg, log); triage != nil {
		deps.Replies = triage
	}
	if embedder := initVectorEmbedder(cfg, log); embedder != nil {
		deps.Embedder = embedder
	}
	if proposalSvc := initProposals(ctx, cfg, log); proposalSvc != nil {
		deps.Proposals = proposalSvc
	}

	dispatcher := orchestrator.New(deps)

	// Mailbox poller turns inbound replies into orchestration events
	if poller := mailbox.NewPoller(cfg, leadRepo, dispatcher, log); poller != nil {
		go poller.Run(ctx)
		log.Info("mailbox poller started", "interval", cfg.GetMailboxPollInterval())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	handler := api.New(leadRepo, dispatcher, sequenceService, tracker, val, log, cfg.GetEmailFromName())
	engine := api.NewRouter(cfg, handler, log)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// loadCatalog reads the YAML template catalog, falling back to the
// built-in default when the file is absent.
func loadCatalog(cfg *config.Config, log *logger.Logger) *sequence.Catalog {
	catalog, err := sequence.LoadCatalog(cfg.SequenceTemplatesPath)
	if err != nil {
		log.Warn("sequence template catalog unavailable, using defaults",
			"path", cfg.SequenceTemplatesPath, "error", err)
		return sequence.DefaultCatalog()
	}
	log.Info("sequence template catalog loaded", "path", cfg.SequenceTemplatesPath)
	return catalog
}

func initPersonalizer(cfg config.AIConfig, log *logger.Logger) *agent.Personalizer {
	if cfg.GetMoonshotAPIKey() == "" {
		log.Warn("MOONSHOT_API_KEY not configured; step personalization disabled")
		return nil
	}
	p, err := agent.NewPersonalizer(cfg.GetMoonshotAPIKey())
	if err != nil {
		log.Error("failed to initialize personalizer agent", "error", err)
		return nil
	}
	return p
}

func initResearcher(cfg config.AIConfig, log *logger.Logger) *agent.Researcher {
	if cfg.GetMoonshotAPIKey() == "" {
		log.Warn("MOONSHOT_API_KEY not configured; lead research disabled")
		return nil
	}
	r, err := agent.NewResearcher(cfg.GetMoonshotAPIKey())
	if err != nil {
		log.Error("failed to initialize researcher agent", "error", err)
		return nil
	}
	return r
}

func initReplyTriage(cfg config.AIConfig, log *logger.Logger) *agent.ReplyTriage {
	if cfg.GetMoonshotAPIKey() == "" {
		return nil
	}
	t, err := agent.NewReplyTriage(cfg.GetMoonshotAPIKey())
	if err != nil {
		log.Error("failed to initialize reply triage agent", "error", err)
		return nil
	}
	return t
}

func initVectorEmbedder(cfg *config.Config, log *logger.Logger) *adapters.VectorEmbedder {
	if !cfg.IsEmbeddingEnabled() || !cfg.IsQdrantEnabled() {
		log.Warn("embedding or qdrant not configured; profile vectors disabled")
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

func initProposals(ctx context.Context, cfg *config.Config, log *logger.Logger) *proposals.Service {
	gotenberg := proposals.NewGotenbergClient(cfg)
	if gotenberg == nil {
		log.Warn("gotenberg not configured; proposal generation disabled")
		return nil
	}

	storage, err := proposals.NewStorage(cfg)
	if err != nil {
		log.Warn("proposal storage unavailable; proposal generation disabled", "error", err)
		return nil
	}
	if err := withRetry(ctx, log, "ensure proposals bucket", 5, 2*time.Second, func() error {
		return storage.EnsureBucket(ctx)
	}); err != nil {
		log.Error("failed to ensure proposals bucket", "error", err)
		panic("failed to ensure proposals bucket: " + err.Error())
	}
	log.Info("proposal storage initialized", "bucket", cfg.GetMinioBucketProposals())

	return proposals.NewService(gotenberg, storage, log)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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

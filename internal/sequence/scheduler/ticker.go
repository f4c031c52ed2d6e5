package scheduler

import (
	"context"
	"time"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// Ticker runs the scheduler's send loop at a fixed interval until the
// context is cancelled.
type Ticker struct {
	service  *Service
	interval time.Duration
	log      *logger.Logger
}

func NewTicker(service *Service, cfg config.SequenceConfig, log *logger.Logger) *Ticker {
	return &Ticker{
		service:  service,
		interval: cfg.GetSequenceTickInterval(),
		log:      log,
	}
}

func (t *Ticker) Run(ctx context.Context) {
	t.log.Info("sequence ticker started", "interval", t.interval)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info("sequence ticker stopped")
			return
		case <-ticker.C:
		}

		if err := t.service.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Error("sequence tick failed", "error", err)
		}
	}
}

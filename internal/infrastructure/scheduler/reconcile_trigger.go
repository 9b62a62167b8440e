package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/domain/marketplace"
	infraconfig "github.com/crosslist/backend/internal/infrastructure/config"
	"github.com/crosslist/backend/internal/infrastructure/logger"
)

// reconcilableStatuses are the listing states the background pass checks
var reconcilableStatuses = []marketplace.ListingStatus{
	marketplace.StatusPending,
	marketplace.StatusActive,
}

// JobSubmitter queues sync requests. SyncWorkerPool implements it.
type JobSubmitter interface {
	Submit(req marketplaceapp.SyncRequest, source string) (*SyncJob, error)
}

// ReconcileTriggerConfig holds the background reconciliation settings
type ReconcileTriggerConfig struct {
	// Interval between passes. Zero disables the trigger.
	Interval time.Duration
	// StaleAfter selects listings whose last sync is older than this
	StaleAfter time.Duration
	// BatchSize caps listings examined per pass
	BatchSize int
}

// NewReconcileTriggerConfig builds the trigger configuration from settings
func NewReconcileTriggerConfig(cfg infraconfig.SyncConfig) ReconcileTriggerConfig {
	c := ReconcileTriggerConfig{
		Interval:   cfg.ReconcileInterval,
		StaleAfter: cfg.StaleAfter,
		BatchSize:  cfg.ReconcileBatch,
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// ReconcileTrigger periodically queues RECONCILE jobs for stale listings
type ReconcileTrigger struct {
	config   ReconcileTriggerConfig
	listings marketplace.ListingQuery
	jobs     JobSubmitter
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewReconcileTrigger creates a new trigger
func NewReconcileTrigger(config ReconcileTriggerConfig, listings marketplace.ListingQuery, jobs JobSubmitter, logger *zap.Logger) *ReconcileTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileTrigger{
		config:   config,
		listings: listings,
		jobs:     jobs,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins the periodic loop. It is a no-op when the interval is zero.
func (t *ReconcileTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isRunning {
		return nil
	}
	if t.config.Interval <= 0 {
		t.logger.Info("Background reconciliation disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.isRunning = true

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Reconcile trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Duration("stale_after", t.config.StaleAfter),
		zap.Int("batch_size", t.config.BatchSize),
	)
	return nil
}

// Stop stops the loop and waits for an in-flight pass to return
func (t *ReconcileTrigger) Stop() {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = false
	t.cancel()
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("Reconcile trigger stopped")
}

// IsRunning returns whether the loop is active
func (t *ReconcileTrigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isRunning
}

func (t *ReconcileTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.RunOnce(ctx); err != nil {
				t.logger.Error("Reconcile pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce queues one RECONCILE job per item that owns stale listings and
// returns the number of jobs queued. A full queue ends the pass early;
// the remaining listings are picked up on the next pass.
func (t *ReconcileTrigger) RunOnce(ctx context.Context) (int, error) {
	before := t.now().Add(-t.config.StaleAfter)
	stale, err := t.listings.FindStale(ctx, reconcilableStatuses, before, t.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var order []uuid.UUID
	byItem := make(map[uuid.UUID][]string)
	for _, l := range stale {
		if _, seen := byItem[l.ItemID]; !seen {
			order = append(order, l.ItemID)
		}
		byItem[l.ItemID] = append(byItem[l.ItemID], string(l.Marketplace))
	}

	queued := 0
	for _, itemID := range order {
		_, err := t.jobs.Submit(marketplaceapp.SyncRequest{
			ItemID:       itemID,
			Action:       marketplaceapp.ActionReconcile,
			Marketplaces: byItem[itemID],
		}, SourceReconciler)
		if errors.Is(err, ErrJobQueueFull) || errors.Is(err, ErrPoolStopped) {
			t.logger.Warn("Reconcile pass stopped early",
				zap.Int("queued", queued),
				zap.Int("items", len(order)),
				zap.Error(err),
			)
			break
		}
		if err != nil {
			t.logger.Error("Failed to queue reconcile job",
				logger.ItemID(itemID.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	t.logger.Info("Reconcile pass queued jobs",
		zap.Int("listings", len(stale)),
		zap.Int("jobs", queued),
	)
	return queued, nil
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	infraconfig "github.com/crosslist/backend/internal/infrastructure/config"
	"github.com/crosslist/backend/internal/infrastructure/logger"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// JobStatus represents the status of a sync job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Job sources
const (
	SourceAPI        = "api"
	SourceReconciler = "reconciler"
)

// SyncJob is one asynchronous sync request
type SyncJob struct {
	ID           uuid.UUID
	ItemID       uuid.UUID
	Action       marketplaceapp.SyncAction
	Marketplaces []string
	Source       string
	RequestID    string
	Status       JobStatus
	Error        string
	Outcomes     []marketplaceapp.SyncOutcome
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// NewSyncJob creates a queued job for req
func NewSyncJob(req marketplaceapp.SyncRequest, source string) *SyncJob {
	return &SyncJob{
		ID:           uuid.New(),
		ItemID:       req.ItemID,
		Action:       req.Action,
		Marketplaces: append([]string(nil), req.Marketplaces...),
		Source:       source,
		RequestID:    req.RequestID,
		Status:       JobStatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
}

// Request rebuilds the orchestrator request of the job
func (j *SyncJob) Request() marketplaceapp.SyncRequest {
	return marketplaceapp.SyncRequest{ItemID: j.ItemID, Action: j.Action, Marketplaces: j.Marketplaces, RequestID: j.RequestID}
}

func (j *SyncJob) start() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

func (j *SyncJob) complete(outcomes []marketplaceapp.SyncOutcome) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Outcomes = outcomes
	j.CompletedAt = &now
}

func (j *SyncJob) fail(err error) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
}

// SyncRunner executes a sync request. The orchestrator implements it.
type SyncRunner interface {
	Sync(ctx context.Context, req marketplaceapp.SyncRequest) ([]marketplaceapp.SyncOutcome, error)
}

// ---------------------------------------------------------------------------
// SyncWorkerPoolConfig
// ---------------------------------------------------------------------------

// SyncWorkerPoolConfig holds configuration for the async sync workers
type SyncWorkerPoolConfig struct {
	// Workers is the number of jobs processed concurrently
	Workers int
	// QueueSize bounds jobs waiting for a worker
	QueueSize int
	// JobTimeout bounds one job. Browser flows for several marketplaces
	// can take minutes.
	JobTimeout time.Duration
	// MaxHistory is how many finished jobs are kept for lookup
	MaxHistory int
}

// DefaultSyncWorkerPoolConfig returns default configuration
func DefaultSyncWorkerPoolConfig() SyncWorkerPoolConfig {
	return SyncWorkerPoolConfig{
		Workers:    2,
		QueueSize:  100,
		JobTimeout: 15 * time.Minute,
		MaxHistory: 500,
	}
}

// NewSyncWorkerPoolConfig builds the pool configuration from settings
func NewSyncWorkerPoolConfig(cfg infraconfig.SyncConfig) SyncWorkerPoolConfig {
	c := DefaultSyncWorkerPoolConfig()
	if cfg.WorkerCount > 0 {
		c.Workers = cfg.WorkerCount
	}
	if cfg.QueueSize > 0 {
		c.QueueSize = cfg.QueueSize
	}
	return c
}

// Validate validates the configuration
func (c *SyncWorkerPoolConfig) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 || c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = 500
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncWorkerPool
// ---------------------------------------------------------------------------

// SyncWorkerPool runs sync jobs in the background on a fixed set of
// workers. Retries of transient failures happen inside the runner, so a
// failed job is not resubmitted.
type SyncWorkerPool struct {
	config SyncWorkerPoolConfig
	runner SyncRunner
	logger *zap.Logger

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// jobsByID holds queued, running and recent jobs; order tracks eviction
	historyMu sync.RWMutex
	jobsByID  map[uuid.UUID]*SyncJob
	order     []uuid.UUID
}

// NewSyncWorkerPool creates a new worker pool
func NewSyncWorkerPool(config SyncWorkerPoolConfig, runner SyncRunner, logger *zap.Logger) (*SyncWorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, fmt.Errorf("%w: runner is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncWorkerPool{
		config:   config,
		runner:   runner,
		logger:   logger,
		jobs:     make(chan *SyncJob, config.QueueSize),
		jobsByID: make(map[uuid.UUID]*SyncJob),
	}, nil
}

// Start launches the workers
func (p *SyncWorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return nil
	}
	p.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("Sync worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers. Queued jobs that
// never started are dropped; their pairs keep their previous state.
func (p *SyncWorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Sync worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Sync worker pool stop timed out")
		return ctx.Err()
	}
}

// Submit queues req and returns the job without waiting for it
func (p *SyncWorkerPool) Submit(req marketplaceapp.SyncRequest, source string) (*SyncJob, error) {
	job := NewSyncJob(req, source)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isRunning {
		return nil, ErrPoolStopped
	}

	snap := job.snapshot()
	select {
	case p.jobs <- job:
	default:
		return nil, ErrJobQueueFull
	}
	p.remember(job)

	p.logger.Debug("Sync job submitted",
		zap.String("job_id", job.ID.String()),
		logger.ItemID(job.ItemID.String()),
		logger.Action(string(job.Action)),
		zap.String("source", source),
	)
	return snap, nil
}

// Job returns a copy of the job's current state
func (p *SyncWorkerPool) Job(id uuid.UUID) (*SyncJob, error) {
	p.historyMu.RLock()
	defer p.historyMu.RUnlock()
	job, ok := p.jobsByID[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// QueueLength returns the number of jobs waiting for a worker
func (p *SyncWorkerPool) QueueLength() int {
	return len(p.jobs)
}

func (p *SyncWorkerPool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.process(ctx, job, workerID)
		}
	}
}

func (p *SyncWorkerPool) process(ctx context.Context, job *SyncJob, workerID int) {
	p.update(job, (*SyncJob).start)
	p.logger.Info("Processing sync job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		logger.ItemID(job.ItemID.String()),
		logger.Action(string(job.Action)),
	)

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()
	jobCtx = logger.WithContext(logger.WithSyncJobID(jobCtx, job.ID.String()), p.logger)
	jobCtx = logger.WithRequestID(jobCtx, job.RequestID)

	outcomes, err := p.runner.Sync(jobCtx, job.Request())
	if err != nil {
		p.update(job, func(j *SyncJob) { j.fail(err) })
		p.logger.Error("Sync job failed",
			zap.String("job_id", job.ID.String()),
			logger.ItemID(job.ItemID.String()),
			zap.Error(err),
		)
		return
	}

	p.update(job, func(j *SyncJob) { j.complete(outcomes) })
	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	p.logger.Info("Sync job completed",
		zap.String("job_id", job.ID.String()),
		zap.Int("pairs", len(outcomes)),
		zap.Int("failed", failed),
	)
}

func (p *SyncWorkerPool) update(job *SyncJob, fn func(*SyncJob)) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	fn(job)
}

// remember stores job for lookup and evicts the oldest finished jobs
func (p *SyncWorkerPool) remember(job *SyncJob) {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	p.jobsByID[job.ID] = job
	p.order = append(p.order, job.ID)

	for len(p.order) > p.config.MaxHistory {
		oldest := p.jobsByID[p.order[0]]
		if oldest != nil && (oldest.Status == JobStatusQueued || oldest.Status == JobStatusRunning) {
			break
		}
		delete(p.jobsByID, p.order[0])
		p.order = p.order[1:]
	}
}

// snapshot copies the job; callers hold historyMu or own the job
func (j *SyncJob) snapshot() *SyncJob {
	cp := *j
	cp.Marketplaces = append([]string(nil), j.Marketplaces...)
	cp.Outcomes = append([]marketplaceapp.SyncOutcome(nil), j.Outcomes...)
	return &cp
}

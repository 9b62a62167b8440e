package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	// DefaultPoolSize is the number of concurrent sessions when unset
	DefaultPoolSize = 2
	// MaxPoolSize bounds the pool capacity
	MaxPoolSize = 8
)

// Errors returned by the pool
var (
	ErrInvalidPoolSize    = fmt.Errorf("browser: pool size must be between 1 and %d", MaxPoolSize)
	ErrPoolClosed         = errors.New("browser: pool is closed")
	ErrSessionUnavailable = errors.New("browser: session could not be started")
	ErrPagePanic          = errors.New("browser: page operation panicked")
)

// SessionFactory starts a browser session. The returned release function
// tears the session down and must be safe to call once.
type SessionFactory func(ctx context.Context) (Page, func(), error)

// Pool bounds how many browser sessions run at once. Requests beyond the
// capacity wait for a free slot or for their context to end.
type Pool struct {
	slots   chan struct{}
	factory SessionFactory
	logger  *zap.Logger

	active atomic.Int32

	mu     sync.RWMutex
	closed bool
	onStop func()
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger
func WithPoolLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithShutdown registers a function run by Close, such as stopping the
// browser allocator
func WithShutdown(fn func()) PoolOption {
	return func(p *Pool) { p.onStop = fn }
}

// NewPool creates a pool with the given capacity. Zero selects DefaultPoolSize.
func NewPool(size int, factory SessionFactory, opts ...PoolOption) (*Pool, error) {
	if size == 0 {
		size = DefaultPoolSize
	}
	if size < 1 || size > MaxPoolSize {
		return nil, ErrInvalidPoolSize
	}
	if factory == nil {
		return nil, errors.New("browser: session factory is required")
	}
	p := &Pool{
		slots:   make(chan struct{}, size),
		factory: factory,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// WithPage borrows a slot, starts a fresh session and runs fn against its
// page. The session is released however fn returns.
func (p *Pool) WithPage(ctx context.Context, fn func(Page) error) (err error) {
	if p.isClosed() {
		return ErrPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	if err := ctx.Err(); err != nil {
		return err
	}

	page, release, err := p.factory(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	p.active.Add(1)
	defer func() {
		release()
		p.active.Add(-1)
	}()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Browser page operation panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrPagePanic, r)
		}
	}()

	return fn(page)
}

// Capacity returns the maximum number of concurrent sessions
func (p *Pool) Capacity() int {
	return cap(p.slots)
}

// Active returns the number of sessions currently running
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Close rejects new operations and runs the shutdown hook. Operations in
// flight finish on their own sessions.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.onStop != nil {
		p.onStop()
	}
	return nil
}

func (p *Pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

var _ Browser = (*Pool)(nil)

package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/domain/marketplace"
)

// stubPage is a Page whose location follows a scripted list
type stubPage struct {
	mu   sync.Mutex
	urls []string
}

func (p *stubPage) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.urls) == 0 {
		return "", errors.New("no page")
	}
	u := p.urls[0]
	if len(p.urls) > 1 {
		p.urls = p.urls[1:]
	}
	return u, nil
}

func (p *stubPage) Navigate(string) error                         { return nil }
func (p *stubPage) Text() (string, error)                         { return "", nil }
func (p *stubPage) WaitVisible(string, time.Duration) error       { return nil }
func (p *stubPage) Exists(string) (bool, error)                   { return false, nil }
func (p *stubPage) Fill(string, string) error                     { return nil }
func (p *stubPage) Click(string) error                            { return nil }
func (p *stubPage) ClickText(...string) (string, error)           { return "", ErrElementNotFound }
func (p *stubPage) Anchors(string) ([]Anchor, error)              { return nil, nil }
func (p *stubPage) Upload(string, []string) error                 { return nil }
func (p *stubPage) SetCookies([]marketplace.SessionCookie) error  { return nil }
func (p *stubPage) Cookies() ([]marketplace.SessionCookie, error) { return nil, nil }
func (p *stubPage) Screenshot() ([]byte, error)                   { return nil, nil }

// countingFactory tracks live and peak sessions
type countingFactory struct {
	live     atomic.Int32
	peak     atomic.Int32
	started  atomic.Int32
	released atomic.Int32
	err      error
}

func (f *countingFactory) New(ctx context.Context) (Page, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.started.Add(1)
	n := f.live.Add(1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	var once sync.Once
	return &stubPage{urls: []string{"about:blank"}}, func() {
		once.Do(func() {
			f.live.Add(-1)
			f.released.Add(1)
		})
	}, nil
}

func TestNewPool(t *testing.T) {
	f := &countingFactory{}

	p, err := NewPool(0, f.New)
	require.NoError(t, err)
	assert.Equal(t, DefaultPoolSize, p.Capacity())

	_, err = NewPool(MaxPoolSize+1, f.New)
	assert.ErrorIs(t, err, ErrInvalidPoolSize)

	_, err = NewPool(-1, f.New)
	assert.ErrorIs(t, err, ErrInvalidPoolSize)

	_, err = NewPool(1, nil)
	assert.Error(t, err)
}

func TestPool_NeverExceedsCapacity(t *testing.T) {
	f := &countingFactory{}
	p, err := NewPool(2, f.New)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.WithPage(context.Background(), func(Page) error {
				time.Sleep(5 * time.Millisecond)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, f.peak.Load(), int32(2))
	assert.Equal(t, int32(10), f.started.Load())
	assert.Equal(t, int32(10), f.released.Load())
	assert.Zero(t, p.Active())
}

func TestPool_ReleasesOnError(t *testing.T) {
	f := &countingFactory{}
	p, err := NewPool(1, f.New)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = p.WithPage(context.Background(), func(Page) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), f.released.Load())

	// The slot is free again.
	assert.NoError(t, p.WithPage(context.Background(), func(Page) error { return nil }))
}

func TestPool_ReleasesOnPanic(t *testing.T) {
	f := &countingFactory{}
	p, err := NewPool(1, f.New)
	require.NoError(t, err)

	err = p.WithPage(context.Background(), func(Page) error { panic("selector exploded") })
	assert.ErrorIs(t, err, ErrPagePanic)
	assert.Equal(t, int32(1), f.released.Load())
	assert.Zero(t, p.Active())
	assert.NoError(t, p.WithPage(context.Background(), func(Page) error { return nil }))
}

func TestPool_WaitHonorsContext(t *testing.T) {
	f := &countingFactory{}
	p, err := NewPool(1, f.New)
	require.NoError(t, err)

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.WithPage(context.Background(), func(Page) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err = p.WithPage(ctx, func(Page) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
	close(hold)
}

func TestPool_SessionFailure(t *testing.T) {
	f := &countingFactory{err: errors.New("chrome not found")}
	p, err := NewPool(1, f.New)
	require.NoError(t, err)

	err = p.WithPage(context.Background(), func(Page) error { return nil })
	assert.ErrorIs(t, err, ErrSessionUnavailable)
	// A failed start must not leak the slot.
	err = p.WithPage(context.Background(), func(Page) error { return nil })
	assert.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestPool_Close(t *testing.T) {
	stopped := false
	p, err := NewPool(1, (&countingFactory{}).New, WithShutdown(func() { stopped = true }))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, stopped)
	assert.ErrorIs(t, p.WithPage(context.Background(), func(Page) error { return nil }), ErrPoolClosed)
}

func TestWaitURL(t *testing.T) {
	page := &stubPage{urls: []string{"https://poshmark.com/login", "https://poshmark.com/login", "https://poshmark.com/feed"}}

	u, err := WaitURL(context.Background(), page, func(u string) bool {
		return u == "https://poshmark.com/feed"
	}, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "https://poshmark.com/feed", u)

	stuck := &stubPage{urls: []string{"https://poshmark.com/login"}}
	u, err = WaitURL(context.Background(), stuck, func(string) bool { return false }, 10*time.Millisecond, time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.Equal(t, "https://poshmark.com/login", u)
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("Pardon the Interruption", "pardon the interruption"))
	assert.False(t, ContainsAny("Welcome", "sold", "not found"))
}

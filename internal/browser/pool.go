package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle state of a pooled session.
type Status string

// Session states tracked by the pool.
const (
	StatusIdle  Status = "idle"
	StatusBusy  Status = "busy"
	StatusError Status = "error"
)

// maxSessionErrors is the strike count after which a session is retired
// instead of being returned to the idle set.
const maxSessionErrors = 2

type entry struct {
	session    Session
	status     Status
	lastActive time.Time
	errorCount int
}

// Pool hands out exclusive-use browser sessions up to a fixed cap. Acquire
// blocks when the pool is saturated; sessions that error twice are retired
// and replaced lazily on the next demand.
type Pool struct {
	factory Factory
	slots   chan struct{}
	logger  *zap.Logger

	mu     sync.Mutex
	idle   []*entry
	closed bool
}

// NewPool creates a Pool of at most size sessions built by factory. Sessions
// are created lazily on first Acquire.
func NewPool(size int, factory Factory, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0")
	}
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	return &Pool{
		factory: factory,
		slots:   make(chan struct{}, size),
		logger:  logger,
	}, nil
}

// Lease is a scoped acquisition of one session. Release must be called on
// every exit path; it is idempotent so a deferred Release is always safe.
type Lease struct {
	pool     *Pool
	entry    *entry
	released bool
}

// Acquire blocks until a session is idle or a new one can be created under
// the cap. The caller receives exclusive use until Release.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, fmt.Errorf("browser pool is closed")
	}
	if n := len(p.idle); n > 0 {
		e := p.idle[n-1]
		p.idle = p.idle[:n-1]
		e.status = StatusBusy
		p.mu.Unlock()
		return &Lease{pool: p, entry: e}, nil
	}
	p.mu.Unlock()

	session, err := p.factory()
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("create browser session: %w", err)
	}
	return &Lease{pool: p, entry: &entry{session: session, status: StatusBusy}}, nil
}

// Navigate drives the leased session and records a strike when the session
// fails, so the pool can retire flaky sessions on Release.
func (l *Lease) Navigate(ctx context.Context, url string) (Page, error) {
	page, err := l.entry.session.Navigate(ctx, url)
	if err != nil {
		l.entry.errorCount++
		return Page{}, err
	}
	return page, nil
}

// Session exposes the underlying session ID for logging.
func (l *Lease) Session() string {
	return l.entry.session.ID()
}

// Release returns the session to the pool, or retires it after repeated
// errors. Safe to call more than once.
func (l *Lease) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	l.pool.release(l.entry)
}

func (p *Pool) release(e *entry) {
	e.lastActive = time.Now()

	p.mu.Lock()
	retire := e.errorCount >= maxSessionErrors || p.closed
	if retire {
		e.status = StatusError
	} else {
		e.status = StatusIdle
		p.idle = append(p.idle, e)
	}
	p.mu.Unlock()

	if retire {
		if err := e.session.Close(); err != nil {
			p.logger.Warn("close retired browser session",
				zap.String("session_id", e.session.ID()), zap.Error(err))
		}
		p.logger.Debug("retired browser session",
			zap.String("session_id", e.session.ID()),
			zap.Int("error_count", e.errorCount))
	}
	<-p.slots
}

// Close drains the pool: it waits for every lease to be released, closes all
// sessions, and rejects further Acquires.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	// Taking every slot guarantees no lease is outstanding.
	for i := 0; i < cap(p.slots); i++ {
		p.slots <- struct{}{}
	}

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, e := range idle {
		if err := e.session.Close(); err != nil {
			p.logger.Warn("close browser session",
				zap.String("session_id", e.session.ID()), zap.Error(err))
		}
	}
	for i := 0; i < cap(p.slots); i++ {
		<-p.slots
	}
}

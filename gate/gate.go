/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package gate provides a FIFO concurrency gate that bounds the number of simultaneously executing
// backend calls. Callers over the ceiling wait in arrival order.
package gate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/acronis/go-apiorch/log"
)

// DefaultMaxConcurrent is the default ceiling of simultaneously granted permits.
const DefaultMaxConcurrent = 4

// ErrClosed is returned by Acquire after the gate is closed.
var ErrClosed = errors.New("concurrency gate is closed")

// Opts represents options for Gate.
type Opts struct {
	// MaxConcurrent is the ceiling of simultaneously granted permits. DefaultMaxConcurrent is used if zero.
	MaxConcurrent int

	// Strict makes a repeated Permit.Release panic instead of being logged and ignored.
	Strict bool

	// Logger is used to report misuse. Disabled if nil.
	Logger log.FieldLogger
}

// Gate grants at most MaxConcurrent permits at a time. Waiters are served in FIFO order.
type Gate struct {
	sem           *semaphore.Weighted
	maxConcurrent int
	strict        bool
	logger        log.FieldLogger

	active         atomic.Int32
	queued         atomic.Int32
	doubleReleases atomic.Int64

	closeCtx context.Context
	close    context.CancelFunc
}

// New creates a new Gate.
func New(opts Opts) (*Gate, error) {
	if opts.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrent should be positive, got %d", opts.MaxConcurrent)
	}
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	closeCtx, closeFn := context.WithCancel(context.Background())
	return &Gate{
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		maxConcurrent: opts.MaxConcurrent,
		strict:        opts.Strict,
		logger:        opts.Logger,
		closeCtx:      closeCtx,
		close:         closeFn,
	}, nil
}

// MustNew is like New but panics on error.
func MustNew(opts Opts) *Gate {
	g, err := New(opts)
	if err != nil {
		panic(err)
	}
	return g
}

// Acquire blocks until a permit is granted, ctx is done, or the gate is closed.
// A caller leaving the queue because of ctx or Close does not consume a permit.
func (g *Gate) Acquire(ctx context.Context) (*Permit, error) {
	if g.closeCtx.Err() != nil {
		return nil, ErrClosed
	}
	// Succeeds only when nobody is queued, so FIFO order is kept.
	if p, ok := g.TryAcquire(); ok {
		return p, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(g.closeCtx, cancel)
	defer stop()

	queued := g.queued.Inc()
	g.logger.Debug("waiting for a permit", log.Int("queued", int(queued)), log.Int("active", g.Active()))
	err := g.sem.Acquire(ctx, 1)
	g.queued.Dec()
	if err != nil {
		if g.closeCtx.Err() != nil {
			return nil, ErrClosed
		}
		return nil, err
	}
	g.active.Inc()
	return &Permit{gate: g}, nil
}

// TryAcquire grants a permit only if one is available immediately.
func (g *Gate) TryAcquire() (*Permit, bool) {
	if g.closeCtx.Err() != nil || !g.sem.TryAcquire(1) {
		return nil, false
	}
	g.active.Inc()
	return &Permit{gate: g}, true
}

// Active returns the number of granted and not yet released permits.
func (g *Gate) Active() int {
	return int(g.active.Load())
}

// Queued returns the number of callers waiting for a permit.
func (g *Gate) Queued() int {
	return int(g.queued.Load())
}

// MaxConcurrent returns the ceiling of simultaneously granted permits.
func (g *Gate) MaxConcurrent() int {
	return g.maxConcurrent
}

// Close makes all queued and future Acquire calls fail with ErrClosed.
// Permits granted before remain valid and must still be released.
func (g *Gate) Close() {
	g.close()
}

// Permit is a single admission granted by Gate.
type Permit struct {
	gate     *Gate
	released atomic.Bool
}

// Release returns the permit to the gate. It never blocks.
// Only the first call has effect; later calls are reported as misuse.
func (p *Permit) Release() {
	if !p.released.CompareAndSwap(false, true) {
		p.gate.onDoubleRelease()
		return
	}
	p.gate.active.Dec()
	p.gate.sem.Release(1)
}

func (g *Gate) onDoubleRelease() {
	n := g.doubleReleases.Inc()
	if g.strict {
		panic("gate: permit released more than once")
	}
	g.logger.Warn("permit released more than once, ignoring", log.Int64("double_releases", n))
}

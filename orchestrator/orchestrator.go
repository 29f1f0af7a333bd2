/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/acronis/go-apiorch/apierr"
	"github.com/acronis/go-apiorch/gate"
	"github.com/acronis/go-apiorch/inflight"
	"github.com/acronis/go-apiorch/invalidation"
	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/lrucache"
	"github.com/acronis/go-apiorch/retry"
	"github.com/acronis/go-apiorch/stats"
)

// InvalidationKindManual is the Tag.Kind used by Invalidate.
const InvalidationKindManual = "manual"

// Opts represents optional parameters of Orchestrator.
type Opts struct {
	Logger       log.FieldLogger
	CacheMetrics lrucache.MetricsCollector
	StatsMetrics stats.MetricsCollector
	// Clock returns the current time. time.Now is used if nil.
	Clock func() time.Time
	// NewTimer creates timers for backoff sleeps. Real timers are used if nil.
	NewTimer func() backoff.Timer
}

// Orchestrator caches, coalesces, throttles and retries backend calls made through a Transport.
// It is safe for concurrent use. Close must be called to stop background activity.
type Orchestrator struct {
	transport         Transport
	tenantParam       string
	coalesceMutations bool
	policy            retry.BackendPolicy
	cleanupInterval   time.Duration
	newTimer          func() backoff.Timer
	now               func() time.Time
	logger            log.FieldLogger

	cache   *lrucache.LRUCache[Signature, any]
	flights *inflight.Registry[Signature, any]
	gate    *gate.Gate
	bus     *invalidation.Bus
	stats   *stats.Recorder

	// invMu orders cache stores of read results against invalidations.
	// Reads in progress are marked stale by invalidations matching them, so their results are not cached.
	invMu   sync.Mutex
	pending map[*pendingRead]struct{}

	directCalls atomic.Int32

	lifeCtx    context.Context
	cancelLife context.CancelFunc
	mu         sync.RWMutex
	closed     bool
	wg         sync.WaitGroup
}

// New creates an Orchestrator over transport. cfg may be nil, in this case defaults are used.
func New(cfg *Config, transport Transport, opts Opts) (*Orchestrator, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	policy := cfg.RetryPolicy()
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	cache, err := lrucache.NewWithOpts[Signature, any](cfg.Cache.MaxEntries, opts.CacheMetrics, lrucache.Options{
		DefaultTTL: cfg.Cache.TTL.Duration(),
		Clock:      opts.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	g, err := gate.New(gate.Opts{MaxConcurrent: cfg.Gate.MaxConcurrent, Strict: cfg.Gate.Strict, Logger: opts.Logger})
	if err != nil {
		return nil, fmt.Errorf("create concurrency gate: %w", err)
	}

	o := &Orchestrator{
		transport:         transport,
		tenantParam:       cfg.TenantParam,
		coalesceMutations: cfg.CoalesceMutations,
		policy:            policy,
		cleanupInterval:   cfg.Cache.CleanupInterval.Duration(),
		newTimer:          opts.NewTimer,
		now:               opts.Clock,
		logger:            opts.Logger,
		cache:             cache,
		flights:           inflight.NewRegistryWithOpts[Signature, any](inflight.RegistryOpts{Clock: opts.Clock}),
		gate:              g,
		pending:           make(map[*pendingRead]struct{}),
	}
	o.bus = invalidation.NewBus(cacheStore{cache}, invalidation.BusOpts{Logger: opts.Logger})

	if o.stats, err = stats.NewRecorder(stats.RecorderOpts{
		Window:           cfg.Stats.Window.Duration(),
		MaxEvents:        cfg.Stats.MaxEvents,
		Clock:            opts.Clock,
		Sources:          o.StatsSources(),
		MetricsCollector: opts.StatsMetrics,
		Logger:           opts.Logger,
	}); err != nil {
		return nil, fmt.Errorf("create stats recorder: %w", err)
	}

	o.lifeCtx, o.cancelLife = context.WithCancel(context.Background())
	return o, nil
}

// Call performs a logical backend call.
// Read calls are served from cache when possible; identical concurrent calls share one backend call.
// If ctx is done while the call is shared with others, the backend call goes on and only this caller gets ctx.Err().
func (o *Orchestrator) Call(
	ctx context.Context, kind Kind, resource string, params map[string]any, opts ...CallOption,
) (any, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}

	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	req := Request{Kind: kind, Resource: resource, Params: params}
	sig, err := NewSignature(req, o.tenantParam)
	if err != nil {
		return nil, &Error{Kind: ErrorKindFailed, Op: string(kind), Resource: resource, Err: err}
	}

	if co.forceInvalidate {
		o.invalidate(invalidation.Tag{Resource: resource, Tenant: sig.Tenant, Kind: string(kind)})
	}

	if kind.IsRead() && !co.skipCache {
		if val, ok := o.cache.Get(sig); ok {
			o.stats.RecordCacheHit()
			return val, nil
		}
		o.stats.RecordCacheMiss()
	}

	if !kind.IsRead() && !o.coalesceMutations {
		return o.callDirect(ctx, sig, req, co)
	}

	call, owner := o.flights.BeginOrJoin(sig)
	if !owner {
		o.stats.RecordCoalesced()
		o.logger.AtLevel(log.LevelDebug, func(logFunc log.LogFunc) {
			logFunc("joined in-flight call",
				log.String("signature", sig.String()), log.Int("waiters", o.flights.Waiters(sig)))
		})
		return call.Wait(ctx)
	}
	if !o.track() {
		if settleErr := o.flights.Settle(sig, call, nil, ErrClosed); settleErr != nil {
			o.logger.Error("failed to settle in-flight call", log.Error(settleErr))
		}
		return nil, ErrClosed
	}
	go o.fly(sig, req, co, call)
	return call.Wait(ctx)
}

// Get fetches a single entity.
func (o *Orchestrator) Get(ctx context.Context, resource string, params map[string]any, opts ...CallOption) (any, error) {
	return o.Call(ctx, KindGet, resource, params, opts...)
}

// List fetches a collection.
func (o *Orchestrator) List(ctx context.Context, resource string, params map[string]any, opts ...CallOption) (any, error) {
	return o.Call(ctx, KindList, resource, params, opts...)
}

// Filter fetches a filtered collection.
func (o *Orchestrator) Filter(ctx context.Context, resource string, params map[string]any, opts ...CallOption) (any, error) {
	return o.Call(ctx, KindFilter, resource, params, opts...)
}

// Create creates an entity and invalidates cached results of the resource on success.
func (o *Orchestrator) Create(ctx context.Context, resource string, params map[string]any, opts ...CallOption) (any, error) {
	return o.Call(ctx, KindCreate, resource, params, opts...)
}

// Update updates an entity and invalidates cached results of the resource on success.
func (o *Orchestrator) Update(ctx context.Context, resource string, params map[string]any, opts ...CallOption) (any, error) {
	return o.Call(ctx, KindUpdate, resource, params, opts...)
}

// Delete deletes an entity and invalidates cached results of the resource on success.
func (o *Orchestrator) Delete(ctx context.Context, resource string, params map[string]any, opts ...CallOption) (any, error) {
	return o.Call(ctx, KindDelete, resource, params, opts...)
}

// Prefetch warms the cache with the results of read requests, running them concurrently.
// It returns the first error; the results of successful requests stay cached.
func (o *Orchestrator) Prefetch(ctx context.Context, reqs ...Request) error {
	for _, req := range reqs {
		if !req.Kind.IsRead() {
			return fmt.Errorf("prefetch %s %s: only get, list and filter requests can be prefetched", req.Kind, req.Resource)
		}
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.gate.MaxConcurrent())
	for _, req := range reqs {
		req := req
		eg.Go(func() error {
			if _, err := o.Call(egCtx, req.Kind, req.Resource, req.Params); err != nil {
				return fmt.Errorf("prefetch %s %s: %w", req.Kind, req.Resource, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Invalidate drops cached results of resource within tenant (all tenants if empty), including linked resources.
func (o *Orchestrator) Invalidate(resource, tenant string) int {
	return o.invalidate(invalidation.Tag{Resource: resource, Tenant: tenant, Kind: InvalidationKindManual})
}

// PurgeCache drops all cached results.
func (o *Orchestrator) PurgeCache() {
	o.invMu.Lock()
	defer o.invMu.Unlock()
	for pr := range o.pending {
		pr.stale = true
	}
	o.cache.Purge()
	o.logger.Info("cache purged")
}

// SweepExpired physically removes expired cache entries and returns their number.
func (o *Orchestrator) SweepExpired() int {
	return o.cache.DeleteExpired()
}

// Invalidation returns the invalidation bus, allowing custom rules and resource links to be registered.
func (o *Orchestrator) Invalidation() *invalidation.Bus {
	return o.bus
}

// Stats returns current statistics.
func (o *Orchestrator) Stats() stats.Snapshot {
	return o.stats.Snapshot()
}

// RecentRateLimitEvents returns rate-limit events of the last stats window, most recent first.
func (o *Orchestrator) RecentRateLimitEvents() []stats.RateLimitEvent {
	return o.stats.RecentRateLimitEvents()
}

// StatsSources returns the live gauges of the orchestrator, e.g. for stats.PrometheusMetricsOpts.
func (o *Orchestrator) StatsSources() stats.Sources {
	return stats.Sources{
		CacheSize:        o.cache.Len,
		ActiveRequests:   o.gate.Active,
		QueuedRequests:   o.gate.Queued,
		InFlightRequests: o.inFlight,
	}
}

// Close aborts queued and sleeping calls with ErrClosed, waits for running backend calls to return,
// and makes further calls fail with ErrClosed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancelLife()
	o.gate.Close()
	o.wg.Wait()
	o.cache.Purge()
	o.logger.Info("orchestrator closed")
	return nil
}

func (o *Orchestrator) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}

// track registers background work that Close has to wait for.
func (o *Orchestrator) track() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return false
	}
	o.wg.Add(1)
	return true
}

func (o *Orchestrator) inFlight() int {
	return o.flights.Len() + int(o.directCalls.Load())
}

func (o *Orchestrator) invalidate(tag invalidation.Tag) int {
	o.invMu.Lock()
	defer o.invMu.Unlock()
	if len(o.pending) != 0 {
		match := o.bus.Matcher(tag)
		for pr := range o.pending {
			if !pr.stale && match(pr.entry) {
				pr.stale = true
			}
		}
	}
	return o.bus.OnMutation(tag)
}

// pendingRead is a read whose result may still be cached.
type pendingRead struct {
	entry invalidation.Entry
	stale bool
}

func (o *Orchestrator) beginRead(sig Signature) *pendingRead {
	pr := &pendingRead{entry: entryOf(sig)}
	o.invMu.Lock()
	o.pending[pr] = struct{}{}
	o.invMu.Unlock()
	return pr
}

func (o *Orchestrator) endRead(pr *pendingRead) {
	o.invMu.Lock()
	delete(o.pending, pr)
	o.invMu.Unlock()
}

func (o *Orchestrator) fly(sig Signature, req Request, co callOptions, call *inflight.Call[any]) {
	defer o.wg.Done()
	val, err := o.executeSafely(o.lifeCtx, sig, req, co)
	waiters := call.Waiters()
	if settleErr := o.flights.Settle(sig, call, val, err); settleErr != nil {
		o.logger.Error("failed to settle in-flight call", log.String("signature", sig.String()), log.Error(settleErr))
		return
	}
	o.logger.AtLevel(log.LevelDebug, func(logFunc log.LogFunc) {
		logFunc("in-flight call settled",
			log.String("signature", sig.String()),
			log.Int("waiters", waiters),
			log.DurationIn(o.now().Sub(call.StartedAt()), time.Millisecond),
		)
	})
}

func (o *Orchestrator) callDirect(ctx context.Context, sig Signature, req Request, co callOptions) (any, error) {
	if !o.track() {
		return nil, ErrClosed
	}
	defer o.wg.Done()
	o.directCalls.Inc()
	defer o.directCalls.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(o.lifeCtx, cancel)
	defer stop()

	return o.executeSafely(ctx, sig, req, co)
}

func (o *Orchestrator) executeSafely(ctx context.Context, sig Signature, req Request, co callOptions) (val any, err error) {
	defer func() {
		if p := recover(); p != nil {
			panicErr := inflight.NewPanicError(p)
			o.logger.Error("panic in transport", log.String("signature", sig.String()), log.Bytes("stack", panicErr.Stack))
			o.stats.RecordFailure(string(ErrorKindFailed))
			val, err = nil, &Error{Kind: ErrorKindFailed, Op: string(req.Kind), Resource: req.Resource, Err: panicErr}
		}
	}()
	return o.execute(ctx, sig, req, co)
}

func (o *Orchestrator) execute(ctx context.Context, sig Signature, req Request, co callOptions) (any, error) {
	logger := o.logger.With(
		log.String("flight_id", xid.New().String()),
		log.String("kind", string(req.Kind)),
		log.String("resource", req.Resource),
	)
	startedAt := time.Now()
	var read *pendingRead
	if req.Kind.IsRead() {
		read = o.beginRead(sig)
		defer o.endRead(read)
	}

	attempts := 0
	var result any
	notify := func(err error, delay time.Duration) {
		if apierr.KindOf(err) == ErrorKindRateLimited {
			o.stats.RecordRateLimit(stats.RateLimitEvent{
				Attempt: attempts - 1, Delay: delay, Kind: string(req.Kind), Resource: req.Resource,
			})
		}
		logger.Warn("backend call failed, retrying",
			log.Error(err), log.Int("attempt", attempts-1), log.Duration("delay", delay))
	}
	op := func(ctx context.Context) error {
		permit, err := o.gate.Acquire(ctx)
		if err != nil {
			return err
		}
		defer permit.Release()

		attempts++
		o.stats.RecordTransportCall()
		val, err := o.transport.Execute(ctx, req)
		if err != nil {
			return err
		}
		result = val
		return nil
	}

	var timer backoff.Timer
	if o.newTimer != nil {
		timer = o.newTimer()
	}
	if err := retry.DoWithRetryTimer(ctx, o.policy, o.policy.IsRetryable, notify, timer, op); err != nil {
		if apierr.KindOf(err) == ErrorKindRateLimited {
			o.stats.RecordRateLimit(stats.RateLimitEvent{
				Attempt: attempts - 1, Kind: string(req.Kind), Resource: req.Resource,
			})
		}
		err = o.terminalError(ctx, err, req, attempts)
		if !errors.Is(err, ErrClosed) && !apierr.IsContextError(err) {
			o.stats.RecordFailure(string(apierr.KindOf(err)))
		}
		logger.Warn("backend call failed", log.Error(err), log.Int("attempts", attempts))
		return nil, err
	}

	switch {
	case req.Kind.IsRead():
		o.store(sig, result, co, read, logger)
	case req.Kind.IsMutation():
		o.invalidate(invalidation.Tag{Resource: req.Resource, Tenant: sig.Tenant, Kind: string(req.Kind)})
	}
	logger.Debug("backend call succeeded",
		log.Int("attempts", attempts), log.DurationIn(time.Since(startedAt), time.Millisecond))
	return result, nil
}

func (o *Orchestrator) store(sig Signature, val any, co callOptions, read *pendingRead, logger log.FieldLogger) {
	o.invMu.Lock()
	defer o.invMu.Unlock()
	if read.stale {
		logger.Debug("result is not cached since the cache was invalidated during the call")
		return
	}
	ttl := co.ttl
	if ttl <= 0 {
		ttl = o.cache.DefaultTTL()
	}
	o.cache.AddWithTTL(sig, val, ttl)
}

func (o *Orchestrator) terminalError(ctx context.Context, err error, req Request, attempts int) error {
	if errors.Is(err, gate.ErrClosed) {
		return ErrClosed
	}
	if ctx.Err() != nil && apierr.IsContextError(err) {
		if o.lifeCtx.Err() != nil {
			return ErrClosed
		}
		return ctx.Err()
	}
	if apiErr, ok := err.(*Error); ok { //nolint:errorlint // only an unwrapped *Error is copied
		e := *apiErr
		e.Op, e.Resource, e.Attempts = string(req.Kind), req.Resource, attempts
		return &e
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:       apiErr.Kind,
			Op:         string(req.Kind),
			Resource:   req.Resource,
			StatusCode: apiErr.StatusCode,
			RetryAfter: apiErr.RetryAfter,
			Attempts:   attempts,
			Err:        err,
		}
	}
	return &Error{Kind: ErrorKindFailed, Op: string(req.Kind), Resource: req.Resource, Attempts: attempts, Err: err}
}

type cacheStore struct {
	cache *lrucache.LRUCache[Signature, any]
}

func (s cacheStore) RemoveMatching(match func(invalidation.Entry) bool) int {
	return s.cache.RemoveIf(func(sig Signature, _ any) bool {
		return match(entryOf(sig))
	})
}

func entryOf(sig Signature) invalidation.Entry {
	return invalidation.Entry{Kind: string(sig.Kind), Resource: sig.Resource, Tenant: sig.Tenant}
}

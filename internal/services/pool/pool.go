// Package pool bounds concurrent use of backend connections.
//
// A Pool owns every connection it dials. Callers Lease a connection, use it
// exclusively, and Release it exactly once with a Health verdict that tells
// the pool whether the connection may be reused.
package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
)

var (
	// ErrClosed is wrapped by lease errors after Close.
	ErrClosed = errors.New("pool is closed")
	// ErrDoubleRelease is returned when a lease is released twice.
	ErrDoubleRelease = errors.New("lease already released")
)

// Health is the caller's verdict on a connection at release time.
type Health int

const (
	// HealthOK returns the connection to the idle set.
	HealthOK Health = iota
	// HealthTransient pings the connection before reusing it.
	HealthTransient
	// HealthFatal destroys the connection.
	HealthFatal
)

// String returns the health name.
func (h Health) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthTransient:
		return "transient"
	case HealthFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// State is the pool's availability.
type State int

const (
	StateReady State = iota
	StateUnavailable
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Pool.
type Options struct {
	MinSize      int
	MaxSize      int
	WaitForLease bool
	LeaseTimeout time.Duration
	IdleTTL      time.Duration

	DialTimeout         time.Duration
	PingTimeout         time.Duration
	MaintenanceInterval time.Duration

	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration

	// UnavailableAfter is the number of dials in a row that must fail before
	// the pool stops leasing and reports Unavailable.
	UnavailableAfter int
}

// DefaultOptions returns the built-in pool settings.
func DefaultOptions() Options {
	return Options{
		MinSize:                  1,
		MaxSize:                  10,
		WaitForLease:             true,
		LeaseTimeout:             5 * time.Second,
		IdleTTL:                  5 * time.Minute,
		DialTimeout:              10 * time.Second,
		PingTimeout:              2 * time.Second,
		MaintenanceInterval:      30 * time.Second,
		ReconnectInitialInterval: 500 * time.Millisecond,
		ReconnectMaxInterval:     30 * time.Second,
		UnavailableAfter:         3,
	}
}

// Validate checks the size bounds.
func (o Options) Validate() error {
	if o.MaxSize < 1 {
		return fmt.Errorf("pool max size must be at least 1, got %d", o.MaxSize)
	}
	if o.MinSize < 0 || o.MinSize > o.MaxSize {
		return fmt.Errorf("pool min size must be between 0 and %d, got %d", o.MaxSize, o.MinSize)
	}
	return nil
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = d.PingTimeout
	}
	if o.MaintenanceInterval <= 0 {
		o.MaintenanceInterval = d.MaintenanceInterval
	}
	if o.ReconnectInitialInterval <= 0 {
		o.ReconnectInitialInterval = d.ReconnectInitialInterval
	}
	if o.ReconnectMaxInterval <= 0 {
		o.ReconnectMaxInterval = d.ReconnectMaxInterval
	}
	if o.UnavailableAfter <= 0 {
		o.UnavailableAfter = d.UnavailableAfter
	}
	return o
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	State        State
	Open         int
	Idle         int
	InUse        int
	Pending      int
	Waiting      int
	Leases       int64
	Releases     int64
	Destroyed    int64
	Dials        int64
	DialFailures int64
	Exhausted    int64
}

type entry struct {
	id       uint64
	conn     docdb.Conn
	lastUsed time.Time
}

// Lease is exclusive access to one pooled connection.
type Lease struct {
	pool     *Pool
	entry    *entry
	released atomic.Bool
}

// Conn returns the leased connection.
func (l *Lease) Conn() docdb.Conn {
	return l.entry.conn
}

// ID identifies the underlying connection.
func (l *Lease) ID() uint64 {
	return l.entry.id
}

type waitResult struct {
	entry *entry
	err   error
}

type waiter struct {
	ch chan waitResult
}

// Pool is a bounded set of backend connections.
type Pool struct {
	connector docdb.Connector
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	state        State
	lastErr      error
	idle         []*entry
	open         int // idle + leased + pending
	pending      int // dialling or being verified
	waiters      *list.List
	reconnecting bool
	failStreak   int // dials failed in a row
	nextID       uint64

	leases       int64
	releases     int64
	destroyed    int64
	dials        int64
	dialFailures int64
	exhausted    int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pool and dials MinSize connections in parallel. If no
// connection could be warmed the pool starts Unavailable and reconnects in the
// background; a partial warm-up is topped up by maintenance.
func New(ctx context.Context, connector docdb.Connector, opts Options, logger zerolog.Logger) (*Pool, error) {
	if connector == nil {
		return nil, errors.New("pool requires a connector")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	poolCtx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		connector: connector,
		opts:      opts,
		logger:    logger.With().Str("component", "pool").Str("backend", connector.Name()).Logger(),
		now:       time.Now,
		waiters:   list.New(),
		ctx:       poolCtx,
		cancel:    cancel,
	}

	if warmed, err := p.warmUp(ctx); err != nil {
		if warmed == 0 {
			p.logger.Warn().Err(err).Msg("warm-up failed, starting unavailable")
			p.mu.Lock()
			p.markUnavailableLocked(err)
			p.mu.Unlock()
		} else {
			p.logger.Warn().Err(err).Int("warmed", warmed).Msg("partial warm-up")
		}
	}

	p.wg.Add(1)
	go p.maintain()

	p.logger.Info().
		Int("min_size", opts.MinSize).
		Int("max_size", opts.MaxSize).
		Bool("wait_for_lease", opts.WaitForLease).
		Msg("connection pool started")

	return p, nil
}

func (p *Pool) warmUp(ctx context.Context) (int, error) {
	if p.opts.MinSize == 0 {
		return 0, nil
	}

	var (
		mu     sync.Mutex
		warmed []*entry
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.MinSize; i++ {
		g.Go(func() error {
			e, err := p.dial(gctx)
			if err != nil {
				return err
			}
			mu.Lock()
			warmed = append(warmed, e)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range warmed {
		p.open++
		p.idle = append(p.idle, e)
	}
	return len(warmed), err
}

// dial opens one connection. It does not touch pool accounting besides the
// dial counters.
func (p *Pool) dial(ctx context.Context) (*entry, error) {
	dctx, cancel := context.WithTimeout(ctx, p.opts.DialTimeout)
	defer cancel()

	conn, err := p.connector.Connect(dctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dials++
	if err != nil {
		p.dialFailures++
		// the caller giving up says nothing about the backend
		if ctx.Err() == nil {
			p.failStreak++
		}
		return nil, err
	}
	p.failStreak = 0
	p.nextID++
	return &entry{id: p.nextID, conn: conn, lastUsed: p.now()}, nil
}

// Lease returns an exclusive connection. It fails with PoolExhausted when the
// pool is at capacity and waiting is disabled or timed out, and with
// Unavailable when the backend cannot be reached.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	p.mu.Lock()

	switch p.state {
	case StateClosed:
		p.mu.Unlock()
		return nil, domainerrors.NewUnavailableError(ErrClosed)
	case StateUnavailable:
		err := p.lastErr
		p.mu.Unlock()
		return nil, domainerrors.NewUnavailableError(err)
	}

	var expired []*entry
	for len(p.idle) > 0 {
		e := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.expiredLocked(e) {
			p.open--
			p.destroyed++
			expired = append(expired, e)
			continue
		}
		p.leases++
		p.mu.Unlock()
		p.closeEntries(expired)
		return p.newLease(e), nil
	}

	// queued callers get new connections before late arrivals do
	if p.open < p.opts.MaxSize && p.waiters.Len() == 0 {
		p.open++
		p.pending++
		p.mu.Unlock()
		p.closeEntries(expired)
		return p.leaseNew(ctx)
	}

	if !p.opts.WaitForLease {
		p.exhausted++
		p.mu.Unlock()
		p.closeEntries(expired)
		return nil, domainerrors.NewPoolExhaustedError(fmt.Sprintf("all %d connections are in use", p.opts.MaxSize))
	}

	w := &waiter{ch: make(chan waitResult, 1)}
	elem := p.waiters.PushBack(w)
	spare := p.open < p.opts.MaxSize
	p.mu.Unlock()
	p.closeEntries(expired)
	if spare {
		p.spawn(func() { p.replace() })
	}

	return p.wait(ctx, w, elem)
}

func (p *Pool) leaseNew(ctx context.Context) (*Lease, error) {
	e, err := p.dial(ctx)
	if err != nil {
		ctxErr := ctx.Err()

		p.mu.Lock()
		p.open--
		p.pending--
		if ctxErr == nil {
			p.dialFailedLocked(err)
		}
		p.mu.Unlock()
		// a slot opened up; let a waiter have it
		p.spawn(func() { p.replace() })

		switch {
		case ctxErr == nil:
			return nil, domainerrors.NewUnavailableError(err)
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return nil, domainerrors.NewTimeoutError("connection lease", ctxErr)
		default:
			return nil, ctxErr
		}
	}

	p.mu.Lock()
	p.pending--
	p.leases++
	p.mu.Unlock()
	return p.newLease(e), nil
}

func (p *Pool) wait(ctx context.Context, w *waiter, elem *list.Element) (*Lease, error) {
	var timeout <-chan time.Time
	if p.opts.LeaseTimeout > 0 {
		timer := time.NewTimer(p.opts.LeaseTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var cause error
	select {
	case r := <-w.ch:
		return p.acceptHandoff(r)
	case <-timeout:
		cause = domainerrors.NewPoolExhaustedError(
			fmt.Sprintf("no connection became available within %s", p.opts.LeaseTimeout))
	case <-ctx.Done():
		cause = ctx.Err()
	}

	p.mu.Lock()
	if elem.Value != nil {
		p.waiters.Remove(elem)
		elem.Value = nil
		if domainerrors.HasCode(cause, domainerrors.CodePoolExhausted) {
			p.exhausted++
		}
		p.mu.Unlock()
		return nil, cause
	}
	p.mu.Unlock()

	// handed off concurrently with the timeout; give it back
	r := <-w.ch
	if r.entry != nil {
		p.mu.Lock()
		toClose := p.putLocked(r.entry)
		p.mu.Unlock()
		p.closeEntries(toClose)
	}
	return nil, cause
}

func (p *Pool) acceptHandoff(r waitResult) (*Lease, error) {
	if r.err != nil {
		return nil, r.err
	}
	p.mu.Lock()
	p.leases++
	p.mu.Unlock()
	return p.newLease(r.entry), nil
}

func (p *Pool) newLease(e *entry) *Lease {
	return &Lease{pool: p, entry: e}
}

// Release returns a lease to the pool. The lease must not be used afterwards.
func (p *Pool) Release(l *Lease, health Health) error {
	if l == nil || l.pool != p {
		return errors.New("lease does not belong to this pool")
	}
	if !l.released.CompareAndSwap(false, true) {
		return ErrDoubleRelease
	}

	e := l.entry

	p.mu.Lock()
	p.releases++

	switch {
	case health == HealthTransient && p.state != StateClosed:
		p.pending++
		p.wg.Add(1)
		p.mu.Unlock()
		go func() {
			defer p.wg.Done()
			p.verify(e)
		}()

	case health == HealthOK || health == HealthTransient:
		e.lastUsed = p.now()
		toClose := p.putLocked(e)
		p.mu.Unlock()
		p.closeEntries(toClose)

	default:
		p.open--
		p.destroyed++
		p.mu.Unlock()
		p.logger.Debug().Uint64("conn_id", e.id).Msg("destroying connection after fatal error")
		p.closeEntries([]*entry{e})
		p.spawn(func() { p.replace() })
	}
	return nil
}

// putLocked hands e to the oldest waiter or parks it as idle. It returns
// entries that must be closed once the lock is released.
func (p *Pool) putLocked(e *entry) []*entry {
	if p.state == StateClosed {
		p.open--
		p.destroyed++
		return []*entry{e}
	}
	if w := p.popWaiterLocked(); w != nil {
		w.ch <- waitResult{entry: e}
		return nil
	}
	p.idle = append(p.idle, e)
	return nil
}

func (p *Pool) popWaiterLocked() *waiter {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	p.waiters.Remove(front)
	w := front.Value.(*waiter)
	front.Value = nil
	return w
}

func (p *Pool) expiredLocked(e *entry) bool {
	return p.opts.IdleTTL > 0 && p.now().Sub(e.lastUsed) > p.opts.IdleTTL
}

// dialFailedLocked records a failed dial. The pool turns Unavailable only once
// UnavailableAfter dials in a row have failed.
func (p *Pool) dialFailedLocked(err error) {
	p.lastErr = err
	if p.failStreak < p.opts.UnavailableAfter {
		p.logger.Warn().Err(err).Int("failures_in_a_row", p.failStreak).Msg("dial failed")
		return
	}
	p.markUnavailableLocked(err)
}

// markUnavailableLocked switches the pool to Unavailable, fails all waiters
// and starts the reconnect loop once. Idle connections stay parked; the
// reconnect loop checks them before dialling.
func (p *Pool) markUnavailableLocked(err error) {
	if p.state == StateClosed {
		return
	}
	if p.state == StateReady {
		p.logger.Error().Err(err).Int("failures_in_a_row", p.failStreak).Msg("backend unreachable, pool unavailable")
	}
	p.state = StateUnavailable
	p.lastErr = err

	for w := p.popWaiterLocked(); w != nil; w = p.popWaiterLocked() {
		w.ch <- waitResult{err: domainerrors.NewUnavailableError(err)}
	}

	if !p.reconnecting {
		p.reconnecting = true
		p.wg.Add(1)
		go p.reconnect()
	}
}

func (p *Pool) closeEntries(entries []*entry) {
	for _, e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.PingTimeout)
		if err := e.conn.Close(ctx); err != nil {
			p.logger.Debug().Err(err).Uint64("conn_id", e.id).Msg("closing connection failed")
		}
		cancel()
	}
}

// spawn runs fn in a tracked goroutine unless the pool is closing.
func (p *Pool) spawn(fn func()) {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// State returns the current availability.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		State:        p.state,
		Open:         p.open,
		Idle:         len(p.idle),
		InUse:        p.open - len(p.idle) - p.pending,
		Pending:      p.pending,
		Waiting:      p.waiters.Len(),
		Leases:       p.leases,
		Releases:     p.releases,
		Destroyed:    p.destroyed,
		Dials:        p.dials,
		DialFailures: p.dialFailures,
		Exhausted:    p.exhausted,
	}
}

// Ping checks the backend with a short-lived lease.
func (p *Pool) Ping(ctx context.Context) error {
	lease, err := p.Lease(ctx)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, p.opts.PingTimeout)
	defer cancel()

	if err := lease.Conn().Ping(pctx); err != nil {
		_ = p.Release(lease, HealthFatal)
		return err
	}
	return p.Release(lease, HealthOK)
}

// Close fails all waiters, closes idle connections and stops background
// work. Leases still out are destroyed when released.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return nil
	}
	p.state = StateClosed
	for w := p.popWaiterLocked(); w != nil; w = p.popWaiterLocked() {
		w.ch <- waitResult{err: domainerrors.NewUnavailableError(ErrClosed)}
	}
	toClose := p.idle
	p.idle = nil
	p.open -= len(toClose)
	p.destroyed += int64(len(toClose))
	p.mu.Unlock()

	p.cancel()
	p.closeEntries(toClose)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info().Msg("connection pool closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pool workers: %w", ctx.Err())
	}
}

package pool

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errNoCapacity = errors.New("pool has no free slot for a reconnect check")

func (p *Pool) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.ReconnectInitialInterval
	b.MaxInterval = p.opts.ReconnectMaxInterval
	b.MaxElapsedTime = 0
	return b
}

// verify pings a connection released after a transient failure and reuses it
// only if the ping succeeds.
func (p *Pool) verify(e *entry) {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.PingTimeout)
	err := e.conn.Ping(ctx)
	cancel()

	p.mu.Lock()
	p.pending--
	if err == nil {
		e.lastUsed = p.now()
		toClose := p.putLocked(e)
		p.mu.Unlock()
		p.closeEntries(toClose)
		return
	}
	p.open--
	p.destroyed++
	p.mu.Unlock()

	p.logger.Debug().Err(err).Uint64("conn_id", e.id).Msg("connection failed verification")
	p.closeEntries([]*entry{e})
	p.replace()
}

// replace dials one connection if a waiter needs it or the pool is below
// MinSize. A failed dial is retried with backoff until it succeeds, the need
// goes away, or enough failures in a row make the pool Unavailable. It reports
// whether a connection was added.
func (p *Pool) replace() bool {
	added := false
	attempt := func() error {
		var err error
		added, err = p.replaceOnce()
		return err
	}
	notify := func(err error, next time.Duration) {
		p.logger.Debug().Err(err).Dur("retry_in", next).Msg("replacement dial failed")
	}

	b := backoff.WithMaxRetries(p.newBackOff(), uint64(p.opts.UnavailableAfter))
	_ = backoff.RetryNotify(attempt, backoff.WithContext(b, p.ctx), notify)
	return added
}

func (p *Pool) replaceOnce() (bool, error) {
	p.mu.Lock()
	needed := p.state == StateReady &&
		p.open < p.opts.MaxSize &&
		(p.waiters.Len() > 0 || p.open < p.opts.MinSize)
	if !needed {
		p.mu.Unlock()
		return false, nil
	}
	p.open++
	p.pending++
	p.mu.Unlock()

	e, err := p.dial(p.ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.open--
		if p.ctx.Err() != nil {
			p.mu.Unlock()
			return false, backoff.Permanent(err)
		}
		p.dialFailedLocked(err)
		p.mu.Unlock()
		return false, err
	}
	toClose := p.putLocked(e)
	p.mu.Unlock()
	p.closeEntries(toClose)
	return len(toClose) == 0, nil
}

// fill dials until the pool is back at MinSize.
func (p *Pool) fill() {
	for p.replace() {
	}
}

// reconnect checks the backend with exponential backoff until it answers or
// the pool is closed. A parked idle connection is pinged before a new one is
// dialled. Only one reconnect loop runs at a time.
func (p *Pool) reconnect() {
	defer p.wg.Done()

	attempt := 0
	check := func() error {
		attempt++

		p.mu.Lock()
		if p.state == StateClosed {
			p.mu.Unlock()
			return backoff.Permanent(ErrClosed)
		}
		var parked *entry
		switch n := len(p.idle); {
		case n > 0:
			parked = p.idle[n-1]
			p.idle = p.idle[:n-1]
		case p.open >= p.opts.MaxSize:
			p.mu.Unlock()
			return errNoCapacity
		default:
			p.open++
		}
		p.pending++
		p.mu.Unlock()

		e, err := p.checkBackend(parked)

		p.mu.Lock()
		p.pending--
		if err != nil {
			p.open--
			p.lastErr = err
			if parked != nil {
				p.destroyed++
			}
			p.mu.Unlock()
			if parked != nil {
				p.closeEntries([]*entry{parked})
			}
			return err
		}
		if p.state == StateClosed {
			p.open--
			p.destroyed++
			p.mu.Unlock()
			p.closeEntries([]*entry{e})
			return backoff.Permanent(ErrClosed)
		}
		p.state = StateReady
		p.lastErr = nil
		p.reconnecting = false
		p.failStreak = 0
		e.lastUsed = p.now()
		p.idle = append(p.idle, e)
		p.mu.Unlock()
		return nil
	}

	notify := func(err error, next time.Duration) {
		p.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("reconnect failed")
	}

	err := backoff.RetryNotify(check, backoff.WithContext(p.newBackOff(), p.ctx), notify)
	if err != nil {
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
		return
	}

	p.logger.Info().Int("attempts", attempt).Msg("backend reachable again, pool ready")
	p.fill()
}

// checkBackend pings a parked connection, or dials a new one when there is
// none.
func (p *Pool) checkBackend(parked *entry) (*entry, error) {
	if parked == nil {
		return p.dial(p.ctx)
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.PingTimeout)
	defer cancel()
	if err := parked.conn.Ping(ctx); err != nil {
		return nil, err
	}
	return parked, nil
}

// maintain recycles idle connections past IdleTTL and keeps MinSize warm.
func (p *Pool) maintain() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.evictIdle()
			p.fill()
		}
	}
}

func (p *Pool) evictIdle() {
	p.mu.Lock()
	kept := p.idle[:0]
	var expired []*entry
	for _, e := range p.idle {
		if p.expiredLocked(e) {
			expired = append(expired, e)
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept
	p.open -= len(expired)
	p.destroyed += int64(len(expired))
	p.mu.Unlock()

	if len(expired) > 0 {
		p.logger.Debug().Int("count", len(expired)).Msg("recycled idle connections")
	}
	p.closeEntries(expired)
}

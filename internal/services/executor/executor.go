// Package executor runs compiled queries against a leased connection.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
	"github.com/unifiedui/docdb-gateway/internal/domain/query"
	"github.com/unifiedui/docdb-gateway/internal/services/pool"
)

// Options configures query execution.
type Options struct {
	// Timeout bounds the whole request, from find to the last document.
	Timeout   time.Duration
	BatchSize int32
}

// DefaultOptions returns the built-in execution settings.
func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		BatchSize: 101,
	}
}

// Executor issues one find per compiled query. It never retries.
type Executor struct {
	opts   Options
	logger zerolog.Logger
}

// New creates an executor.
func New(opts Options, logger zerolog.Logger) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Executor{
		opts:   opts,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs q on conn. The returned cursor carries a timeout derived from
// ctx and must be closed. On failure the error is a domain error (or the
// context error when the caller went away) and health says what to do with
// the connection.
func (e *Executor) Execute(ctx context.Context, conn docdb.Conn, q *query.CompiledQuery) (*Cursor, pool.Health, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)

	opts := &docdb.FindOptions{
		Filter:     q.FilterDocument(),
		Sort:       q.Sort.ToBSON(),
		Projection: q.Projection.ToBSON(),
		Limit:      q.Page.Limit,
		Skip:       q.Page.Skip,
		MaxTime:    e.opts.Timeout,
		BatchSize:  e.opts.BatchSize,
	}

	start := time.Now()
	cur, err := conn.Find(ctx, q.Collection.String(), opts)
	if err != nil {
		cancel()
		health, mapped := Classify(err)
		e.logger.Debug().
			Err(err).
			Str("collection", q.Collection.String()).
			Str("health", health.String()).
			Msg("find failed")
		return nil, health, mapped
	}

	e.logger.Debug().
		Str("collection", q.Collection.String()).
		Int64("limit", q.Page.Limit).
		Int64("skip", q.Page.Skip).
		Dur("duration", time.Since(start)).
		Msg("find issued")

	return &Cursor{ctx: ctx, cancel: cancel, cursor: cur}, pool.HealthOK, nil
}

// Classify maps a backend error onto a domain error and the health of the
// connection that produced it.
func Classify(err error) (pool.Health, error) {
	if err == nil {
		return pool.HealthOK, nil
	}
	if domainerrors.IsDomainError(err) {
		return pool.HealthOK, err
	}

	var be *docdb.BackendError
	if !errors.As(err, &be) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return pool.HealthTransient, domainerrors.NewTimeoutError("query", err)
		case errors.Is(err, context.Canceled):
			return pool.HealthTransient, err
		}
		return pool.HealthFatal, domainerrors.NewBackendProtocolError(err)
	}

	switch be.Class {
	case docdb.ClassTimeout:
		return pool.HealthTransient, domainerrors.NewTimeoutError("query", err)
	case docdb.ClassCancelled:
		return pool.HealthTransient, context.Canceled
	case docdb.ClassQueryRejected:
		return pool.HealthOK, domainerrors.NewQueryRejectedError(be.Message, err)
	case docdb.ClassNetwork:
		return pool.HealthFatal, domainerrors.NewUnavailableError(err)
	default:
		return pool.HealthFatal, domainerrors.NewBackendProtocolError(err)
	}
}

// Cursor is a forward-only result cursor bound to the request timeout.
type Cursor struct {
	ctx    context.Context
	cancel context.CancelFunc
	cursor docdb.Cursor
	count  int
	closed bool
}

// Next advances to the next document.
func (c *Cursor) Next() bool {
	if c.closed {
		return false
	}
	if c.cursor.Next(c.ctx) {
		c.count++
		return true
	}
	return false
}

// Document returns the current document. It is valid until the next call to Next.
func (c *Cursor) Document() bson.Raw {
	return c.cursor.Current()
}

// Err returns the classified iteration error, if any.
func (c *Cursor) Err() error {
	err := c.cursor.Err()
	if err == nil {
		return nil
	}
	_, mapped := Classify(err)
	return mapped
}

// Health reports what the pool should do with the connection once the cursor
// is done.
func (c *Cursor) Health() pool.Health {
	health, _ := Classify(c.cursor.Err())
	return health
}

// Count returns how many documents have been read.
func (c *Cursor) Count() int {
	return c.count
}

// Close releases the server-side cursor and cancels the request timeout.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.cursor.Close(ctx)
}

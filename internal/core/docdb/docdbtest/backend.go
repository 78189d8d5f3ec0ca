// Package docdbtest provides an in-memory docdb backend for tests.
//
// It understands enough of the query language to exercise the gateway:
// top-level equality, $eq, $ne, $in, $gt, $gte, $lt, $lte, sort, skip, limit
// and top-level projections. Any other $-operator is rejected the way a real
// server would reject it.
package docdbtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
)

// Backend is an in-memory docdb.Connector.
type Backend struct {
	mu          sync.Mutex
	collections map[string][]bson.D
	unreachable bool
	findErrs    []error
	connectErrs []error
	failAfter   int
	failErr     error
	blockAfter  int
	gate        chan struct{}

	connects     int
	closes       int
	open         int
	maxOpen      int
	finds        int
	cursorCloses int
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{
		collections: make(map[string][]bson.D),
		failAfter:   -1,
		blockAfter:  -1,
	}
}

// Seed appends documents to a collection.
func (b *Backend) Seed(collection string, docs ...bson.D) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collections[collection] = append(b.collections[collection], docs...)
}

// SetUnreachable makes Connect, Ping and Find fail with a network error.
func (b *Backend) SetUnreachable(unreachable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unreachable = unreachable
}

// FailNextConnect queues an error for the next Connect call.
func (b *Backend) FailNextConnect(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectErrs = append(b.connectErrs, err)
}

// FailNextFind queues an error for the next Find call.
func (b *Backend) FailNextFind(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findErrs = append(b.findErrs, err)
}

// FailCursorAfter makes cursors fail with err after n documents.
func (b *Backend) FailCursorAfter(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAfter = n
	b.failErr = err
}

// BlockCursorAfter makes cursors hang after n documents until the caller's
// context is done.
func (b *Backend) BlockCursorAfter(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockAfter = n
}

// Gate makes every Find block until the returned release function is called.
func (b *Backend) Gate() (release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	gate := make(chan struct{})
	b.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// Stats is a snapshot of backend counters.
type Stats struct {
	Connects     int
	Closes       int
	Open         int
	MaxOpen      int
	Finds        int
	CursorCloses int
}

// Stats returns the current counters.
func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Connects:     b.connects,
		Closes:       b.closes,
		Open:         b.open,
		MaxOpen:      b.maxOpen,
		Finds:        b.finds,
		CursorCloses: b.cursorCloses,
	}
}

// Name describes the backend.
func (b *Backend) Name() string {
	return "memory"
}

// Connect opens a connection unless the backend is unreachable.
func (b *Backend) Connect(ctx context.Context) (docdb.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &docdb.BackendError{Class: docdb.ClassCancelled, Message: err.Error(), Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unreachable {
		return nil, networkError()
	}
	if len(b.connectErrs) > 0 {
		err := b.connectErrs[0]
		b.connectErrs = b.connectErrs[1:]
		return nil, err
	}
	b.connects++
	b.open++
	if b.open > b.maxOpen {
		b.maxOpen = b.open
	}
	return &conn{backend: b}, nil
}

func networkError() error {
	return &docdb.BackendError{Class: docdb.ClassNetwork, Message: "connection refused", Err: errors.New("dial tcp: connection refused")}
}

type conn struct {
	backend *Backend
	closed  bool
}

func (c *conn) Find(ctx context.Context, collection string, opts *docdb.FindOptions) (docdb.Cursor, error) {
	b := c.backend

	b.mu.Lock()
	b.finds++
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, contextError(ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unreachable || c.closed {
		return nil, networkError()
	}
	if len(b.findErrs) > 0 {
		err := b.findErrs[0]
		b.findErrs = b.findErrs[1:]
		return nil, err
	}
	if opts == nil {
		opts = &docdb.FindOptions{}
	}

	var matched []bson.D
	for _, doc := range b.collections[collection] {
		ok, err := matches(doc, opts.Filter)
		if err != nil {
			return nil, &docdb.BackendError{Class: docdb.ClassQueryRejected, Code: 2, Message: err.Error(), Err: err}
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	sortDocs(matched, opts.Sort)

	if opts.Skip > 0 {
		if int(opts.Skip) >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int(opts.Limit) < len(matched) {
		matched = matched[:opts.Limit]
	}

	raws := make([]bson.Raw, 0, len(matched))
	for _, doc := range matched {
		data, err := bson.Marshal(project(doc, opts.Projection))
		if err != nil {
			return nil, &docdb.BackendError{Class: docdb.ClassProtocol, Message: err.Error(), Err: err}
		}
		raws = append(raws, data)
	}

	return &cursor{
		backend:    b,
		docs:       raws,
		pos:        -1,
		failAfter:  b.failAfter,
		failErr:    b.failErr,
		blockAfter: b.blockAfter,
	}, nil
}

func (c *conn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	if c.backend.unreachable || c.closed {
		return networkError()
	}
	return nil
}

func (c *conn) Close(ctx context.Context) error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.backend.closes++
	c.backend.open--
	return nil
}

func contextError(err error) error {
	class := docdb.ClassCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		class = docdb.ClassTimeout
	}
	return &docdb.BackendError{Class: class, Message: err.Error(), Err: err}
}

type cursor struct {
	backend    *Backend
	docs       []bson.Raw
	pos        int
	failAfter  int
	failErr    error
	blockAfter int
	err        error
	closed     bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || c.closed {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = contextError(err)
		return false
	}
	if c.failAfter >= 0 && c.pos+1 >= c.failAfter {
		c.err = c.failErr
		return false
	}
	if c.blockAfter >= 0 && c.pos+1 >= c.blockAfter {
		<-ctx.Done()
		c.err = contextError(ctx.Err())
		return false
	}
	if c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Current() bson.Raw {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.backend.mu.Lock()
	c.backend.cursorCloses++
	c.backend.mu.Unlock()
	return nil
}

func lookup(doc bson.D, key string) (interface{}, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func matches(doc bson.D, filter bson.D) (bool, error) {
	for _, cond := range filter {
		if strings.HasPrefix(cond.Key, "$") {
			return false, fmt.Errorf("unknown top level operator: %s", cond.Key)
		}
		actual, _ := lookup(doc, cond.Key)

		ops, isOps := cond.Value.(bson.D)
		if !isOps || len(ops) == 0 || !strings.HasPrefix(ops[0].Key, "$") {
			if !equal(actual, cond.Value) {
				return false, nil
			}
			continue
		}
		for _, op := range ops {
			ok, err := applyOperator(op.Key, actual, op.Value)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func applyOperator(op string, actual, operand interface{}) (bool, error) {
	switch op {
	case "$eq":
		return equal(actual, operand), nil
	case "$ne":
		return !equal(actual, operand), nil
	case "$in":
		list, ok := operand.(bson.A)
		if !ok {
			return false, fmt.Errorf("$in needs an array")
		}
		for _, item := range list {
			if equal(actual, item) {
				return true, nil
			}
		}
		return false, nil
	case "$gt", "$gte", "$lt", "$lte":
		c, ok := compare(actual, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	}
	return false, fmt.Errorf("unknown operator: %s", op)
}

func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

func equal(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func compare(a, b interface{}) (int, bool) {
	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

func sortDocs(docs []bson.D, keys bson.D) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			a, _ := lookup(docs[i], k.Key)
			b, _ := lookup(docs[j], k.Key)
			c, ok := compare(a, b)
			if !ok || c == 0 {
				continue
			}
			if dir, _ := normalize(k.Value).(float64); dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func project(doc bson.D, projection bson.D) bson.D {
	if len(projection) == 0 {
		return doc
	}
	include := false
	keep := make(map[string]bool)
	dropID := false
	for _, p := range projection {
		flag, _ := normalize(p.Value).(float64)
		if p.Key == "_id" && flag == 0 {
			dropID = true
			continue
		}
		if flag != 0 {
			include = true
		}
		keep[p.Key] = flag != 0
	}

	out := bson.D{}
	for _, e := range doc {
		if e.Key == "_id" {
			if !dropID {
				out = append(out, e)
			}
			continue
		}
		wanted, listed := keep[e.Key]
		if include && listed && wanted {
			out = append(out, e)
		}
		if !include && !listed {
			out = append(out, e)
		}
	}
	return out
}

// Package docdb defines the document database interface.
package docdb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Cursor represents a cursor for iterating over query results.
type Cursor interface {
	// Next advances the cursor to the next document.
	Next(ctx context.Context) bool
	// Current returns the document the cursor is positioned on. The bytes are
	// only valid until the next call to Next.
	Current() bson.Raw
	// Err returns any cursor error.
	Err() error
	// Close closes the cursor.
	Close(ctx context.Context) error
}

// FindOptions represents options for Find operations. Nil documents mean
// "not set".
type FindOptions struct {
	Filter     bson.D
	Sort       bson.D
	Projection bson.D
	Limit      int64
	Skip       int64
	MaxTime    time.Duration
	BatchSize  int32
}

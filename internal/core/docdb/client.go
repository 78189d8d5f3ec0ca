// Package docdb defines the document database client interface.
package docdb

import (
	"context"
)

// Connector opens connections to one backend database.
type Connector interface {
	// Connect dials a new connection and verifies it is usable.
	Connect(ctx context.Context) (Conn, error)

	// Name describes the backend for logs and health output.
	Name() string
}

// Conn is one live backend connection. A Conn is used by a single request at
// a time; the pool guarantees exclusivity.
type Conn interface {
	// Find runs a read query against collection and returns a cursor over the
	// matching documents.
	Find(ctx context.Context, collection string, opts *FindOptions) (Cursor, error)

	// Ping verifies the connection.
	Ping(ctx context.Context) error

	// Close closes the connection.
	Close(ctx context.Context) error
}

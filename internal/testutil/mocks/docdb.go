// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
)

// MockConnector is a mock implementation of docdb.Connector.
type MockConnector struct {
	mock.Mock
}

// NewMockConnector creates a new mock connector.
func NewMockConnector() *MockConnector {
	return &MockConnector{}
}

// Connect opens a connection.
func (m *MockConnector) Connect(ctx context.Context) (docdb.Conn, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(docdb.Conn), args.Error(1)
}

// Name describes the backend.
func (m *MockConnector) Name() string {
	return "mock"
}

// MockConn is a mock implementation of docdb.Conn.
type MockConn struct {
	mock.Mock
}

// NewMockConn creates a new mock connection.
func NewMockConn() *MockConn {
	return &MockConn{}
}

// Find runs a find command.
func (m *MockConn) Find(ctx context.Context, collection string, opts *docdb.FindOptions) (docdb.Cursor, error) {
	args := m.Called(ctx, collection, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(docdb.Cursor), args.Error(1)
}

// Ping checks the connection.
func (m *MockConn) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the connection.
func (m *MockConn) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCursor is a scripted docdb.Cursor. It yields Docs in order, then
// reports FailWith (if set) instead of ending cleanly.
type MockCursor struct {
	Docs     []bson.Raw
	FailWith error

	pos    int
	err    error
	Closed bool
}

// NewMockCursor creates a cursor over the given documents.
func NewMockCursor(docs ...bson.Raw) *MockCursor {
	return &MockCursor{Docs: docs, pos: -1}
}

// Next advances the cursor.
func (m *MockCursor) Next(ctx context.Context) bool {
	if m.err != nil || m.Closed {
		return false
	}
	if m.pos+1 >= len(m.Docs) {
		m.err = m.FailWith
		return false
	}
	m.pos++
	return true
}

// Current returns the current document.
func (m *MockCursor) Current() bson.Raw {
	if m.pos < 0 || m.pos >= len(m.Docs) {
		return nil
	}
	return m.Docs[m.pos]
}

// Err returns the iteration error.
func (m *MockCursor) Err() error {
	return m.err
}

// Close closes the cursor.
func (m *MockCursor) Close(ctx context.Context) error {
	m.Closed = true
	return nil
}

// MustRaw marshals doc into a bson.Raw and panics on failure.
func MustRaw(doc interface{}) bson.Raw {
	data, err := bson.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

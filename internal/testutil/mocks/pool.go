package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/docdb-gateway/internal/services/pool"
)

// MockPoolStatus is a mock of the pool as seen by the health endpoints.
type MockPoolStatus struct {
	mock.Mock
}

// NewMockPoolStatus creates a new MockPoolStatus.
func NewMockPoolStatus() *MockPoolStatus {
	return &MockPoolStatus{}
}

// Stats mocks the Stats method.
func (m *MockPoolStatus) Stats() pool.Stats {
	args := m.Called()
	return args.Get(0).(pool.Stats)
}

// Ping mocks the Ping method.
func (m *MockPoolStatus) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

package testutil

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb/docdbtest"
)

// Test constants
const (
	TestCollection = "users"
	TestDatabase   = "gateway_test"
)

// UserFixtures returns five active and three inactive users.
func UserFixtures() []bson.D {
	users := []struct {
		id     int
		name   string
		age    int
		active bool
	}{
		{1, "ada", 36, true},
		{2, "brian", 41, true},
		{3, "carol", 29, false},
		{4, "dennis", 52, true},
		{5, "edsger", 47, false},
		{6, "frances", 33, true},
		{7, "grace", 58, true},
		{8, "hal", 25, false},
	}

	docs := make([]bson.D, 0, len(users))
	for _, u := range users {
		docs = append(docs, bson.D{
			{Key: "_id", Value: u.id},
			{Key: "name", Value: u.name},
			{Key: "age", Value: u.age},
			{Key: "active", Value: u.active},
			{Key: "password", Value: "secret-" + u.name},
		})
	}
	return docs
}

// NewSeededBackend returns an in-memory backend holding the user fixtures.
func NewSeededBackend() *docdbtest.Backend {
	backend := docdbtest.NewBackend()
	backend.Seed(TestCollection, UserFixtures()...)
	return backend
}

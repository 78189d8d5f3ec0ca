package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
)

func TestNewConnector_Validation(t *testing.T) {
	_, err := NewConnector(nil)
	assert.Error(t, err)

	_, err = NewConnector(&ClientConfig{DatabaseName: "app"})
	assert.Error(t, err)

	_, err = NewConnector(&ClientConfig{URI: "mongodb://localhost:27017"})
	assert.Error(t, err)

	_, err = NewConnector(&ClientConfig{URI: "mongodb://localhost:27017", DatabaseName: "app", Password: "secret"})
	assert.Error(t, err)

	c, err := NewConnector(&ClientConfig{URI: "mongodb://localhost:27017", DatabaseName: "app"})
	require.NoError(t, err)
	assert.Equal(t, "mongodb/app", c.Name())
}

func TestConnector_ClientOptions(t *testing.T) {
	c, err := NewConnector(&ClientConfig{
		URI:                    "mongodb://localhost:27017",
		DatabaseName:           "app",
		Username:               "reader",
		Password:               "secret",
		AuthSource:             "admin",
		AppName:                "docdb-gateway",
		ConnectTimeout:         3 * time.Second,
		ServerSelectionTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	opts := c.clientOptions()
	require.NotNil(t, opts.MaxPoolSize)
	assert.Equal(t, uint64(1), *opts.MaxPoolSize)
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "reader", opts.Auth.Username)
	assert.Equal(t, "secret", opts.Auth.Password)
	assert.Equal(t, "admin", opts.Auth.AuthSource)
	require.NotNil(t, opts.ConnectTimeout)
	assert.Equal(t, 3*time.Second, *opts.ConnectTimeout)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, 2*time.Second, *opts.ServerSelectionTimeout)
}

func TestBuildFindOptions(t *testing.T) {
	opts := buildFindOptions(&docdb.FindOptions{
		Sort:       bson.D{{Key: "age", Value: -1}},
		Projection: bson.D{{Key: "name", Value: 1}},
		Limit:      2,
		Skip:       4,
		MaxTime:    time.Second,
	})

	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(2), *opts.Limit)
	require.NotNil(t, opts.Skip)
	assert.Equal(t, int64(4), *opts.Skip)
	assert.Equal(t, bson.D{{Key: "age", Value: -1}}, opts.Sort)
	assert.Equal(t, bson.D{{Key: "name", Value: 1}}, opts.Projection)
	require.NotNil(t, opts.MaxTime)
	assert.Equal(t, time.Second, *opts.MaxTime)
	assert.Nil(t, opts.BatchSize)
}

func TestBuildFindOptions_Empty(t *testing.T) {
	opts := buildFindOptions(nil)
	assert.Nil(t, opts.Limit)
	assert.Nil(t, opts.Skip)
	assert.Nil(t, opts.Sort)
	assert.Nil(t, opts.Projection)
}

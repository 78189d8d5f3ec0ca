// Package mongodb provides MongoDB client implementation.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
)

// Connector implements the docdb.Connector interface for MongoDB. Every
// connection it opens is a driver client restricted to a single socket, so the
// gateway's pool is the only place concurrency is decided.
type Connector struct {
	config *ClientConfig
}

// ClientConfig holds MongoDB connection configuration.
type ClientConfig struct {
	URI                    string
	DatabaseName           string
	Username               string
	Password               string
	AuthSource             string
	AppName                string
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
}

// NewConnector creates a new MongoDB connector. No connection is opened.
func NewConnector(config *ClientConfig) (*Connector, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if config.DatabaseName == "" {
		return nil, fmt.Errorf("database name is required")
	}
	if config.Password != "" && config.Username == "" {
		return nil, fmt.Errorf("password given without username")
	}

	return &Connector{config: config}, nil
}

// Name describes the backend.
func (c *Connector) Name() string {
	return "mongodb/" + c.config.DatabaseName
}

// Connect opens a new single-socket client and pings the primary.
func (c *Connector) Connect(ctx context.Context) (docdb.Conn, error) {
	client, err := mongo.Connect(ctx, c.clientOptions())
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to connect to mongodb: %w", err))
	}

	// Verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classifyError(fmt.Errorf("failed to ping mongodb: %w", err))
	}

	return &Conn{
		client:   client,
		database: client.Database(c.config.DatabaseName),
	}, nil
}

func (c *Connector) clientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.config.URI).
		SetMaxPoolSize(1).
		SetMinPoolSize(0)

	if c.config.AppName != "" {
		opts.SetAppName(c.config.AppName)
	}
	if c.config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(c.config.ConnectTimeout)
	}
	if c.config.ServerSelectionTimeout > 0 {
		opts.SetServerSelectionTimeout(c.config.ServerSelectionTimeout)
	}
	if c.config.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   c.config.Username,
			Password:   c.config.Password,
			AuthSource: c.config.AuthSource,
		})
	}

	return opts
}

// Package mongodb provides MongoDB database implementation.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
)

// Conn implements the docdb.Conn interface for MongoDB.
type Conn struct {
	client   *mongo.Client
	database *mongo.Database
}

// Find runs a find command with every option applied server-side.
func (c *Conn) Find(ctx context.Context, collection string, opts *docdb.FindOptions) (docdb.Cursor, error) {
	filter := bson.D{}
	if opts != nil && opts.Filter != nil {
		filter = opts.Filter
	}

	cursor, err := c.database.Collection(collection).Find(ctx, filter, buildFindOptions(opts))
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to find documents: %w", err))
	}

	return &Cursor{cursor: cursor}, nil
}

// Ping verifies the connection to MongoDB.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return classifyError(fmt.Errorf("mongodb ping failed: %w", err))
	}
	return nil
}

// Close closes the MongoDB connection.
func (c *Conn) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}

func buildFindOptions(opts *docdb.FindOptions) *options.FindOptions {
	findOpts := options.Find()
	if opts == nil {
		return findOpts
	}
	if opts.Sort != nil {
		findOpts.SetSort(opts.Sort)
	}
	if opts.Projection != nil {
		findOpts.SetProjection(opts.Projection)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.MaxTime > 0 {
		findOpts.SetMaxTime(opts.MaxTime)
	}
	if opts.BatchSize > 0 {
		findOpts.SetBatchSize(opts.BatchSize)
	}
	return findOpts
}

// Cursor wraps a MongoDB cursor.
type Cursor struct {
	cursor *mongo.Cursor
}

// Next advances the cursor.
func (c *Cursor) Next(ctx context.Context) bool {
	return c.cursor.Next(ctx)
}

// Current returns the raw current document.
func (c *Cursor) Current() bson.Raw {
	return c.cursor.Current
}

// Err returns any cursor error, classified.
func (c *Cursor) Err() error {
	if err := c.cursor.Err(); err != nil {
		return classifyError(fmt.Errorf("cursor failed: %w", err))
	}
	return nil
}

// Close closes the cursor.
func (c *Cursor) Close(ctx context.Context) error {
	return c.cursor.Close(ctx)
}

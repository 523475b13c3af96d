package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultTimeout = 10 * time.Second

// Client wraps a connected mongo.Client bound to one database.
type Client struct {
	client       *mongo.Client
	databaseName string
	timeout      time.Duration
}

type clientOpts struct {
	timeout     time.Duration
	maxPoolSize uint64
}

type ClientOpt func(opts *clientOpts)

func WithTimeout(timeout time.Duration) ClientOpt {
	return func(opts *clientOpts) {
		if timeout > 0 {
			opts.timeout = timeout
		}
	}
}

func WithMaxPoolSize(n uint64) ClientOpt {
	return func(opts *clientOpts) {
		opts.maxPoolSize = n
	}
}

// New connects to connString and pings the primary. Returns nil if
// connString is empty.
func New(connString, databaseName string, opts ...ClientOpt) (*Client, error) {
	if connString == "" {
		return nil, nil
	}
	op := &clientOpts{timeout: defaultTimeout, maxPoolSize: 100}
	for _, fn := range opts {
		fn(op)
	}

	mongoOpts := options.Client().ApplyURI(connString)
	mongoOpts.MaxPoolSize = lo.ToPtr(op.maxPoolSize)

	ctx, cancel := context.WithTimeout(context.Background(), op.timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	return &Client{
		client:       client,
		databaseName: databaseName,
		timeout:      op.timeout,
	}, nil
}

func (c *Client) Database() *mongo.Database {
	return c.client.Database(c.databaseName)
}

// Health checks if the primary is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("mongodb not configured")
	}
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("disconnect from MongoDB: %w", err)
	}
	return nil
}

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	redisPoolHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zkcred_redis_pool_hits_total",
		Help: "Number of times a connection was found in the pool",
	})
	redisPoolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zkcred_redis_pool_misses_total",
		Help: "Number of times a connection was not found in the pool",
	})
	redisPoolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zkcred_redis_pool_timeouts_total",
		Help: "Number of times a connection was not obtained due to timeout",
	})
	redisPoolTotalConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zkcred_redis_pool_total_conns",
		Help: "Number of total connections in the pool",
	})
	redisPoolIdleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zkcred_redis_pool_idle_conns",
		Help: "Number of idle connections in the pool",
	})
)

// Client wraps the go-redis client with health checking.
type Client struct {
	*redis.Client
	lastStats *redis.PoolStats
}

type clientOpts struct {
	poolSize    int
	dialTimeout time.Duration
}

type ClientOpt func(*clientOpts)

func WithPoolSize(n int) ClientOpt {
	return func(o *clientOpts) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) ClientOpt {
	return func(o *clientOpts) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// New connects to url and pings the server. Returns nil if url is empty.
func New(ctx context.Context, url string, opts ...ClientOpt) (*Client, error) {
	if url == "" {
		return nil, nil
	}
	o := &clientOpts{poolSize: 10, dialTimeout: 5 * time.Second}
	for _, fn := range opts {
		fn(o)
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	redisOpts.PoolSize = o.poolSize
	redisOpts.DialTimeout = o.dialTimeout

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RecordPoolStats updates pool metrics. Call it periodically.
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()
	redisPoolTotalConns.Set(float64(stats.TotalConns))
	redisPoolIdleConns.Set(float64(stats.IdleConns))

	var last redis.PoolStats
	if c.lastStats != nil {
		last = *c.lastStats
	}
	if stats.Hits > last.Hits {
		redisPoolHits.Add(float64(stats.Hits - last.Hits))
	}
	if stats.Misses > last.Misses {
		redisPoolMisses.Add(float64(stats.Misses - last.Misses))
	}
	if stats.Timeouts > last.Timeouts {
		redisPoolTimeouts.Add(float64(stats.Timeouts - last.Timeouts))
	}
	c.lastStats = stats
}

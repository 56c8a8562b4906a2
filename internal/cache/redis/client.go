// Package redis provides the optional Redis-backed pieces of the bot: the
// single-runner lease and the trade event channel.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the reachability check on Dial.
const pingTimeout = 5 * time.Second

// Config describes the Redis server.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLS        bool
}

// Client is a connected Redis handle. The lease and the event bus share it.
type Client struct {
	rdb *redis.Client
}

// Dial connects to Redis and fails fast when the server does not answer a
// PING.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLS {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host = cfg.Addr
		}
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Locks returns the lease manager backed by c.
func (c *Client) Locks() *LockManager {
	return &LockManager{rdb: c.rdb}
}

// Events returns the trade event bus backed by c.
func (c *Client) Events() *EventBus {
	return &EventBus{rdb: c.rdb}
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

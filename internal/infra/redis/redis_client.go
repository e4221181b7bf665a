package redis

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"

	"newspay-l402/internal/config"
	"newspay-l402/internal/infra/metrics"
)

// Client wraps the go-redis client together with the key prefix every store
// in this package namespaces its keys under.
type Client struct {
	cli    *redis.Client
	prefix string
}

// NewClient accepts either a bare host:port or a redis:// URL.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		if parsed.Password == "" {
			parsed.Password = cfg.Password
		}
		opts = parsed
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return Wrap(c, cfg.KeyPrefix), nil
}

// Wrap adopts an existing go-redis client.
func Wrap(c *redis.Client, prefix string) *Client {
	return &Client{cli: c, prefix: prefix}
}

func (c *Client) key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

// ReportPoolStats publishes connection pool gauges.
func (c *Client) ReportPoolStats() {
	s := c.cli.PoolStats()
	metrics.SetPoolStats("redis", int32(s.TotalConns), int32(s.IdleConns), int32(s.TotalConns-s.IdleConns))
}

func (c *Client) Close() error { return c.cli.Close() }

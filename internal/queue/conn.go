// Package queue is the messaging layer between the extractor and the
// analysis consumers, built on Redis Streams with consumer groups. A lost
// connection is re-established with a bounded doubling backoff; exhausting
// the attempts is a fatal condition surfaced through the notifier.
package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/monitoring"
	"github.com/user/extractor-service/internal/notify"
)

const (
	// maxConnectAttempts bounds one reconnect cycle.
	maxConnectAttempts = 5
	// initialBackoff doubles before every attempt: 1s, 2s, 4s, 8s, 16s.
	initialBackoff = time.Second

	connectTimeout = 2 * time.Second
)

// Options configures a queue Connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connection owns the shared Redis client behind all publishers and
// consumers of the process. All users observe a reconnect at once; none
// dial on their own.
type Connection struct {
	opts     Options
	notifier notify.Notifier
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	mu     sync.Mutex
	client *redis.Client

	// Injection points for tests.
	dial  func(Options) *redis.Client
	sleep func(time.Duration)
}

func NewConnection(opts Options, n notify.Notifier, m *monitoring.Metrics, logger *zap.Logger) *Connection {
	return &Connection{
		opts:     opts,
		notifier: n,
		metrics:  m,
		logger:   logger,
		dial: func(o Options) *redis.Client {
			return redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
		},
		sleep: time.Sleep,
	}
}

// Client returns a live Redis client, establishing the connection on first
// use and transparently reconnecting after a drop.
func (c *Connection) Client(ctx context.Context) (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	return c.connectLocked(ctx)
}

// Reconnect drops the current client and dials again with backoff. Safe to
// call from multiple goroutines; the mutex serializes the cycle so only one
// caller pays the sleeps.
func (c *Connection) Reconnect(ctx context.Context) (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return c.connectLocked(ctx)
}

func (c *Connection) connectLocked(ctx context.Context) (*redis.Client, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		client := c.dial(c.opts)
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			c.client = client
			c.metrics.IncQueueReconnects()
			c.logger.Info("queue connection established",
				zap.String("addr", c.opts.Addr), zap.Int("attempt", attempt))
			return client, nil
		}
		client.Close()
		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("queue connection aborted: %w", ctx.Err())
		}
		c.logger.Warn("queue connection attempt failed",
			zap.Int("attempt", attempt), zap.Error(err))
		c.sleep(backoff)
		backoff *= 2
	}

	c.notifier.Alert(ctx, "queue connection exhausted", map[string]any{
		"addr":     c.opts.Addr,
		"attempts": maxConnectAttempts,
		"error":    lastErr.Error(),
	})
	return nil, fmt.Errorf("queue connection failed after %d attempts: %w", maxConnectAttempts, lastErr)
}

// Ping checks broker reachability over the current connection.
func (c *Connection) Ping(ctx context.Context) error {
	client, err := c.Client(ctx)
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// isConnErr reports whether an operation failed because the connection
// itself is unusable, as opposed to a protocol or data error.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "client is closed") ||
		strings.Contains(msg, "EOF")
}

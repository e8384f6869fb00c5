// Package redis publishes session events to Redis.
//
// Each event is PUBLISHed as JSON to a pub/sub channel and, in the same
// MULTI/EXEC transaction, stored as a hash under KeyPrefix+session_id so
// late subscribers can read the last outcome of a session.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/framelog/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "framelog:session_completed"

// DefaultKeyPrefix prefixes the per-session hash key.
const DefaultKeyPrefix = "framelog:session:"

// DefaultTTL is how long a session hash is kept.
const DefaultTTL = 24 * time.Hour

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: framelog:session_completed).
	Channel string
	// KeyPrefix prefixes session hash keys (default: framelog:session:).
	KeyPrefix string
	// TTL is the session hash expiry (default 24h).
	TTL time.Duration
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes session events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// SessionKey returns the hash key holding the last event for sessionID.
func (a *Adapter) SessionKey(sessionID string) string {
	return a.config.KeyPrefix + sessionID
}

// Publish stores and publishes the event.
// Retries with exponential backoff on failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	key := a.SessionKey(event.SessionID)
	fields := map[string]any{
		"kind":      event.Kind,
		"outcome":   event.Outcome,
		"filename":  event.Filename,
		"frames":    event.Frames,
		"timestamp": event.Timestamp,
		"event":     string(body),
	}

	return adapter.Retry(ctx, adapter.RetryPolicy{
		Name:    "redis",
		Retries: a.config.Retries,
		Backoff: a.config.Backoff,
	}, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		_, err := a.client.TxPipelined(publishCtx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(publishCtx, key, fields)
			pipe.Expire(publishCtx, key, a.config.TTL)
			pipe.Publish(publishCtx, a.config.Channel, body)
			return nil
		})
		return err
	})
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)

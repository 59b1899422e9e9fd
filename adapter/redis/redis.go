// Package redis fans transfer completion events out over Redis.
//
// Every event is PUBLISHed as JSON on a channel. With a list key set, the
// same payload is pushed onto a capped list in the same pipeline so a
// dashboard that was not subscribed can still read the recent completions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/optimeas/opticloud-device-mgmt-go/adapter"
)

// Defaults applied by New.
const (
	DefaultChannel   = "omcloud:transfer_completed"
	DefaultTimeout   = 5 * time.Second
	DefaultRetries   = 3
	DefaultBackoff   = 500 * time.Millisecond
	DefaultListLimit = 100
)

// Config configures the Redis adapter.
type Config struct {
	// URL in redis://[:password@]host:port[/db] form (required).
	URL     string
	Channel string
	// ListKey enables the recent-events list.
	ListKey   string
	ListLimit int64
	// Timeout bounds one attempt.
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// Adapter publishes events on one channel.
type Adapter struct {
	config Config
	policy adapter.RetryPolicy
	client *goredis.Client
}

// New parses the URL and applies defaults. It does not dial.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	cfg = withDefaults(cfg)
	policy := adapter.RetryPolicy{Retries: cfg.Retries, Backoff: cfg.Backoff}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return &Adapter{
		config: cfg,
		policy: policy,
		client: goredis.NewClient(opts),
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	return cfg
}

// Publish sends event, retrying per the adapter's policy. A closed client
// is not retried.
func (a *Adapter) Publish(ctx context.Context, event *adapter.TransferCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return a.policy.Do(ctx, "redis", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		err := a.send(ctx, payload)
		if errors.Is(err, goredis.ErrClosed) {
			return adapter.Permanent(err)
		}
		return err
	})
}

func (a *Adapter) send(ctx context.Context, payload []byte) error {
	if a.config.ListKey == "" {
		return a.client.Publish(ctx, a.config.Channel, payload).Err()
	}

	_, err := a.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Publish(ctx, a.config.Channel, payload)
		pipe.LPush(ctx, a.config.ListKey, payload)
		pipe.LTrim(ctx, a.config.ListKey, 0, a.config.ListLimit-1)
		return nil
	})
	return err
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)

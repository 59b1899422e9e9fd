// Package webhook delivers transfer completion events as HTTP POSTs.
//
// Each delivery carries the event JSON plus X-Omcloud-Event and
// X-Omcloud-Transfer-ID headers. The transfer ID doubles as the
// Idempotency-Key so receivers can drop redeliveries after a retry.
// 5xx responses, 429 and network errors are retried; other 4xx are final.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/adapter"
	"github.com/optimeas/opticloud-device-mgmt-go/iox"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// Defaults applied by New.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 500 * time.Millisecond
)

// Delivery headers.
const (
	HeaderEvent          = "X-Omcloud-Event"
	HeaderTransferID     = "X-Omcloud-Transfer-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Config configures the webhook adapter.
type Config struct {
	// URL receives the POST (required).
	URL string
	// Headers are added to every delivery. They cannot override the
	// delivery headers above.
	Headers map[string]string
	// Timeout bounds one HTTP attempt.
	Timeout time.Duration
	// Retries after the first attempt.
	Retries int
	// Backoff before the first retry; doubles afterwards.
	Backoff time.Duration
}

// Adapter posts events to one endpoint.
type Adapter struct {
	config Config
	policy adapter.RetryPolicy
	client *http.Client
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	policy := adapter.RetryPolicy{Retries: cfg.Retries, Backoff: cfg.Backoff}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return &Adapter{
		config: cfg,
		policy: policy,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish delivers event, retrying per the adapter's policy.
func (a *Adapter) Publish(ctx context.Context, event *adapter.TransferCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	return a.policy.Do(ctx, "webhook", func(ctx context.Context) error {
		err := a.deliver(ctx, event, body)
		var se *StatusError
		if errors.As(err, &se) && !se.Retriable() {
			return adapter.Permanent(err)
		}
		return err
	})
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	// Wait is the server's Retry-After hint, zero when absent.
	Wait time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable reports whether another attempt may succeed.
func (e *StatusError) Retriable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// RetryAfter returns the server's hint for the next attempt.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

func (a *Adapter) deliver(ctx context.Context, event *adapter.TransferCompletedEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return adapter.Permanent(fmt.Errorf("create request: %w", err))
	}

	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", types.UserAgent())
	req.Header.Set(HeaderEvent, event.EventType)
	if event.TransferID != "" {
		req.Header.Set(HeaderTransferID, event.TransferID)
		req.Header.Set(HeaderIdempotencyKey, event.TransferID)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Wait: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)

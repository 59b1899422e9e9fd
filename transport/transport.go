// Package transport runs HTTP exchanges asynchronously and reports their
// completion through a one-shot hook.
//
// The package owns connection handling, TLS verification, redirect
// following and the progress timeout. It knows nothing about the cloud
// protocol: requests arrive fully formed and completions are reported raw.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/iox"
	"github.com/optimeas/opticloud-device-mgmt-go/log"
)

// MaxRedirects bounds redirect chains when FollowRedirects is set.
const MaxRedirects = 10

// DefaultMaxResponseBytes caps in-memory response bodies.
const DefaultMaxResponseBytes = 64 << 20

// ErrClientClosed is returned by Submit after Close.
var ErrClientClosed = errors.New("transport client closed")

// Sentinel causes distinguishing why an exchange context ended.
var (
	errStalled  = errors.New("no transfer progress within timeout")
	errCanceled = errors.New("transfer canceled")
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMaxResponseBytes caps in-memory response bodies. Larger bodies fail
// with CodeWriteError.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) { c.maxResponseBytes = n }
}

// WithBaseTransport overrides the http.Transport template cloned for each
// connection profile. Used by tests to reach httptest servers.
func WithBaseTransport(t *http.Transport) Option {
	return func(c *Client) { c.base = t }
}

// profile selects one pooled http.Client.
type profile struct {
	verifyTLS       bool
	reuseConnection bool
	followRedirects bool
}

// Client submits requests. Safe for concurrent use.
type Client struct {
	logger           *log.Logger
	maxResponseBytes int64
	base             *http.Transport

	mu      sync.Mutex
	clients map[profile]*http.Client
	closed  bool
	wg      sync.WaitGroup
}

// New creates a client.
func New(opts ...Option) *Client {
	c := &Client{
		logger:           log.Nop(),
		maxResponseBytes: DefaultMaxResponseBytes,
		clients:          make(map[profile]*http.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = http.DefaultTransport.(*http.Transport)
	}
	return c
}

// Handle observes one submitted exchange.
type Handle struct {
	cancel     context.CancelCauseFunc
	done       chan struct{}
	completion *Completion
}

// Cancel aborts the exchange. The completion reports OutcomeCanceled unless
// the exchange already finished.
func (h *Handle) Cancel() { h.cancel(errCanceled) }

// Done is closed after the completion hook returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Completion returns the completion, or nil while running.
func (h *Handle) Completion() *Completion {
	select {
	case <-h.done:
		return h.completion
	default:
		return nil
	}
}

// Wait blocks until the exchange completes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (*Completion, error) {
	select {
	case <-h.done:
		return h.completion, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit starts req on a background goroutine. onComplete, when non-nil,
// runs exactly once on that goroutine with the final completion; it must
// not block. Only a nil request or a closed client fail synchronously.
func (c *Client) Submit(ctx context.Context, req *Request, onComplete func(*Completion)) (*Handle, error) {
	if req == nil {
		return nil, errors.New("transport: nil request")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	hc := c.clientFor(profile{
		verifyTLS:       req.VerifyTLS,
		reuseConnection: req.ReuseConnection,
		followRedirects: req.FollowRedirects,
	})
	c.wg.Add(1)
	c.mu.Unlock()

	exCtx, cancel := context.WithCancelCause(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer c.wg.Done()
		defer cancel(nil)

		comp := c.run(exCtx, hc, req)
		h.completion = comp

		c.logger.Debug("transfer completed", map[string]any{
			"outcome":     comp.Outcome.String(),
			"code":        int(comp.Code),
			"status_code": comp.StatusCode,
			"bytes":       comp.Stats.TransferredBytes(),
			"duration_ms": comp.Stats.Duration.Milliseconds(),
		})

		if onComplete != nil {
			onComplete(comp)
		}
		close(h.done)
	}()

	return h, nil
}

// clientFor returns the pooled http.Client for p. Caller holds c.mu.
func (c *Client) clientFor(p profile) *http.Client {
	if hc, ok := c.clients[p]; ok {
		return hc
	}

	t := c.base.Clone()
	t.DisableKeepAlives = !p.reuseConnection
	if !p.verifyTLS {
		if t.TLSClientConfig == nil {
			t.TLSClientConfig = &tls.Config{}
		}
		t.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in per connection parameters
	}

	hc := &http.Client{Transport: t}
	if p.followRedirects {
		hc.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		}
	} else {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	c.clients[p] = hc
	return hc
}

// run performs the exchange and derives the outcome from how it ended.
func (c *Client) run(ctx context.Context, hc *http.Client, req *Request) *Completion {
	start := time.Now()
	comp := &Completion{Outcome: OutcomeDone}

	exCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	wd := newWatchdog(req.ProgressTimeout, func() { cancel(errStalled) })
	defer wd.stop()

	err := c.exchange(exCtx, hc, req, comp, wd)
	comp.Stats.Duration = time.Since(start)

	if err != nil {
		comp.Err = err
		switch cause := context.Cause(exCtx); {
		case exCtx.Err() == nil:
			comp.Code = CodeFromError(err)
		case errors.Is(cause, errStalled), errors.Is(cause, context.DeadlineExceeded):
			comp.Outcome = OutcomeTimeout
		default:
			comp.Outcome = OutcomeCanceled
		}
	}
	return comp
}

func (c *Client) exchange(ctx context.Context, hc *http.Client, req *Request, comp *Completion, wd *watchdog) error {
	var (
		body    io.ReadCloser
		length  int64
		counter *iox.CountingReader
	)
	if req.Form != nil {
		var err error
		body, length, err = req.Form.Open()
		if err != nil {
			return err
		}
		counter = &iox.CountingReader{R: body, OnRead: func(int) { wd.touch() }}
	}

	var reqBody io.Reader
	if counter != nil {
		reqBody = counter
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, reqBody)
	if err != nil {
		if body != nil {
			iox.DiscardClose(body)
		}
		return &malformedURLError{err: err}
	}
	if body != nil {
		httpReq.ContentLength = length
		httpReq.Header.Set("Content-Type", req.Form.ContentType())
		httpReq.Body = struct {
			io.Reader
			io.Closer
		}{counter, body}
		form := req.Form
		httpReq.GetBody = func() (io.ReadCloser, error) {
			b, _, err := form.Open()
			return b, err
		}
	}

	for k, vs := range req.Header {
		if http.CanonicalHeaderKey(k) == "Host" {
			if len(vs) > 0 {
				httpReq.Host = vs[0]
			}
			continue
		}
		httpReq.Header[k] = append([]string(nil), vs...)
	}

	c.logger.Debug("transfer started", map[string]any{
		"url":            logURL(httpReq.URL),
		"content_length": length,
	})

	resp, err := hc.Do(httpReq)
	if counter != nil {
		comp.Stats.BytesSent = counter.Count()
	}
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)
	wd.touch()

	comp.StatusCode = resp.StatusCode
	comp.Header = resp.Header.Clone()

	in := &iox.CountingReader{R: resp.Body, OnRead: func(int) { wd.touch() }}
	defer func() { comp.Stats.BytesReceived = in.Count() }()

	if req.OutputPath != "" {
		return writeOutput(req.OutputPath, in)
	}

	limited := io.LimitReader(in, c.maxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return err
	}
	if int64(len(data)) > c.maxResponseBytes {
		return writeFileError(fmt.Errorf("response body exceeds %d bytes", c.maxResponseBytes))
	}
	comp.Body = data
	return nil
}

func writeOutput(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return writeFileError(fmt.Errorf("create output file: %w", err))
	}
	if _, err := io.Copy(f, r); err != nil {
		iox.DiscardClose(f)
		return err
	}
	if err := f.Close(); err != nil {
		return writeFileError(fmt.Errorf("close output file: %w", err))
	}
	return nil
}

// malformedURLError marks request construction failures.
// logURL renders u for logs without its query, fragment or password. The
// query carries credentials.
func logURL(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.ForceQuery = false
	clean.Fragment = ""
	clean.RawFragment = ""
	return clean.Redacted()
}

type malformedURLError struct{ err error }

func (e *malformedURLError) Error() string { return "malformed URL: " + e.err.Error() }
func (e *malformedURLError) Unwrap() error { return e.err }

// Close waits for in-flight exchanges and releases idle connections.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, hc := range c.clients {
		hc.CloseIdleConnections()
	}
	return nil
}

// watchdog fires when touch is not called for timeout. A nil watchdog is
// inert.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
}

func newWatchdog(timeout time.Duration, fire func()) *watchdog {
	if timeout <= 0 {
		return nil
	}
	return &watchdog{timeout: timeout, timer: time.AfterFunc(timeout, fire)}
}

func (w *watchdog) touch() {
	if w == nil {
		return
	}
	w.timer.Reset(w.timeout)
}

func (w *watchdog) stop() {
	if w == nil {
		return
	}
	w.timer.Stop()
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/optimeas/opticloud-device-mgmt-go/adapter"
	"github.com/optimeas/opticloud-device-mgmt-go/adapter/redis"
	"github.com/optimeas/opticloud-device-mgmt-go/adapter/webhook"
	"github.com/optimeas/opticloud-device-mgmt-go/cli/config"
	"github.com/optimeas/opticloud-device-mgmt-go/entry"
	"github.com/optimeas/opticloud-device-mgmt-go/iox"
	"github.com/optimeas/opticloud-device-mgmt-go/log"
	"github.com/optimeas/opticloud-device-mgmt-go/metrics"
	"github.com/optimeas/opticloud-device-mgmt-go/record"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// resolveConnection merges connection flags over the config file. The
// result is not validated; the transfer reports missing fields as
// configuration errors.
func resolveConnection(c *cli.Context, cfg *config.Config) (*entry.ConnectionParameters, types.ProtocolVersion, error) {
	p := entry.DefaultConnectionParameters()
	if cfg != nil {
		p = cfg.ConnectionParameters()
	}

	p.URL = resolveString(c, "url", p.URL)
	p.AccessToken = resolveString(c, "token", p.AccessToken)
	p.HostAlias = resolveString(c, "host-alias", p.HostAlias)
	if c.IsSet("insecure") {
		p.VerifyTLS = !c.Bool("insecure")
	}
	if c.IsSet("no-reuse") {
		p.ReuseConnection = !c.Bool("no-reuse")
	}
	p.ProgressTimeout = resolveDuration(c, "progress-timeout", p.ProgressTimeout)

	version := types.ProtocolV4
	if s := resolveString(c, "protocol", configVal(cfg, func(c *config.Config) string { return c.Protocol })); s != "" {
		v, err := types.ParseProtocolVersion(s)
		if err != nil {
			return nil, 0, err
		}
		version = v
	}

	return &p, version, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// setupLogger builds the process logger from log flags and config.
func setupLogger(c *cli.Context, cfg *config.Config) (*log.Logger, error) {
	opts := configVal(cfg, func(c *config.Config) log.Options { return c.LogOptions() })
	opts.Level = resolveString(c, "log-level", opts.Level)
	opts.Format = resolveString(c, "log-format", opts.Format)
	opts.Output = resolveString(c, "log-output", opts.Output)
	return log.Setup(opts)
}

// adapterChoice holds resolved adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	listKey     string
	listLimit   int64
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

// parseAdapterConfigWithPrecedence resolves adapter settings for
// adapterType with CLI flags taking precedence over the config file.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (*adapterChoice, error) {
	ac := config.AdapterConfig{}
	if cfg != nil {
		ac = cfg.Adapter
	}

	choice := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", ac.URL),
		channel:     resolveString(c, "adapter-channel", ac.Channel),
		listKey:     resolveString(c, "adapter-list-key", ac.ListKey),
		listLimit:   ac.ListLimit,
		timeout:     resolveDuration(c, "adapter-timeout", ac.Timeout.Duration),
		retries:     c.Int("adapter-retries"),
		headers:     make(map[string]string, len(ac.Headers)),
	}
	if !c.IsSet("adapter-retries") && ac.Retries != nil {
		choice.retries = *ac.Retries
	}
	for k, v := range ac.Headers {
		choice.headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q: expected key=value", h)
		}
		choice.headers[strings.TrimSpace(k)] = v
	}

	switch adapterType {
	case config.AdapterWebhook, config.AdapterRedis:
		if choice.url == "" {
			return nil, fmt.Errorf("--adapter-url is required when --adapter=%s", adapterType)
		}
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}
	if choice.retries < 0 {
		return nil, fmt.Errorf("--adapter-retries must be >= 0, got %d", choice.retries)
	}
	return choice, nil
}

func buildAdapter(choice *adapterChoice) (adapter.Adapter, error) {
	switch choice.adapterType {
	case config.AdapterWebhook:
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case config.AdapterRedis:
		return redis.New(redis.Config{
			URL:       choice.url,
			Channel:   choice.channel,
			ListKey:   choice.listKey,
			ListLimit: choice.listLimit,
			Timeout:   choice.timeout,
			Retries:   choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", choice.adapterType)
	}
}

// session fans a completed transfer out to metrics, the journal and the
// completion adapter. Journal and adapter are optional.
type session struct {
	logger    *log.Logger
	collector *metrics.Collector
	journal   *record.Journal
	publisher adapter.Adapter
	now       func() time.Time
}

func newSession(c *cli.Context, cfg *config.Config, logger *log.Logger, p *entry.ConnectionParameters, version types.ProtocolVersion) (*session, error) {
	s := &session{
		logger:    logger,
		collector: metrics.NewCollector(version.Wire(), p.URL),
		now:       time.Now,
	}

	if path := resolveString(c, "record", configVal(cfg, func(c *config.Config) string { return c.Record.Path })); path != "" {
		j, err := record.OpenJournal(path)
		if err != nil {
			return nil, err
		}
		s.journal = j
	}

	if adapterType := resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type })); adapterType != "" {
		choice, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
		if err != nil {
			s.close()
			return nil, err
		}
		a, err := buildAdapter(choice)
		if err != nil {
			s.close()
			return nil, err
		}
		s.publisher = a
	}

	return s, nil
}

// start submits t and counts it. Rejected configurations are counted
// as config errors instead.
func (s *session) start(ctx context.Context, t *entry.Transfer, sub entry.Submitter) error {
	if _, err := t.Start(ctx, sub); err != nil {
		if errors.Is(err, entry.ErrInvalidConfiguration) {
			s.collector.IncConfigError()
		}
		return err
	}
	s.collector.IncTransferStarted()
	return nil
}

// finish records a completed transfer. Journal and publish failures are
// logged and counted but never change the transfer result.
func (s *session) finish(t *entry.Transfer) {
	at := s.now()
	stats := t.Stats()

	done := metrics.Completion{
		Result:        t.Result().String(),
		Category:      string(t.Result().Category()),
		BytesSent:     stats.BytesSent,
		BytesReceived: stats.BytesReceived,
		Duration:      stats.Duration,
	}
	if t.Result() == types.ResultCurlError {
		done.TransportCode = t.TransportCode().String()
	}
	s.collector.RecordCompletion(done)

	if s.journal != nil {
		if err := s.journal.Append(record.FromTransfer(t, at)); err != nil {
			s.collector.IncRecordWriteFailure()
			s.logger.Warn("journal append failed", map[string]any{
				"transfer_id": t.ID(),
				"path":        s.journal.Path(),
				"error":       err.Error(),
			})
		} else {
			s.collector.IncRecordWrite()
		}
	}

	if s.publisher != nil {
		// The transfer context may already be canceled; publishing gets
		// its own deadlines from the adapter.
		if err := s.publisher.Publish(context.Background(), adapter.NewTransferCompletedEvent(t, at)); err != nil {
			s.collector.IncPublishFailure()
			s.logger.Warn("completion event not delivered", map[string]any{
				"transfer_id": t.ID(),
				"error":       err.Error(),
			})
		} else {
			s.collector.IncPublishSuccess()
		}
	}
}

func (s *session) close() {
	if s.publisher != nil {
		iox.DiscardClose(s.publisher)
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("journal close failed", map[string]any{"error": err.Error()})
		}
	}
}

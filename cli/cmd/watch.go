package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/optimeas/opticloud-device-mgmt-go/cli/reader"
	"github.com/optimeas/opticloud-device-mgmt-go/cli/render"
	"github.com/optimeas/opticloud-device-mgmt-go/entry"
	"github.com/optimeas/opticloud-device-mgmt-go/iox"
	"github.com/optimeas/opticloud-device-mgmt-go/log"
	"github.com/optimeas/opticloud-device-mgmt-go/transport"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// WatchCommand returns the watch command. It polls the service with PING
// transfers until interrupted. Task results are logged, not executed.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Poll the cloud service with PING transfers every heartbeat interval",
		Flags: joinFlags(
			[]cli.Flag{ConfigFlag},
			ConnectionFlags(),
			[]cli.Flag{
				&cli.DurationFlag{
					Name:  "interval",
					Usage: "Polling period (overrides connection.heartbeat_interval)",
				},
				&cli.IntFlag{
					Name:  "count",
					Usage: "Stop after this many transfers (0 = until interrupted)",
				},
				&cli.BoolFlag{
					Name:  "quiet",
					Usage: "Suppress the metrics summary",
				},
				FormatFlag,
				NoColorFlag,
				TUIFlag,
				RecordFlag,
			},
			AdapterFlags(),
			LogFlags(),
		),
		Action: watchAction,
	}
}

// pollLoop issues PING transfers on a fixed period.
type pollLoop struct {
	session   *session
	submitter entry.Submitter
	params    *entry.ConnectionParameters
	version   types.ProtocolVersion
	logger    *log.Logger
	interval  time.Duration
	count     int
}

// run polls until ctx ends or count transfers completed. It returns an
// error only when a transfer could not be started.
func (p *pollLoop) run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for i := 0; p.count == 0 || i < p.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}

		t := entry.New(p.params, entry.WithLogger(p.logger))
		t.SetProtocolVersion(p.version)
		t.SetRequestKind(types.RequestPing)
		if err := p.session.start(ctx, t, p.submitter); err != nil {
			return err
		}
		<-t.Done()
		p.session.finish(t)

		if t.Result().IsTask() {
			p.logger.Info("task pending", map[string]any{
				"transfer_id": t.ID(),
				"result":      t.Result().String(),
				"message_id":  t.MessageID(),
			})
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func watchAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	params, version, err := resolveConnection(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	interval := params.HeartbeatInterval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}
	if interval <= 0 {
		return cli.Exit("--interval must be positive", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	logger, err := setupLogger(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer iox.DiscardErr(logger.Sync)

	sess, err := newSession(c, cfg, logger, params, version)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer sess.close()

	client := transport.New(transport.WithLogger(logger))
	defer iox.DiscardClose(client)

	ctx, cancel := signalContext()
	defer cancel()

	loop := &pollLoop{
		session:   sess,
		submitter: client,
		params:    params,
		version:   version,
		logger:    logger,
		interval:  interval,
		count:     c.Int("count"),
	}
	logger.Info("watch started", map[string]any{
		"endpoint": params.URL,
		"protocol": version.Wire(),
		"interval": interval.String(),
	})
	runErr := loop.run(ctx)

	summary := reader.FromSnapshot(sess.collector.Snapshot())
	if runErr != nil {
		if errors.Is(runErr, entry.ErrInvalidConfiguration) {
			return cli.Exit(runErr.Error(), exitConfigError)
		}
		return cli.Exit(runErr.Error(), exitTransportError)
	}
	if c.Bool("quiet") {
		return nil
	}
	if c.Bool("tui") {
		return r.RenderTUI("stats_metrics", summary)
	}
	return r.Render(summary)
}

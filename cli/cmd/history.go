package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/optimeas/opticloud-device-mgmt-go/cli/config"
	"github.com/optimeas/opticloud-device-mgmt-go/cli/reader"
	"github.com/optimeas/opticloud-device-mgmt-go/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// HistoryCommand returns the history command with subcommands.
// History reads the transfer journal or its archive and never contacts
// the service.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Read recorded transfers (list, inspect, stats, archive)",
		Subcommands: []*cli.Command{
			historyListCommand(),
			historyInspectCommand(),
			historyStatsCommand(),
			historyArchiveCommand(),
		},
	}
}

func historyFlags(extra ...cli.Flag) []cli.Flag {
	return joinFlags([]cli.Flag{ConfigFlag, RecordFlag}, ReadOnlyFlags(), extra)
}

// historyReadFlags are the flags of commands that can read the archive
// instead of the journal.
func historyReadFlags(extra ...cli.Flag) []cli.Flag {
	fromArchive := &cli.BoolFlag{
		Name:  "from-archive",
		Usage: "Read the fs or s3 archive instead of the journal",
	}
	return historyFlags(joinFlags([]cli.Flag{fromArchive}, StorageFlags(), extra)...)
}

// openHistory opens the archive with --from-archive, the journal otherwise.
func openHistory(c *cli.Context) (*reader.JournalReader, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if c.Bool("from-archive") {
		return readArchive(c, cfg)
	}
	return openJournal(c, cfg)
}

// openJournal opens the journal named by --record or record.path.
// A truncated tail is reported on stderr and the readable part is served.
func openJournal(c *cli.Context, cfg *config.Config) (*reader.JournalReader, error) {
	path := resolveString(c, "record", configVal(cfg, func(c *config.Config) string { return c.Record.Path }))
	if path == "" {
		return nil, fmt.Errorf("--record is required (or set record.path in the config file)")
	}

	jr, warning, err := reader.Open(path)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		fmt.Fprintf(c.App.ErrWriter, "Warning: %s\n", warning)
	}
	return jr, nil
}

func historyListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recorded transfers, newest first",
		Flags: historyReadFlags(
			&cli.StringFlag{
				Name:  "result",
				Usage: "Filter by result: RETURN_OK, CURL_ERROR, TASK_REQUEST_LIST, ...",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Filter by category: ok, task, transport, protocol",
			},
			&cli.StringFlag{
				Name:  "since",
				Usage: "Only transfers after an RFC 3339 time or within a duration (24h)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of transfers to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: historyListAction,
	}
}

func historyListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	since, err := reader.ParseSince(c.String("since"), time.Now())
	if err != nil {
		return err
	}
	jr, err := openHistory(c)
	if err != nil {
		return err
	}

	opts := reader.ListOptions{
		Result:   c.String("result"),
		Category: c.String("category"),
		Since:    since,
		Limit:    c.Int("limit"),
	}
	results := jr.ListTransfers(opts)

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(c.App.ErrWriter, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}

func historyInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show one recorded transfer",
		ArgsUsage: "<transfer-id>",
		Flags:     historyReadFlags(),
		Action:    historyInspectAction,
	}
}

func historyInspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("transfer ID required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	jr, err := openHistory(c)
	if err != nil {
		return err
	}

	resp, err := jr.InspectTransfer(c.Args().First())
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_transfer", resp)
	}
	return r.Render(resp)
}

func historyStatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregated transfer statistics",
		Flags:  historyReadFlags(),
		Action: historyStatsAction,
	}
}

func historyStatsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	jr, err := openHistory(c)
	if err != nil {
		return err
	}

	stats := jr.StatsHistory()
	if c.Bool("tui") {
		return r.RenderTUI("stats_history", stats)
	}
	return r.Render(stats)
}

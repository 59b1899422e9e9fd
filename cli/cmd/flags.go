// Package cmd provides CLI commands for the omcloud binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (inspect, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (history inspect, history stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// ConfigFlag points at an omcloud.yaml file.
var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to omcloud.yaml (flags override file values)",
	EnvVars: []string{"OMCLOUD_CONFIG"},
}

// RecordFlag selects the transfer journal file.
var RecordFlag = &cli.StringFlag{
	Name:  "record",
	Usage: "Transfer journal path (overrides record.path)",
}

// ConnectionFlags returns the flags describing the cloud service connection.
func ConnectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Usage:   "Cloud service URL (status.php is used when it has no path)",
			EnvVars: []string{"OMCLOUD_URL"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Device access token",
			EnvVars: []string{"OMCLOUD_TOKEN"},
		},
		&cli.StringFlag{
			Name:  "host-alias",
			Usage: "Override the Host header",
		},
		&cli.StringFlag{
			Name:  "protocol",
			Usage: "Protocol version: v4, v5, v6",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip TLS certificate verification",
		},
		&cli.BoolFlag{
			Name:  "no-reuse",
			Usage: "Open a new connection for every transfer",
		},
		&cli.DurationFlag{
			Name:  "progress-timeout",
			Usage: "Abort when no bytes move for this long",
		},
	}
}

// AdapterFlags returns the completion event adapter flags.
func AdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion event adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.StringFlag{
			Name:  "adapter-list-key",
			Usage: "Redis list keeping recent events",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as key=value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-publish timeout",
			Value: 10 * time.Second,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retries",
			Value: 3,
		},
	}
}

// LogFlags returns the logging flags.
func LogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: json or console",
			Value: "json",
		},
		&cli.StringFlag{
			Name:  "log-output",
			Usage: "Log destination: stderr, stdout or a file path",
			Value: "stderr",
		},
	}
}

// StorageFlags returns the journal archive flags.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Archive dataset ID (default: \"omcloud\")",
		},
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Archive backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Archive path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for the s3 backend",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint (MinIO, R2)",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Use path-style S3 addressing",
		},
	}
}

func joinFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

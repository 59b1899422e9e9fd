package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/entry"
	"github.com/optimeas/opticloud-device-mgmt-go/log"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// Config represents an omcloud.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Protocol   string           `yaml:"protocol"`
	Log        LogConfig        `yaml:"log"`
	Adapter    AdapterConfig    `yaml:"adapter"`
	Record     RecordConfig     `yaml:"record"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ConnectionConfig holds the cloud service connection from the config file.
// Pointer booleans distinguish "unset" from an explicit false.
type ConnectionConfig struct {
	URL               string   `yaml:"url"`
	HostAlias         string   `yaml:"host_alias"`
	AccessToken       string   `yaml:"access_token"`
	VerifyTLS         *bool    `yaml:"verify_tls,omitempty"`
	ReuseConnection   *bool    `yaml:"reuse_connection,omitempty"`
	ProgressTimeout   Duration `yaml:"progress_timeout,omitempty"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval,omitempty"`
}

// LogConfig holds logging defaults from the config file.
type LogConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Output   string         `yaml:"output"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig holds log file rotation settings.
type RotationConfig struct {
	Enable     bool `yaml:"enable"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type      string            `yaml:"type"`
	URL       string            `yaml:"url"`
	Channel   string            `yaml:"channel,omitempty"`
	ListKey   string            `yaml:"list_key,omitempty"`
	ListLimit int64             `yaml:"list_limit,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Retries   *int              `yaml:"retries,omitempty"`
}

// RecordConfig holds transfer journal settings.
type RecordConfig struct {
	// Path is the journal file. Empty disables recording.
	Path string `yaml:"path"`
}

// StorageConfig holds journal archive defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Storage backends.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Adapter types.
const (
	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ConnectionParameters converts the connection section, applying
// entry defaults for unset values.
func (c *Config) ConnectionParameters() entry.ConnectionParameters {
	p := entry.DefaultConnectionParameters()
	cc := c.Connection

	p.URL = cc.URL
	p.HostAlias = cc.HostAlias
	p.AccessToken = cc.AccessToken
	if cc.VerifyTLS != nil {
		p.VerifyTLS = *cc.VerifyTLS
	}
	if cc.ReuseConnection != nil {
		p.ReuseConnection = *cc.ReuseConnection
	}
	if cc.ProgressTimeout.Duration > 0 {
		p.ProgressTimeout = cc.ProgressTimeout.Duration
	}
	if cc.HeartbeatInterval.Duration > 0 {
		p.HeartbeatInterval = cc.HeartbeatInterval.Duration
	}
	return p
}

// ProtocolVersion parses the protocol setting. Empty selects v4.
func (c *Config) ProtocolVersion() (types.ProtocolVersion, error) {
	if c.Protocol == "" {
		return types.ProtocolV4, nil
	}
	return types.ParseProtocolVersion(c.Protocol)
}

// LogOptions converts the log section.
func (c *Config) LogOptions() log.Options {
	r := c.Log.Rotation
	return log.Options{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Output: c.Log.Output,
		Rotation: log.Rotation{
			Enable:     r.Enable,
			MaxSizeMB:  r.MaxSizeMB,
			MaxBackups: r.MaxBackups,
			MaxAgeDays: r.MaxAgeDays,
			Compress:   r.Compress,
		},
	}
}

// Validate checks values that cannot be checked while parsing. Missing
// connection settings are not errors here since flags may supply them.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.ProtocolVersion(); err != nil {
		errs = append(errs, fmt.Errorf("protocol: %w", err))
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		}
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	switch c.Adapter.Type {
	case "":
	case AdapterWebhook, AdapterRedis:
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for %s adapter", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type: unknown adapter %q", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}

	switch c.Storage.Backend {
	case "", StorageFS, StorageS3:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q (must be fs or s3)", c.Storage.Backend))
	}

	return errors.Join(errs...)
}

package entry

import "time"

// Connection defaults.
const (
	DefaultProgressTimeout   = 300 * time.Second
	DefaultHeartbeatInterval = 60 * time.Second
)

// ConnectionParameters describe how to reach the cloud service. A value is
// shared by pointer between transfers and treated as read-only: build a new
// value to change settings and swap it in with SetConnectionParameters.
type ConnectionParameters struct {
	// URL is the service base URL. When it has no path, status.php is used.
	URL string
	// HostAlias overrides the Host header when set.
	HostAlias string
	// AccessToken is the opaque device credential sent as the ID parameter.
	AccessToken string
	// VerifyTLS verifies server certificates.
	VerifyTLS bool
	// ReuseConnection keeps connections alive between transfers.
	ReuseConnection bool
	// ProgressTimeout aborts a transfer that moves no bytes for this long.
	ProgressTimeout time.Duration
	// HeartbeatInterval is the polling period for callers that poll.
	HeartbeatInterval time.Duration
}

// DefaultConnectionParameters returns parameters with TLS verification and
// connection reuse enabled and default timeouts.
func DefaultConnectionParameters() ConnectionParameters {
	return ConnectionParameters{
		VerifyTLS:         true,
		ReuseConnection:   true,
		ProgressTimeout:   DefaultProgressTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
	}
}

// Validate reports the first missing required field.
func (p *ConnectionParameters) Validate() error {
	if p == nil {
		return &ConfigError{Field: "connection", Msg: "connection parameters are not set"}
	}
	if p.URL == "" {
		return &ConfigError{Field: "url", Msg: "url is empty"}
	}
	if p.AccessToken == "" {
		return &ConfigError{Field: "access_token", Msg: "accessToken is empty"}
	}
	return nil
}

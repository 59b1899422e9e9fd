package transport

import (
	"net/http"
	"time"
)

// Outcome is the asynchronous engine's own completion status, distinct
// from the HTTP status and from the error code of the exchange.
type Outcome int

// Outcomes.
const (
	OutcomeNone Outcome = iota
	OutcomeRunning
	// OutcomeDone means the exchange ran to completion; Code tells
	// whether it succeeded.
	OutcomeDone
	OutcomeCanceled
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeRunning:
		return "running"
	case OutcomeDone:
		return "done"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Stats are byte and timing counters of one exchange.
type Stats struct {
	BytesSent     int64
	BytesReceived int64
	Duration      time.Duration
}

// TransferredBytes returns the bytes moved in both directions.
func (s Stats) TransferredBytes() int64 {
	return s.BytesSent + s.BytesReceived
}

// Speed returns the average throughput in bytes per second.
func (s Stats) Speed() uint64 {
	if s.Duration <= 0 {
		return 0
	}
	return uint64(float64(s.TransferredBytes()) / s.Duration.Seconds())
}

// Completion is delivered exactly once per submitted request.
type Completion struct {
	Outcome Outcome
	// Code is meaningful when Outcome is OutcomeDone.
	Code ErrorCode
	// Err is the underlying failure, if any.
	Err error

	StatusCode int
	Header     http.Header
	// Body holds the response body when the request had no OutputPath.
	Body []byte

	Stats Stats
}

// ResponseHeader returns the first value of the named response header, or
// "" when absent.
func (c *Completion) ResponseHeader(name string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(name)
}

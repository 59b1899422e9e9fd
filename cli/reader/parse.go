package reader

import (
	"fmt"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/metrics"
)

// FromSnapshot converts collector counters into the rendered view.
func FromSnapshot(s metrics.Snapshot) *MetricsSnapshot {
	return &MetricsSnapshot{
		Protocol:            s.Protocol,
		Endpoint:            s.Endpoint,
		TransfersStarted:    s.TransfersStarted,
		TransfersCompleted:  s.TransfersCompleted,
		ConfigErrors:        s.ConfigErrors,
		ByResult:            s.ByResult,
		TransportErrors:     s.TransportErrors,
		BytesSent:           s.BytesSent,
		BytesReceived:       s.BytesReceived,
		AverageSpeed:        s.AverageSpeed(),
		PublishSuccess:      s.PublishSuccess,
		PublishFailure:      s.PublishFailure,
		RecordWrites:        s.RecordWrites,
		RecordWriteFailures: s.RecordWriteFailures,
	}
}

// ParseSince parses a --since value. It accepts an RFC 3339 timestamp or a
// duration measured back from now ("90m", "24h"). Empty yields the zero time.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since %q: want RFC 3339 time or duration", s)
	}
	if d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: duration must be positive", s)
	}
	return now.Add(-d), nil
}

// Package metrics collects per-process transfer counters.
//
// The Collector is a leaf package with no internal dependencies: results,
// categories and transport codes are recorded by their string names.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Transfer lifecycle
	TransfersStarted   int64
	TransfersCompleted int64
	ConfigErrors       int64

	// Classification
	ByResult        map[string]int64
	ByCategory      map[string]int64
	TransportErrors map[string]int64

	// Volume
	BytesSent     int64
	BytesReceived int64
	BusyTime      time.Duration

	// Event publishing
	PublishSuccess int64
	PublishFailure int64

	// Journal
	RecordWrites        int64
	RecordWriteFailures int64

	// Dimensions (informational, set at construction)
	Protocol string
	Endpoint string
}

// Completion is the subset of a finished transfer the collector records.
type Completion struct {
	Result        string
	Category      string
	TransportCode string // set for transport failures only
	BytesSent     int64
	BytesReceived int64
	Duration      time.Duration
}

// Collector accumulates counters across transfers.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	transfersStarted   int64
	transfersCompleted int64
	configErrors       int64

	byResult        map[string]int64
	byCategory      map[string]int64
	transportErrors map[string]int64

	bytesSent     int64
	bytesReceived int64
	busyTime      time.Duration

	publishSuccess int64
	publishFailure int64

	recordWrites        int64
	recordWriteFailures int64

	protocol string
	endpoint string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(protocol, endpoint string) *Collector {
	return &Collector{
		byResult:        make(map[string]int64),
		byCategory:      make(map[string]int64),
		transportErrors: make(map[string]int64),
		protocol:        protocol,
		endpoint:        endpoint,
	}
}

// --- Transfer lifecycle ---

// IncTransferStarted records a submitted transfer.
func (c *Collector) IncTransferStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.transfersStarted++
	c.mu.Unlock()
}

// IncConfigError records a transfer rejected before submission.
func (c *Collector) IncConfigError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.configErrors++
	c.mu.Unlock()
}

// RecordCompletion records a classified transfer.
func (c *Collector) RecordCompletion(done Completion) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transfersCompleted++
	c.byResult[done.Result]++
	c.byCategory[done.Category]++
	if done.TransportCode != "" {
		c.transportErrors[done.TransportCode]++
	}
	c.bytesSent += done.BytesSent
	c.bytesReceived += done.BytesReceived
	c.busyTime += done.Duration
}

// --- Event publishing ---

// IncPublishSuccess records a delivered completion event.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishSuccess++
	c.mu.Unlock()
}

// IncPublishFailure records a completion event that could not be delivered.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishFailure++
	c.mu.Unlock()
}

// --- Journal ---

// IncRecordWrite records a journal append.
func (c *Collector) IncRecordWrite() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordWrites++
	c.mu.Unlock()
}

// IncRecordWriteFailure records a failed journal append.
func (c *Collector) IncRecordWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordWriteFailures++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		TransfersStarted:   c.transfersStarted,
		TransfersCompleted: c.transfersCompleted,
		ConfigErrors:       c.configErrors,

		ByResult:        copyCounts(c.byResult),
		ByCategory:      copyCounts(c.byCategory),
		TransportErrors: copyCounts(c.transportErrors),

		BytesSent:     c.bytesSent,
		BytesReceived: c.bytesReceived,
		BusyTime:      c.busyTime,

		PublishSuccess: c.publishSuccess,
		PublishFailure: c.publishFailure,

		RecordWrites:        c.recordWrites,
		RecordWriteFailures: c.recordWriteFailures,

		Protocol: c.protocol,
		Endpoint: c.endpoint,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// InFlight returns the number of started transfers not yet completed.
func (s Snapshot) InFlight() int64 {
	return s.TransfersStarted - s.TransfersCompleted
}

// AverageSpeed returns the mean throughput across completed transfers in
// bytes per second.
func (s Snapshot) AverageSpeed() uint64 {
	if s.BusyTime <= 0 {
		return 0
	}
	return uint64(float64(s.BytesSent+s.BytesReceived) / s.BusyTime.Seconds())
}

// Package reader provides the read-side data access layer for the omcloud
// CLI.
//
// This package isolates read operations over the transfer journal from the
// transfer core. Read-only commands render its response types.
package reader

import "time"

// TransferItem is one row of history list output.
type TransferItem struct {
	TransferID string    `json:"transfer_id"`
	Time       time.Time `json:"time"`
	Request    string    `json:"request"`
	Protocol   string    `json:"protocol"`
	Result     string    `json:"result"`
	StatusCode int       `json:"status_code"`
	MessageID  string    `json:"message_id"`
	Bytes      int64     `json:"bytes"`
	DurationMs int64     `json:"duration_ms"`
}

// InspectTransferResponse is the full view of one journal entry.
type InspectTransferResponse struct {
	TransferID     string    `json:"transfer_id"`
	Time           time.Time `json:"time"`
	Endpoint       string    `json:"endpoint"`
	Request        string    `json:"request"`
	Protocol       string    `json:"protocol"`
	Result         string    `json:"result"`
	Category       string    `json:"category"`
	StatusCode     int       `json:"status_code"`
	TransportCode  int       `json:"transport_code"`
	TransportError string    `json:"transport_error,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	FileTag        string    `json:"file_tag,omitempty"`
	BytesSent      int64     `json:"bytes_sent"`
	BytesReceived  int64     `json:"bytes_received"`
	DurationMs     int64     `json:"duration_ms"`
}

// HistoryStats aggregates journal entries by outcome category.
type HistoryStats struct {
	Total         int            `json:"total"`
	OK            int            `json:"ok"`
	Tasks         int            `json:"tasks"`
	Transport     int            `json:"transport_errors"`
	Protocol      int            `json:"protocol_errors"`
	ByResult      map[string]int `json:"by_result"`
	BytesSent     int64          `json:"bytes_sent"`
	BytesReceived int64          `json:"bytes_received"`
	AvgDurationMs int64          `json:"avg_duration_ms"`
	FirstAt       *time.Time     `json:"first_at"`
	LastAt        *time.Time     `json:"last_at"`
	Skipped       int            `json:"skipped_frames"`
}

// MetricsSnapshot is the rendered form of the in-process counters printed
// when a watch loop ends.
type MetricsSnapshot struct {
	Protocol string `json:"protocol"`
	Endpoint string `json:"endpoint"`

	TransfersStarted   int64 `json:"transfers_started"`
	TransfersCompleted int64 `json:"transfers_completed"`
	ConfigErrors       int64 `json:"config_errors"`

	ByResult        map[string]int64 `json:"by_result"`
	TransportErrors map[string]int64 `json:"transport_errors"`

	BytesSent     int64  `json:"bytes_sent"`
	BytesReceived int64  `json:"bytes_received"`
	AverageSpeed  uint64 `json:"average_speed_bps"`

	PublishSuccess      int64 `json:"publish_success"`
	PublishFailure      int64 `json:"publish_failure"`
	RecordWrites        int64 `json:"record_writes"`
	RecordWriteFailures int64 `json:"record_write_failures"`
}

// ListOptions filters history list output.
type ListOptions struct {
	// Result keeps entries with this result name; empty keeps all.
	Result string
	// Category keeps entries of this category; empty keeps all.
	Category string
	// Since keeps entries at or after this time; zero keeps all.
	Since time.Time
	// Limit caps the number of entries; zero is unlimited.
	Limit int
}

// Package adapter defines the event-bus adapter boundary.
//
// Adapters publish transfer completion notifications to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/entry"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// EventTypeTransferCompleted is the event_type of every published event.
const EventTypeTransferCompleted = "transfer_completed"

// TransferCompletedEvent is the payload published when a transfer finishes.
type TransferCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "transfer_completed"
	TransferID      string `json:"transfer_id"`
	Request         string `json:"request"`
	Protocol        string `json:"protocol"`
	Result          string `json:"result"`   // RETURN_OK, TASK_EXECUTE_SCRIPT, etc.
	Category        string `json:"category"` // ok, task, transport, protocol, pending
	StatusCode      int    `json:"status_code,omitempty"`
	TransportCode   int    `json:"transport_code"`
	TransportError  string `json:"transport_error,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	FileTag         string `json:"file_tag,omitempty"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	BytesSent       int64  `json:"bytes_sent"`
	BytesReceived   int64  `json:"bytes_received"`
	DurationMs      int64  `json:"duration_ms"`
}

// NewTransferCompletedEvent builds the event for a completed transfer.
func NewTransferCompletedEvent(t *entry.Transfer, at time.Time) *TransferCompletedEvent {
	stats := t.Stats()
	ev := &TransferCompletedEvent{
		ContractVersion: types.Version,
		EventType:       EventTypeTransferCompleted,
		TransferID:      t.ID(),
		Request:         t.RequestKind().String(),
		Protocol:        t.ProtocolVersion().Wire(),
		Result:          t.Result().String(),
		Category:        string(t.Result().Category()),
		StatusCode:      t.HTTPStatus(),
		TransportCode:   int(t.TransportCode()),
		MessageID:       t.MessageID(),
		FileTag:         t.ReturnFileTag(),
		Timestamp:       at.UTC().Format(time.RFC3339),
		BytesSent:       stats.BytesSent,
		BytesReceived:   stats.BytesReceived,
		DurationMs:      stats.Duration.Milliseconds(),
	}
	if err := t.Err(); err != nil && t.Result() == types.ResultCurlError {
		ev.TransportError = err.Error()
	}
	return ev
}

// Adapter publishes transfer completion events to a downstream system.
type Adapter interface {
	// Publish sends a transfer completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *TransferCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

package reader

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/record"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// JournalReader serves read views over a decoded transfer journal.
type JournalReader struct {
	records []*record.TransferRecord
	skipped int
}

// NewJournalReader wraps decoded journal content.
func NewJournalReader(res *record.ReadResult) *JournalReader {
	if res == nil {
		return &JournalReader{}
	}
	return &JournalReader{records: res.Records, skipped: res.Skipped}
}

// Open reads the journal at path. A truncated final frame is tolerated:
// the complete records are served and warning describes the damage.
func Open(path string) (r *JournalReader, warning string, err error) {
	res, err := record.ReadFile(path)
	if res == nil {
		return nil, "", err
	}
	if err != nil {
		if !record.IsFatalFrameError(err) {
			return nil, "", err
		}
		warning = fmt.Sprintf("journal %s is truncated: %v", path, err)
	}
	return NewJournalReader(res), warning, nil
}

// ListTransfers returns matching entries, newest first.
func (r *JournalReader) ListTransfers(opts ListOptions) []TransferItem {
	items := make([]TransferItem, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if opts.Result != "" && !strings.EqualFold(rec.Result, opts.Result) {
			continue
		}
		if opts.Category != "" && !strings.EqualFold(rec.Category, opts.Category) {
			continue
		}
		at := rec.Time()
		if !opts.Since.IsZero() && at.Before(opts.Since) {
			continue
		}

		items = append(items, TransferItem{
			TransferID: rec.TransferID,
			Time:       at,
			Request:    rec.Request,
			Protocol:   rec.Protocol,
			Result:     rec.Result,
			StatusCode: rec.StatusCode,
			MessageID:  rec.MessageID,
			Bytes:      rec.BytesSent + rec.BytesReceived,
			DurationMs: rec.DurationMs,
		})
		if opts.Limit > 0 && len(items) == opts.Limit {
			break
		}
	}
	return items
}

// InspectTransfer returns the latest entry with transferID.
func (r *JournalReader) InspectTransfer(transferID string) (*InspectTransferResponse, error) {
	var rec *record.TransferRecord
	for _, candidate := range slices.Backward(r.records) {
		if candidate.TransferID == transferID {
			rec = candidate
			break
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("transfer %q not found", transferID)
	}

	return &InspectTransferResponse{
		TransferID:     rec.TransferID,
		Time:           rec.Time(),
		Endpoint:       rec.Endpoint,
		Request:        rec.Request,
		Protocol:       rec.Protocol,
		Result:         rec.Result,
		Category:       rec.Category,
		StatusCode:     rec.StatusCode,
		TransportCode:  rec.TransportCode,
		TransportError: rec.TransportError,
		MessageID:      rec.MessageID,
		FileTag:        rec.FileTag,
		BytesSent:      rec.BytesSent,
		BytesReceived:  rec.BytesReceived,
		DurationMs:     rec.DurationMs,
	}, nil
}

// Records returns the raw entries recorded at or after since, in journal
// order. A zero since returns every entry.
func (r *JournalReader) Records(since time.Time) []*record.TransferRecord {
	out := make([]*record.TransferRecord, 0, len(r.records))
	for _, rec := range r.records {
		if !since.IsZero() && rec.Time().Before(since) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// StatsHistory aggregates the journal.
func (r *JournalReader) StatsHistory() *HistoryStats {
	stats := &HistoryStats{
		ByResult: make(map[string]int),
		Skipped:  r.skipped,
	}

	var totalMs int64
	for _, rec := range r.records {
		stats.Total++
		stats.ByResult[rec.Result]++
		switch types.Category(rec.Category) {
		case types.CategoryOK:
			stats.OK++
		case types.CategoryTask:
			stats.Tasks++
		case types.CategoryTransport:
			stats.Transport++
		case types.CategoryProtocol:
			stats.Protocol++
		}
		stats.BytesSent += rec.BytesSent
		stats.BytesReceived += rec.BytesReceived
		totalMs += rec.DurationMs

		if at := rec.Time(); !at.IsZero() {
			if stats.FirstAt == nil || at.Before(*stats.FirstAt) {
				stats.FirstAt = &at
			}
			if stats.LastAt == nil || at.After(*stats.LastAt) {
				stats.LastAt = &at
			}
		}
	}
	if stats.Total > 0 {
		stats.AvgDurationMs = totalMs / int64(stats.Total)
	}
	return stats
}

// Verify JournalReader implements the Reader interface.
var _ Reader = (*JournalReader)(nil)

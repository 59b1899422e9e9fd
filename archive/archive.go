package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/optimeas/opticloud-device-mgmt-go/record"
)

// RecordKindTransfer marks archived transfer records.
const RecordKindTransfer = "transfer"

// unknownDay partitions records whose timestamp does not parse.
const unknownDay = "unknown"

// ErrNothingToArchive is returned by Export for an empty record set.
var ErrNothingToArchive = errors.New("no transfer records to archive")

// Archiver writes and reads transfer records in a Lode dataset.
type Archiver struct {
	dataset lode.Dataset
}

// New returns an Archiver over ds.
func New(ds lode.Dataset) *Archiver {
	return &Archiver{dataset: ds}
}

// ExportResult summarizes one export.
type ExportResult struct {
	Dataset    string         `json:"dataset" yaml:"dataset"`
	Records    int            `json:"records" yaml:"records"`
	Days       []string       `json:"days" yaml:"days"`
	Categories map[string]int `json:"categories" yaml:"categories"`
}

// archivedTransfer is the JSON line of one transfer.
type archivedTransfer struct {
	RecordKind     string `json:"record_kind"`
	Day            string `json:"day"`
	Category       string `json:"category"`
	RecordVersion  string `json:"record_version"`
	TransferID     string `json:"transfer_id"`
	Timestamp      string `json:"timestamp"`
	Endpoint       string `json:"endpoint,omitempty"`
	Request        string `json:"request"`
	Protocol       string `json:"protocol"`
	Result         string `json:"result"`
	StatusCode     int    `json:"status_code,omitempty"`
	TransportCode  int    `json:"transport_code"`
	TransportError string `json:"transport_error,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	FileTag        string `json:"file_tag,omitempty"`
	BytesSent      int64  `json:"bytes_sent"`
	BytesReceived  int64  `json:"bytes_received"`
	DurationMs     int64  `json:"duration_ms"`
}

func dayOf(rec *record.TransferRecord) string {
	at := rec.Time()
	if at.IsZero() {
		return unknownDay
	}
	return at.UTC().Format(time.DateOnly)
}

func categoryOf(rec *record.TransferRecord) string {
	if rec.Category == "" {
		return "pending"
	}
	return rec.Category
}

// toRecordMap builds the dataset row of rec. Partition keys are plain
// map entries so the Hive layout can place the row.
func toRecordMap(rec *record.TransferRecord) map[string]any {
	m := map[string]any{
		"record_kind":    RecordKindTransfer,
		"record_version": rec.RecordVersion,
		"transfer_id":    rec.TransferID,
		"timestamp":      rec.Timestamp,
		"request":        rec.Request,
		"protocol":       rec.Protocol,
		"result":         rec.Result,
		"transport_code": rec.TransportCode,
		"bytes_sent":     rec.BytesSent,
		"bytes_received": rec.BytesReceived,
		"duration_ms":    rec.DurationMs,
	}
	m[partitionDay] = dayOf(rec)
	m[partitionCategory] = categoryOf(rec)
	if rec.Endpoint != "" {
		m["endpoint"] = rec.Endpoint
	}
	if rec.StatusCode != 0 {
		m["status_code"] = rec.StatusCode
	}
	if rec.TransportError != "" {
		m["transport_error"] = rec.TransportError
	}
	if rec.MessageID != "" {
		m["message_id"] = rec.MessageID
	}
	if rec.FileTag != "" {
		m["file_tag"] = rec.FileTag
	}
	return m
}

// Export writes recs as one snapshot.
func (a *Archiver) Export(ctx context.Context, recs []*record.TransferRecord) (*ExportResult, error) {
	if len(recs) == 0 {
		return nil, ErrNothingToArchive
	}

	res := &ExportResult{
		Dataset:    string(a.dataset.ID()),
		Categories: make(map[string]int),
	}
	rows := make([]any, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, toRecordMap(rec))
		if day := dayOf(rec); !slices.Contains(res.Days, day) {
			res.Days = append(res.Days, day)
		}
		res.Categories[categoryOf(rec)]++
	}
	slices.Sort(res.Days)

	if _, err := a.dataset.Write(ctx, rows, lode.Metadata{}); err != nil {
		return nil, wrapError("write", res.Dataset, err)
	}
	res.Records = len(rows)
	return res, nil
}

// Filter narrows Records to one day or category. Empty fields match all.
type Filter struct {
	Day      string
	Category string
}

// Records reads every archived transfer matching f, oldest snapshot
// first. A transfer present in several snapshots is returned once.
func (a *Archiver) Records(ctx context.Context, f Filter) ([]*record.TransferRecord, error) {
	snapshots, err := a.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrapError("read", string(a.dataset.ID()), err)
	}

	seen := make(map[string]struct{})
	var out []*record.TransferRecord
	for _, snap := range snapshots {
		if !snapshotMatches(snap, partitionDay, f.Day) || !snapshotMatches(snap, partitionCategory, f.Category) {
			continue
		}

		data, err := a.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapError("read", fmt.Sprintf("%s/snapshot/%v", a.dataset.ID(), snap.ID), err)
		}
		for _, item := range data {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			at, err := fromRecordMap(row)
			if err != nil || at.RecordKind != RecordKindTransfer {
				continue
			}
			// Manifest paths are a coarse pre-filter; row fields decide.
			if (f.Day != "" && at.Day != f.Day) || (f.Category != "" && at.Category != f.Category) {
				continue
			}
			key := at.TransferID + "@" + at.Timestamp
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, at.transferRecord())
		}
	}
	return out, nil
}

func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	if snap.Manifest == nil {
		return false
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartition(f.Path, key, value) {
			return true
		}
	}
	return false
}

func fromRecordMap(row map[string]any) (*archivedTransfer, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var at archivedTransfer
	if err := json.Unmarshal(raw, &at); err != nil {
		return nil, err
	}
	return &at, nil
}

func (at *archivedTransfer) transferRecord() *record.TransferRecord {
	return &record.TransferRecord{
		Type:           record.TransferType,
		RecordVersion:  at.RecordVersion,
		TransferID:     at.TransferID,
		Timestamp:      at.Timestamp,
		Endpoint:       at.Endpoint,
		Request:        at.Request,
		Protocol:       at.Protocol,
		Result:         at.Result,
		Category:       at.Category,
		StatusCode:     at.StatusCode,
		TransportCode:  at.TransportCode,
		TransportError: at.TransportError,
		MessageID:      at.MessageID,
		FileTag:        at.FileTag,
		BytesSent:      at.BytesSent,
		BytesReceived:  at.BytesReceived,
		DurationMs:     at.DurationMs,
	}
}

package record

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/optimeas/opticloud-device-mgmt-go/entry"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// Frame type discriminants.
const (
	HeaderType   = "header"
	TransferType = "transfer"
)

// Header is the first frame of a journal.
type Header struct {
	Type          string `msgpack:"type"`
	RecordVersion string `msgpack:"record_version"`
	CreatedAt     string `msgpack:"created_at"`
}

// TransferRecord is the journal entry of one completed transfer.
type TransferRecord struct {
	Type           string `msgpack:"type"`
	RecordVersion  string `msgpack:"record_version"`
	TransferID     string `msgpack:"transfer_id"`
	Timestamp      string `msgpack:"timestamp"`
	Endpoint       string `msgpack:"endpoint,omitempty"`
	Request        string `msgpack:"request"`
	Protocol       string `msgpack:"protocol"`
	Result         string `msgpack:"result"`
	Category       string `msgpack:"category"`
	StatusCode     int    `msgpack:"status_code,omitempty"`
	TransportCode  int    `msgpack:"transport_code"`
	TransportError string `msgpack:"transport_error,omitempty"`
	MessageID      string `msgpack:"message_id,omitempty"`
	FileTag        string `msgpack:"file_tag,omitempty"`
	BytesSent      int64  `msgpack:"bytes_sent"`
	BytesReceived  int64  `msgpack:"bytes_received"`
	DurationMs     int64  `msgpack:"duration_ms"`
}

// FromTransfer builds the record of a completed transfer.
func FromTransfer(t *entry.Transfer, at time.Time) *TransferRecord {
	stats := t.Stats()
	rec := &TransferRecord{
		Type:          TransferType,
		RecordVersion: types.RecordVersion,
		TransferID:    t.ID(),
		Timestamp:     at.UTC().Format(time.RFC3339Nano),
		Request:       t.RequestKind().String(),
		Protocol:      t.ProtocolVersion().Wire(),
		Result:        t.Result().String(),
		Category:      string(t.Result().Category()),
		StatusCode:    t.HTTPStatus(),
		TransportCode: int(t.TransportCode()),
		MessageID:     t.MessageID(),
		FileTag:       t.ReturnFileTag(),
		BytesSent:     stats.BytesSent,
		BytesReceived: stats.BytesReceived,
		DurationMs:    stats.Duration.Milliseconds(),
	}
	if p := t.ConnectionParameters(); p != nil {
		rec.Endpoint = p.URL
	}
	if err := t.Err(); err != nil && t.Result() == types.ResultCurlError {
		rec.TransportError = err.Error()
	}
	return rec
}

// Time parses the record timestamp. It returns the zero time when the
// timestamp is malformed.
func (r *TransferRecord) Time() time.Time {
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// frameTypePeek is used to peek at the type field without full decode.
type frameTypePeek struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload and returns either a *Header or a
// *TransferRecord, discriminated by the type field.
func DecodeFrame(payload []byte) (any, error) {
	var peek frameTypePeek
	if err := msgpack.Unmarshal(payload, &peek); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	switch peek.Type {
	case HeaderType:
		var h Header
		if err := msgpack.Unmarshal(payload, &h); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode header", Err: err}
		}
		return &h, nil
	case TransferType:
		var rec TransferRecord
		if err := msgpack.Unmarshal(payload, &rec); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode transfer record", Err: err}
		}
		return &rec, nil
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "unknown frame type " + peek.Type,
		}
	}
}

func encodePayload(v any) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode frame", Err: err}
	}
	return EncodeFrame(payload)
}

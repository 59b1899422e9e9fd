// Package record implements the transfer journal: an append-only file of
// length-prefixed msgpack frames, one per completed transfer.
//
// A frame is a 4-byte big-endian payload length followed by the payload.
// Every payload carries a "type" discriminant and the first frame of a
// journal is a header.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame limits. MaxFrameSize includes the length prefix.
const (
	LengthPrefixSize = 4
	MaxFrameSize     = 1 << 20
	MaxPayloadSize   = MaxFrameSize - LengthPrefixSize
)

// FrameErrorKind classifies a frame failure.
type FrameErrorKind int

const (
	// FrameErrorPartial is a frame cut short, usually by a crash mid-append.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge is a length prefix beyond MaxPayloadSize.
	FrameErrorTooLarge
	// FrameErrorDecode is a complete frame whose payload is not a record.
	FrameErrorDecode
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too large"
	case FrameErrorDecode:
		return "decode"
	}
	return fmt.Sprintf("FrameErrorKind(%d)", int(k))
}

// FrameError describes a frame that could not be read or written.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFatal reports whether reading cannot continue. A bad payload is
// skippable because its length prefix still points at the next frame.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorDecode
}

// IsFatalFrameError reports whether err is a fatal *FrameError.
func IsFatalFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.IsFatal()
}

func tooLarge(n int) *FrameError {
	return &FrameError{
		Kind: FrameErrorTooLarge,
		Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", n, MaxPayloadSize),
	}
}

// FrameDecoder splits a stream into frame payloads.
type FrameDecoder struct {
	r io.Reader
}

// NewFrameDecoder reads frames from r.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r}
}

// ReadFrame returns the next payload. A clean end of stream is io.EOF;
// anything cut short is a fatal FrameErrorPartial.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "truncated length prefix", Err: err}
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxPayloadSize {
		return nil, tooLarge(int(n))
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "truncated payload", Err: err}
	}
	return payload, nil
}

// EncodeFrame returns payload behind its length prefix.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, tooLarge(len(payload))
	}
	buf := make([]byte, 0, LengthPrefixSize+len(payload))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...), nil
}

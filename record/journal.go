package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/iox"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// ErrJournalClosed is returned by Append after Close.
var ErrJournalClosed = errors.New("journal closed")

// Journal appends transfer records to a file. Safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// OpenJournal opens path for appending, creating it and its directory when
// missing. A new file starts with a header frame.
func OpenJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		iox.DiscardClose(f)
		return nil, fmt.Errorf("stat journal: %w", err)
	}

	j := &Journal{f: f, path: path}
	if info.Size() == 0 {
		header := &Header{
			Type:          HeaderType,
			RecordVersion: types.RecordVersion,
			CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		}
		if err := j.write(header); err != nil {
			iox.DiscardClose(f)
			return nil, err
		}
	}
	return j, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append writes rec as one frame.
func (j *Journal) Append(rec *TransferRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	return j.write(rec)
}

func (j *Journal) write(v any) error {
	frame, err := encodePayload(v)
	if err != nil {
		return err
	}
	if _, err := j.f.Write(frame); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Close syncs and closes the file. Safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return errors.Join(j.f.Sync(), j.f.Close())
}

// ReadResult is the content of a journal.
type ReadResult struct {
	Header  *Header
	Records []*TransferRecord
	// Skipped counts frames that could not be decoded.
	Skipped int
}

// Read decodes every frame of r. Undecodable frames are skipped and
// counted. A fatal frame error, typically a truncated final frame, ends
// reading; the records read so far are returned with the error.
func Read(r io.Reader) (*ReadResult, error) {
	dec := NewFrameDecoder(r)
	res := &ReadResult{}

	for {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, err
		}

		v, err := DecodeFrame(payload)
		if err != nil {
			res.Skipped++
			continue
		}
		switch f := v.(type) {
		case *Header:
			if res.Header == nil {
				res.Header = f
			}
		case *TransferRecord:
			res.Records = append(res.Records, f)
		}
	}
}

// ReadFile reads the journal at path.
func ReadFile(path string) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer iox.DiscardClose(f)
	return Read(f)
}

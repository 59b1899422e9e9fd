// Package entry implements one request/response exchange ("entry
// transfer") of the device-to-cloud polling protocol.
//
// A Transfer is configured, built into a transport.Request by Prepare,
// submitted once, and classified into a types.TransferResult when the
// transport reports completion. Completion is one-shot: Done is closed and
// the OnComplete callback runs exactly once per submission.
//
// A Transfer is not safe for concurrent use. Its results may be read from
// any goroutine once Done is closed.
package entry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optimeas/opticloud-device-mgmt-go/log"
	"github.com/optimeas/opticloud-device-mgmt-go/transport"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// StatusPath is the service endpoint used when the base URL has no path.
const StatusPath = "status.php"

// Submitter starts a request and reports its completion exactly once.
// *transport.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, req *transport.Request, onComplete func(*transport.Completion)) (*transport.Handle, error)
}

// Option configures a Transfer.
type Option func(*Transfer)

// WithLogger sets the base logger. Transfer identity fields are added.
func WithLogger(l *log.Logger) Option {
	return func(t *Transfer) { t.baseLogger = l }
}

// WithClock overrides the wall clock used for the T query parameter.
func WithClock(now func() time.Time) Option {
	return func(t *Transfer) { t.now = now }
}

// WithID sets the transfer ID instead of a random UUID.
func WithID(id string) Option {
	return func(t *Transfer) { t.id = id }
}

// Transfer is one entry transfer.
type Transfer struct {
	id         string
	baseLogger *log.Logger
	now        func() time.Time

	params  *ConnectionParameters
	version types.ProtocolVersion
	kind    types.RequestKind
	upload  Upload
	output  string

	messageID string
	fileTag   string

	callback  func(*Transfer)
	submitted bool
	once      *sync.Once
	done      chan struct{}

	result     types.TransferResult
	httpStatus int
	code       transport.ErrorCode
	err        error
	stats      transport.Stats
	body       []byte
}

// New creates a transfer using params. Defaults: protocol v4, request
// PING, no upload content.
func New(params *ConnectionParameters, opts ...Option) *Transfer {
	t := &Transfer{
		baseLogger: log.Nop(),
		now:        time.Now,
		params:     params,
		version:    types.ProtocolV4,
		kind:       types.RequestPing,
		code:       transport.CodeUnknown,
		once:       new(sync.Once),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.id == "" {
		t.id = uuid.NewString()
	}
	return t
}

func (t *Transfer) logger() *log.Logger {
	return t.baseLogger.ForTransfer(t.id, t.kind, t.version)
}

// ID returns the transfer ID used in logs and records.
func (t *Transfer) ID() string { return t.id }

// ConnectionParameters returns the shared parameters.
func (t *Transfer) ConnectionParameters() *ConnectionParameters { return t.params }

// SetConnectionParameters swaps the shared parameters for later builds.
func (t *Transfer) SetConnectionParameters(p *ConnectionParameters) { t.params = p }

// ProtocolVersion returns the protocol generation.
func (t *Transfer) ProtocolVersion() types.ProtocolVersion { return t.version }

// SetProtocolVersion selects the protocol generation.
func (t *Transfer) SetProtocolVersion(v types.ProtocolVersion) { t.version = v }

// RequestKind returns the request kind.
func (t *Transfer) RequestKind() types.RequestKind { return t.kind }

// SetRequestKind selects the request kind.
func (t *Transfer) SetRequestKind(k types.RequestKind) { t.kind = k }

// SetUploadFile sources the upload from a file, replacing any in-memory
// content.
func (t *Transfer) SetUploadFile(path string) {
	t.upload = FileUpload{Path: path}
}

// SetUploadData sources the upload from memory, replacing any file.
// size is the number of bytes of data to send, or SizeNullTerminated.
// An empty filename selects DefaultUploadFilename.
func (t *Transfer) SetUploadData(data []byte, size int, filename string) {
	t.upload = MemoryUpload{Data: data, Size: size, Name: filename}
}

// Upload returns the active upload source, or nil when none was set.
func (t *Transfer) Upload() Upload { return t.upload }

// UploadFileName returns the upload file path, or "" for in-memory content.
func (t *Transfer) UploadFileName() string {
	if f, ok := t.upload.(FileUpload); ok {
		return f.Path
	}
	return ""
}

// SetOutputFile writes the response body to path instead of memory.
func (t *Transfer) SetOutputFile(path string) { t.output = path }

// OutputFile returns the response destination path.
func (t *Transfer) OutputFile() string { return t.output }

// MessageID returns the correlation token. After completion it holds the
// token returned by the server, or "".
func (t *Transfer) MessageID() string { return t.messageID }

// SetMessageID sets the correlation token sent with the next Prepare.
// Prepare consumes it.
func (t *Transfer) SetMessageID(id string) { t.messageID = id }

// ReturnFileTag returns the file tag. After completion it holds the tag
// returned by the server, or "".
func (t *Transfer) ReturnFileTag() string { return t.fileTag }

// SetReturnFileTag sets the file tag sent with the next RETURN_FILE
// Prepare. Prepare consumes it.
func (t *Transfer) SetReturnFileTag(tag string) { t.fileTag = tag }

// OnComplete registers fn to run once when the transfer completes. fn runs
// on the transport goroutine and must not block.
func (t *Transfer) OnComplete(fn func(*Transfer)) { t.callback = fn }

// Start builds the request and submits it. Configuration errors are
// returned before anything is submitted; every other failure is reported
// through the result.
func (t *Transfer) Start(ctx context.Context, s Submitter) (*transport.Handle, error) {
	if t.submitted {
		return nil, ErrAlreadySubmitted
	}

	req, err := t.Prepare()
	if err != nil {
		return nil, err
	}

	t.submitted = true
	t.result = types.ResultRunning
	h, err := s.Submit(ctx, req, t.complete)
	if err != nil {
		t.submitted = false
		t.result = types.ResultNone
		return nil, err
	}
	return h, nil
}

// Done is closed once the result is final and the callback returned.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Wait blocks until completion or until ctx ends.
func (t *Transfer) Wait(ctx context.Context) (types.TransferResult, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return types.ResultNone, ctx.Err()
	}
}

// Reset prepares a completed transfer for another exchange. Connection
// parameters, protocol, request kind, upload and output are kept; results
// are cleared.
func (t *Transfer) Reset() {
	t.submitted = false
	t.once = new(sync.Once)
	t.done = make(chan struct{})
	t.result = types.ResultNone
	t.httpStatus = 0
	t.code = transport.CodeUnknown
	t.err = nil
	t.stats = transport.Stats{}
	t.body = nil
}

// Result returns the transfer result.
func (t *Transfer) Result() types.TransferResult { return t.result }

// HTTPStatus returns the response status code, or 0 when no response was
// classified.
func (t *Transfer) HTTPStatus() int { return t.httpStatus }

// TransportCode returns the transport error code. Meaningful when Result is
// ResultCurlError.
func (t *Transfer) TransportCode() transport.ErrorCode { return t.code }

// Err returns the underlying transport error, if any.
func (t *Transfer) Err() error { return t.err }

// ResponseData returns the response body when no output file was set.
func (t *Transfer) ResponseData() []byte { return t.body }

// TransferredBytes returns the bytes moved in both directions.
func (t *Transfer) TransferredBytes() int64 { return t.stats.TransferredBytes() }

// TransferDuration returns the exchange duration.
func (t *Transfer) TransferDuration() time.Duration { return t.stats.Duration }

// TransferSpeed returns the average throughput in bytes per second.
func (t *Transfer) TransferSpeed() uint64 { return t.stats.Speed() }

// Stats returns the raw transport counters.
func (t *Transfer) Stats() transport.Stats { return t.stats }

// complete is the transport completion hook. It classifies c and fires
// the one-shot completion; later calls are ignored.
func (t *Transfer) complete(c *transport.Completion) {
	t.once.Do(func() {
		cl := Classify(c)

		t.result = cl.Result
		t.httpStatus = cl.StatusCode
		t.code = cl.Code
		t.messageID = cl.MessageID
		t.fileTag = cl.FileTag
		if c != nil {
			t.err = c.Err
			t.stats = c.Stats
			t.body = c.Body
		}

		fields := map[string]any{
			"result":      t.result.String(),
			"status_code": t.httpStatus,
			"bytes":       t.stats.TransferredBytes(),
			"duration_ms": t.stats.Duration.Milliseconds(),
		}
		if t.messageID != "" {
			fields["message_id"] = t.messageID
		}
		switch t.result.Category() {
		case types.CategoryTransport:
			fields["code"] = int(t.code)
			if t.err != nil {
				fields["error"] = t.err.Error()
			}
			t.logger().Warn("transfer failed", fields)
		case types.CategoryProtocol:
			t.logger().Warn("unknown response", fields)
		default:
			t.logger().Info("transfer completed", fields)
		}

		if t.callback != nil {
			t.callback(t)
		}
		close(t.done)
	})
}

package transport

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/iox"
)

// Request describes one outbound exchange. It is built by the caller and
// read by Client.Submit; the client never modifies it.
type Request struct {
	// URL is the complete request URL including the query string.
	URL string
	// Header holds request headers. A "Host" entry overrides the
	// request host.
	Header http.Header
	// FollowRedirects follows 3xx responses up to MaxRedirects.
	FollowRedirects bool
	// ProgressTimeout aborts the exchange when no byte moves in either
	// direction for this long. Zero disables the check.
	ProgressTimeout time.Duration
	// VerifyTLS verifies the server certificate chain and host name.
	VerifyTLS bool
	// ReuseConnection keeps the connection alive for later requests.
	ReuseConnection bool
	// OutputPath, when set, receives the response body instead of memory.
	OutputPath string
	// Form is the multipart/form-data body. A nil form sends no body.
	Form *Form
}

// NewRequest returns a request for rawURL with an empty header set,
// TLS verification and connection reuse enabled.
func NewRequest(rawURL string) *Request {
	return &Request{
		URL:             rawURL,
		Header:          make(http.Header),
		VerifyTLS:       true,
		ReuseConnection: true,
	}
}

// SetHeader sets a request header, replacing existing values.
func (r *Request) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
}

// Part is one entry of a multipart form. Content comes either from a file
// on disk or from memory.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	// Path is the source file; empty for in-memory parts.
	Path string
	// Data is the in-memory content; ignored when Path is set.
	Data []byte
}

// Form is a multipart/form-data container. Files are opened when the body
// is produced, so a missing file surfaces as a read error at submit time.
type Form struct {
	parts    []Part
	boundary string
}

// NewForm returns an empty form with a random boundary.
func NewForm() *Form {
	return &Form{boundary: multipart.NewWriter(io.Discard).Boundary()}
}

// AddFile appends a part whose content is read from path. The part
// filename is the base name of path.
func (f *Form) AddFile(name, path, contentType string) {
	f.parts = append(f.parts, Part{
		Name:        name,
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Path:        path,
	})
}

// AddData appends an in-memory part.
func (f *Form) AddData(name, filename string, data []byte, contentType string) {
	f.parts = append(f.parts, Part{
		Name:        name,
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
}

// Parts returns a copy of the form parts.
func (f *Form) Parts() []Part {
	out := make([]Part, len(f.parts))
	copy(out, f.parts)
	return out
}

// Boundary returns the multipart boundary.
func (f *Form) Boundary() string { return f.boundary }

// ContentType returns the Content-Type header value for the form body.
func (f *Form) ContentType() string {
	return "multipart/form-data; boundary=" + f.boundary
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func partHeader(p Part) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(p.Name))
	if p.Filename != "" {
		disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(p.Filename))
	}
	h.Set("Content-Disposition", disposition)
	if p.ContentType != "" {
		h.Set("Content-Type", p.ContentType)
	}
	return h
}

// Open produces the encoded body and its exact length. File parts are
// opened here; the caller must close the returned body.
func (f *Form) Open() (body io.ReadCloser, length int64, err error) {
	var (
		readers []io.Reader
		closers []io.Closer
		frame   bytes.Buffer
	)
	fail := func(err error) (io.ReadCloser, int64, error) {
		for _, c := range closers {
			iox.DiscardClose(c)
		}
		return nil, 0, err
	}

	w := multipart.NewWriter(&frame)
	if err := w.SetBoundary(f.boundary); err != nil {
		return nil, 0, err
	}

	// The writer only emits boundaries and part headers into frame;
	// contents are spliced in between so files are streamed, not copied.
	for _, p := range f.parts {
		if _, err := w.CreatePart(partHeader(p)); err != nil {
			return fail(err)
		}
		readers = append(readers, bytes.NewReader(bytes.Clone(frame.Bytes())))
		length += int64(frame.Len())
		frame.Reset()

		if p.Path == "" {
			readers = append(readers, bytes.NewReader(p.Data))
			length += int64(len(p.Data))
			continue
		}

		file, err := os.Open(p.Path)
		if err != nil {
			return fail(readFileError(fmt.Errorf("open upload file: %w", err)))
		}
		closers = append(closers, file)
		info, err := file.Stat()
		if err != nil {
			return fail(readFileError(fmt.Errorf("stat upload file: %w", err)))
		}
		readers = append(readers, &fileReader{f: file})
		length += info.Size()
	}

	if err := w.Close(); err != nil {
		return fail(err)
	}
	readers = append(readers, bytes.NewReader(bytes.Clone(frame.Bytes())))
	length += int64(frame.Len())

	return iox.NewMultiReadCloser(readers, closers), length, nil
}

// fileReader tags read failures on upload files.
type fileReader struct {
	f *os.File
}

func (r *fileReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil && err != io.EOF {
		err = readFileError(err)
	}
	return n, err
}

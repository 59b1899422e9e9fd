package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ErrorCode is the transport-level result of a completed exchange. The
// numbering follows libcurl's CURLcode so that device logs and fleet
// dashboards keep their meaning.
type ErrorCode int

// Transport error codes.
const (
	CodeOK                     ErrorCode = 0
	CodeUnsupportedProtocol    ErrorCode = 1
	CodeMalformedURL           ErrorCode = 3
	CodeCouldntResolveHost     ErrorCode = 6
	CodeCouldntConnect         ErrorCode = 7
	CodeWriteError             ErrorCode = 23
	CodeReadError              ErrorCode = 26
	CodeOperationTimedOut      ErrorCode = 28
	CodeSSLConnectError        ErrorCode = 35
	CodeTooManyRedirects       ErrorCode = 47
	CodeSendError              ErrorCode = 55
	CodeRecvError              ErrorCode = 56
	CodePeerFailedVerification ErrorCode = 60

	// CodeUnknown marks a failure that maps to no other code.
	CodeUnknown ErrorCode = -1
)

var codeNames = map[ErrorCode]string{
	CodeOK:                     "ok",
	CodeUnsupportedProtocol:    "unsupported protocol",
	CodeMalformedURL:           "malformed URL",
	CodeCouldntResolveHost:     "could not resolve host",
	CodeCouldntConnect:         "could not connect",
	CodeWriteError:             "write error",
	CodeReadError:              "read error",
	CodeOperationTimedOut:      "operation timed out",
	CodeSSLConnectError:        "TLS connect error",
	CodeTooManyRedirects:       "too many redirects",
	CodeSendError:              "send error",
	CodeRecvError:              "receive error",
	CodePeerFailedVerification: "peer certificate verification failed",
	CodeUnknown:                "unknown transport error",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("transport error %d", int(c))
}

// OK reports whether c is CodeOK.
func (c ErrorCode) OK() bool { return c == CodeOK }

// ErrTooManyRedirects is returned when a redirect chain exceeds MaxRedirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// fileError marks failures on local files so that upload sources map to
// CodeReadError and output destinations to CodeWriteError.
type fileError struct {
	code ErrorCode
	err  error
}

func (e *fileError) Error() string { return e.err.Error() }
func (e *fileError) Unwrap() error { return e.err }

func readFileError(err error) error  { return &fileError{code: CodeReadError, err: err} }
func writeFileError(err error) error { return &fileError{code: CodeWriteError, err: err} }

// CodeFromError maps an exchange error onto an ErrorCode. nil maps to
// CodeOK.
func CodeFromError(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}

	var fe *fileError
	if errors.As(err, &fe) {
		return fe.code
	}
	var mu *malformedURLError
	if errors.As(err, &mu) {
		return CodeMalformedURL
	}
	if errors.Is(err, ErrTooManyRedirects) {
		return CodeTooManyRedirects
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeCouldntResolveHost
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		verifyErr        *tls.CertificateVerificationError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCert) || errors.As(err, &verifyErr) {
		return CodePeerFailedVerification
	}

	var (
		recordErr tls.RecordHeaderError
		alertErr  tls.AlertError
	)
	if errors.As(err, &recordErr) || errors.As(err, &alertErr) {
		return CodeSSLConnectError
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return CodeCouldntConnect
		case "write":
			return CodeSendError
		case "read":
			return CodeRecvError
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeOperationTimedOut
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return CodeRecvError
	}

	if strings.Contains(err.Error(), "unsupported protocol scheme") {
		return CodeUnsupportedProtocol
	}

	return CodeUnknown
}

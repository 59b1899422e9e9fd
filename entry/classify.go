package entry

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/optimeas/opticloud-device-mgmt-go/transport"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

var (
	messageIDPattern = regexp.MustCompile(`(?i)Message-ID: *([-+]?[0-9]+)`)
	fileTagPattern   = regexp.MustCompile(`(?i)File-Tag: *([^,\s]+)`)
)

// Classification is the protocol reading of a completed exchange.
type Classification struct {
	Result types.TransferResult
	// StatusCode is set when the response was classified by status.
	StatusCode int
	// Code is the transport error code; CodeUnknown when the exchange
	// did not run to completion.
	Code transport.ErrorCode
	// MessageID is the correlation token of a 200 response, or "".
	MessageID string
	// FileTag is the file tag of a 200 response, or "".
	FileTag string
}

// Classify maps a transport completion onto a transfer result. It has no
// side effects and returns the same classification for the same input.
func Classify(c *transport.Completion) Classification {
	cl := Classification{Code: transport.CodeUnknown}
	if c == nil {
		cl.Result = types.ResultUnknownError
		return cl
	}

	switch c.Outcome {
	case transport.OutcomeDone:
	case transport.OutcomeCanceled:
		cl.Result = types.ResultAsyncCanceled
		return cl
	case transport.OutcomeTimeout:
		cl.Result = types.ResultAsyncTimeout
		return cl
	default:
		// None, Running or an unknown marker: the engine reported
		// completion without finishing.
		cl.Result = types.ResultUnknownError
		return cl
	}

	cl.Code = c.Code
	if !c.Code.OK() {
		cl.Result = types.ResultCurlError
		return cl
	}

	cl.StatusCode = c.StatusCode
	switch c.StatusCode {
	case http.StatusNoContent:
		cl.Result = types.ResultReturnOK
	case http.StatusOK:
		if task, ok := types.TaskForContentType(c.ResponseHeader("Content-Type")); ok {
			cl.Result = task
		} else {
			cl.Result = types.ResultUnknownResponse
		}
		desc := c.ResponseHeader("Content-Description")
		cl.MessageID = ParseMessageID(desc)
		cl.FileTag = ParseFileTag(desc)
	default:
		cl.Result = types.ResultUnknownResponse
	}
	return cl
}

// ParseMessageID extracts the signed integer after "Message-ID:" from a
// Content-Description value. It returns "" when there is none. A leading
// '+' and leading zeros are dropped.
func ParseMessageID(contentDescription string) string {
	if contentDescription == "" {
		return ""
	}
	m := messageIDPattern.FindStringSubmatch(contentDescription)
	if len(m) != 2 {
		return ""
	}

	token := m[1]
	sign := ""
	switch token[0] {
	case '-':
		sign, token = "-", token[1:]
	case '+':
		token = token[1:]
	}
	token = strings.TrimLeft(token, "0")
	if token == "" {
		return "0"
	}
	return sign + token
}

// ParseFileTag extracts the value after "File-Tag:" from a
// Content-Description value, or "".
func ParseFileTag(contentDescription string) string {
	m := fileTagPattern.FindStringSubmatch(contentDescription)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}

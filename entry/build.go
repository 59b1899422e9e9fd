package entry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/optimeas/opticloud-device-mgmt-go/transport"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
	"github.com/optimeas/opticloud-device-mgmt-go/urlutil"
)

// Wire header values.
const (
	headerCacheControl       = "Cache-Control"
	headerPragma             = "Pragma"
	headerHost               = "Host"
	headerContentDescription = "Content-Description"

	cacheControlNoStore = "no-cache, no-store" // HTTP/1.1
	pragmaNoCache       = "no-cache"           // HTTP/1.0

	// UploadPartName is the form field carrying the upload.
	UploadPartName = "data"
)

// Prepare builds the outbound request from the current configuration.
//
// Prepare consumes the correlation token and, for RETURN_FILE, the file
// tag: both are cleared once written into the Content-Description header,
// so a second Prepare without setting them again omits the header.
//
// Errors wrap ErrInvalidConfiguration and are returned before any network
// activity.
func (t *Transfer) Prepare() (*transport.Request, error) {
	logger := t.logger()
	params := t.params

	if params == nil {
		err := &ConfigError{Field: "connection", Msg: "connection parameters are not set"}
		logger.Error(err.Msg, nil)
		return nil, err
	}

	base, ok := urlutil.ReplacePath(params.URL, StatusPath, false)
	if !ok {
		err := &ConfigError{Field: "url", Msg: "bad url"}
		logger.Error(err.Msg, map[string]any{"url": params.URL})
		return nil, err
	}
	// The query grammar owns the whole query string.
	if strings.Contains(base, "?") {
		err := &ConfigError{Field: "url", Msg: "url must not carry a query"}
		logger.Error(err.Msg, map[string]any{"url": base})
		return nil, err
	}

	if params.AccessToken == "" {
		err := &ConfigError{Field: "access_token", Msg: "accessToken is empty"}
		logger.Error(err.Msg, nil)
		return nil, err
	}

	if !t.version.Valid() || !t.kind.Valid() {
		err := &ConfigError{Field: "request", Msg: fmt.Sprintf("invalid request %v/%v", t.kind, t.version)}
		logger.Error(err.Msg, nil)
		return nil, err
	}
	if !t.version.Supports(t.kind) {
		err := &ConfigError{
			Field: "request",
			Msg:   fmt.Sprintf("request %s requires protocol %s or later", t.kind, t.kind.Since().Wire()),
		}
		logger.Error(err.Msg, map[string]any{"protocol": t.version.Wire()})
		return nil, err
	}

	req := transport.NewRequest(base + queryString(t.kind, params.AccessToken, t.version, t.now().Unix()))
	req.FollowRedirects = true
	req.ProgressTimeout = params.ProgressTimeout
	req.VerifyTLS = params.VerifyTLS
	req.ReuseConnection = params.ReuseConnection
	req.OutputPath = t.output

	req.SetHeader(headerCacheControl, cacheControlNoStore)
	req.SetHeader(headerPragma, pragmaNoCache)
	if params.HostAlias != "" {
		req.SetHeader(headerHost, params.HostAlias)
	}

	if desc, ok := t.consumeCorrelation(); ok {
		req.SetHeader(headerContentDescription, desc)
	}

	req.Form = t.buildForm()

	logger.Debug("transfer prepared", map[string]any{
		"url":    base,
		"upload": t.uploadDescription(),
	})
	return req, nil
}

// queryString renders the fixed query grammar. Values are written verbatim.
func queryString(kind types.RequestKind, accessToken string, version types.ProtocolVersion, unix int64) string {
	return "?F=" + kind.Wire() +
		"&ID=" + accessToken +
		"&P=" + version.Wire() +
		"&T=" + strconv.FormatInt(unix, 10)
}

// consumeCorrelation renders the Content-Description header and clears the
// consumed fields. Tokens that are not positive integers are not sent.
func (t *Transfer) consumeCorrelation() (string, bool) {
	if t.messageID == "" {
		return "", false
	}

	token, ok := positiveInteger(t.messageID)
	if !ok {
		t.logger().Warn("message id is not a positive integer, not sent", map[string]any{
			"message_id": t.messageID,
		})
		t.messageID = ""
		t.fileTag = ""
		return "", false
	}

	desc := "Message-ID: " + token
	t.messageID = ""

	if t.kind == types.RequestReturnFile && t.fileTag != "" {
		desc += ", File-Tag: " + t.fileTag
		t.fileTag = ""
	}
	return desc, true
}

// positiveInteger normalizes a decimal integer token of any width and
// reports whether it is greater than zero.
func positiveInteger(s string) (string, bool) {
	digits := strings.TrimPrefix(s, "+")
	if digits == "" {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "", false
	}
	return digits, true
}

// buildForm creates a fresh form with the single upload part.
func (t *Transfer) buildForm() *transport.Form {
	form := transport.NewForm()

	switch u := t.upload.(type) {
	case FileUpload:
		form.AddFile(UploadPartName, u.Path, MimeType(u.Path))
	case MemoryUpload:
		form.AddData(UploadPartName, u.Filename(), u.Content(), MimeType(u.Filename()))
	default:
		form.AddData(UploadPartName, DefaultUploadFilename, nil, MimeType(DefaultUploadFilename))
	}
	return form
}

func (t *Transfer) uploadDescription() string {
	switch u := t.upload.(type) {
	case FileUpload:
		return "file:" + u.Path
	case MemoryUpload:
		return fmt.Sprintf("memory:%s (%d bytes)", u.Filename(), len(u.Content()))
	default:
		return "none"
	}
}

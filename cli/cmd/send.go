package cmd

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/urfave/cli/v2"

	"github.com/optimeas/opticloud-device-mgmt-go/cli/render"
	"github.com/optimeas/opticloud-device-mgmt-go/entry"
	"github.com/optimeas/opticloud-device-mgmt-go/iox"
	"github.com/optimeas/opticloud-device-mgmt-go/transport"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// Exit codes for send.
const (
	exitSuccess        = 0
	exitConfigError    = 1
	exitTransportError = 2
	exitProtocolError  = 3
)

// SendCommand returns the send command.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Perform one entry transfer against the cloud service",
		Flags: joinFlags(
			[]cli.Flag{ConfigFlag},
			ConnectionFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:  "request",
					Usage: "Request kind: PING, ATTENTION, UPLOAD, RETURN_LIST, RETURN_FILE, ...",
					Value: "PING",
				},
				&cli.StringFlag{
					Name:  "upload-file",
					Usage: "Upload this file as the data part",
				},
				&cli.StringFlag{
					Name:  "data",
					Usage: "Upload this string as the data part",
				},
				&cli.StringFlag{
					Name:  "data-filename",
					Usage: "Filename announced for --data",
				},
				&cli.StringFlag{
					Name:  "message-id",
					Usage: "Message-ID of the task being answered",
				},
				&cli.StringFlag{
					Name:  "file-tag",
					Usage: "File-Tag to return with a file response",
				},
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Write the response body to this file",
				},
				&cli.BoolFlag{
					Name:  "quiet",
					Usage: "Suppress the transfer report",
				},
				FormatFlag,
				NoColorFlag,
				RecordFlag,
			},
			AdapterFlags(),
			LogFlags(),
		),
		Action: sendAction,
	}
}

// TransferReport is the rendered outcome of one send.
type TransferReport struct {
	TransferID     string        `json:"transfer_id" yaml:"transfer_id"`
	Request        string        `json:"request" yaml:"request"`
	Protocol       string        `json:"protocol" yaml:"protocol"`
	Result         string        `json:"result" yaml:"result"`
	Category       string        `json:"category" yaml:"category"`
	StatusCode     int           `json:"status_code" yaml:"status_code"`
	TransportCode  int           `json:"transport_code" yaml:"transport_code"`
	TransportError string        `json:"transport_error,omitempty" yaml:"transport_error,omitempty"`
	MessageID      string        `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	FileTag        string        `json:"file_tag,omitempty" yaml:"file_tag,omitempty"`
	BytesSent      int64         `json:"bytes_sent" yaml:"bytes_sent"`
	BytesReceived  int64         `json:"bytes_received" yaml:"bytes_received"`
	Duration       time.Duration `json:"duration_ns" yaml:"duration"`
	Speed          uint64        `json:"speed_bps" yaml:"speed_bps"`
	Output         string        `json:"output,omitempty" yaml:"output,omitempty"`
	Response       string        `json:"response,omitempty" yaml:"response,omitempty"`
}

func newTransferReport(t *entry.Transfer) *TransferReport {
	stats := t.Stats()
	r := &TransferReport{
		TransferID:    t.ID(),
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
		Duration:      stats.Duration,
		Speed:         t.TransferSpeed(),
		Output:        t.OutputFile(),
	}
	if err := t.Err(); err != nil && t.Result() == types.ResultCurlError {
		r.TransportError = err.Error()
	}
	// Binary task payloads are left out; use --output to keep them.
	if body := t.ResponseData(); len(body) > 0 && utf8.Valid(body) {
		r.Response = string(body)
	}
	return r
}

// resultToExitCode maps a final result to the send exit code.
func resultToExitCode(result types.TransferResult) int {
	switch result.Category() {
	case types.CategoryOK, types.CategoryTask:
		return exitSuccess
	case types.CategoryProtocol:
		return exitProtocolError
	default:
		return exitTransportError
	}
}

func sendAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	params, version, err := resolveConnection(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --protocol: %v", err), exitConfigError)
	}
	kind, err := types.ParseRequestKind(c.String("request"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if c.IsSet("upload-file") && c.IsSet("data") {
		return cli.Exit("--upload-file and --data are mutually exclusive", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	logger, err := setupLogger(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer iox.DiscardErr(logger.Sync)

	sess, err := newSession(c, cfg, logger, params, version)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer sess.close()

	client := transport.New(transport.WithLogger(logger))
	defer iox.DiscardClose(client)

	t := entry.New(params, entry.WithLogger(logger))
	t.SetProtocolVersion(version)
	t.SetRequestKind(kind)
	switch {
	case c.IsSet("upload-file"):
		t.SetUploadFile(c.String("upload-file"))
	case c.IsSet("data"):
		data := []byte(c.String("data"))
		t.SetUploadData(data, len(data), c.String("data-filename"))
	}
	t.SetMessageID(c.String("message-id"))
	t.SetReturnFileTag(c.String("file-tag"))
	t.SetOutputFile(c.String("output"))

	ctx, cancel := signalContext()
	defer cancel()

	if err := sess.start(ctx, t, client); err != nil {
		if errors.Is(err, entry.ErrInvalidConfiguration) {
			return cli.Exit(err.Error(), exitConfigError)
		}
		return cli.Exit(err.Error(), exitTransportError)
	}

	// Cancellation completes the transfer as ASYNC_CANCELED, so Done
	// always closes.
	<-t.Done()
	sess.finish(t)

	if !c.Bool("quiet") {
		if err := r.Render(newTransferReport(t)); err != nil {
			return err
		}
	}

	return cli.Exit("", resultToExitCode(t.Result()))
}

// Command omcloud is the device-side client for the opticloud device
// management service.
//
//	omcloud send    --url https://cloud.example.com --token T --request PING
//	omcloud watch   --config omcloud.yaml --interval 30s
//	omcloud history stats --record journal.omj
//
// send and watch exit 0 on RETURN_OK or a task, 1 on a configuration
// error, 2 on a transport error and 3 on UNKNOWN_RESPONSE.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/optimeas/opticloud-device-mgmt-go/cli/cmd"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// commit is set with -ldflags "-X main.commit=...".
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:    "omcloud",
		Usage:   "Device-side client for the opticloud device management service",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: func(_ *cli.Context, err error) {
			if err != nil {
				os.Exit(report(os.Stderr, err))
			}
		},
		Commands: []*cli.Command{
			cmd.SendCommand(),
			cmd.WatchCommand(),
			cmd.HistoryCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report prints err to w unless it only carries an exit status, and returns
// the process exit code. Errors without a code exit 1.
func report(w io.Writer, err error) int {
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 1
	}

	code := ec.ExitCode()
	if msg := ec.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
		fmt.Fprintln(w, msg)
	}
	return code
}

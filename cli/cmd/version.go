package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/optimeas/opticloud-device-mgmt-go/cli/render"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// VersionResponse describes the build and the protocol it speaks.
type VersionResponse struct {
	Version       string   `json:"version" yaml:"version"`
	Commit        string   `json:"commit" yaml:"commit"`
	Protocol      string   `json:"protocol" yaml:"protocol"`
	Protocols     []string `json:"protocols" yaml:"protocols"`
	RecordVersion string   `json:"record_version" yaml:"record_version"`
	UserAgent     string   `json:"user_agent" yaml:"user_agent"`
	Requests      []string `json:"requests" yaml:"requests"`
}

// VersionCommand prints build information without contacting the cloud.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitConfigError)
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}

		resp := VersionResponse{
			Version:       types.Version,
			Commit:        commit,
			Protocol:      types.LatestProtocol.Wire(),
			RecordVersion: types.RecordVersion,
			UserAgent:     types.UserAgent(),
		}
		for v := types.ProtocolV4; v <= types.LatestProtocol; v++ {
			resp.Protocols = append(resp.Protocols, v.Wire())
		}
		for _, k := range types.RequestKinds() {
			if types.LatestProtocol.Supports(k) {
				resp.Requests = append(resp.Requests, k.String())
			}
		}

		return r.Render(resp)
	}
}

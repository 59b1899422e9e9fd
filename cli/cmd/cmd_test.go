package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestTUIReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := TUIReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("TUIReadOnlyFlags should include --tui flag")
	}
}

func TestCommands_FlagNamesUnique(t *testing.T) {
	var all []*cli.Command
	all = append(all, SendCommand(), WatchCommand(), VersionCommand("test"))
	all = append(all, HistoryCommand().Subcommands...)

	for _, cmd := range all {
		t.Run(cmd.Name, func(t *testing.T) {
			seen := make(map[string]bool)
			for _, f := range cmd.Flags {
				for _, name := range f.Names() {
					if seen[name] {
						t.Errorf("flag name %q defined twice", name)
					}
					seen[name] = true
				}
			}
		})
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// This test documents the function exists and can be called.
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}

// newTestApp creates a cli.App with every command wired up, output captured
// and ExitErrHandler suppressed so errors are returned instead of calling
// os.Exit.
func newTestApp(stdout, stderr *bytes.Buffer) *cli.App {
	app := cli.NewApp()
	app.Name = "omcloud"
	app.Commands = []*cli.Command{
		SendCommand(),
		WatchCommand(),
		HistoryCommand(),
		VersionCommand("abc123"),
	}
	app.Writer = stdout
	app.ErrWriter = stderr
	app.ExitErrHandler = func(*cli.Context, error) {} // suppress os.Exit
	return app
}

// exitCode extracts the process exit code app.Run would have produced.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func TestVersionCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	app := newTestApp(&out, &errOut)

	if err := app.Run([]string{"omcloud", "version", "--format", "json"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{`"commit": "abc123"`, `"protocol": "v6"`, `"RETURN_ABORT_ASYNCHRONOUS_TASK"`, `"user_agent": "omcloud/`, `"v5"`} {
		if !bytes.Contains(out.Bytes(), []byte(want)) {
			t.Errorf("version output missing %s:\n%s", want, out.String())
		}
	}
}

func TestVersionCommand_RejectsTUI(t *testing.T) {
	var out, errOut bytes.Buffer
	err := newTestApp(&out, &errOut).Run([]string{"omcloud", "version", "--tui"})
	if exitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1 (err %v)", exitCode(err), err)
	}
}

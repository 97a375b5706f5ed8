package suite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// OutputFormat selects how the stdout of a command becomes the actual value
type OutputFormat string

const (
	OutputYAML OutputFormat = "yaml"
	OutputText OutputFormat = "text"
)

// cmdWaitDelay bounds how long a killed command may keep its pipes open
const cmdWaitDelay = time.Second

// Command is a test action backed by an external process
type Command struct {
	Argv     []string
	Stdin    string
	Env      map[string]string
	Dir      string
	ExitCode int
	Output   OutputFormat

	// Expect is compared against the decoded stdout. When HasExpect is
	// false only the exit code of the command is checked.
	Expect    any
	HasExpect bool
}

// CommandError reports a command that did not exit the way the test expected
type CommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", strings.Join(e.Argv, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

// Action adapts the command to a test action
func (c *Command) Action() types.Action {
	return c.Run
}

// Run executes the command under ctx. The process is killed once ctx is done.
func (c *Command) Run(ctx context.Context) (types.ActualVsExpected, error) {
	if len(c.Argv) == 0 {
		return types.ActualVsExpected{}, errors.New("command has no arguments")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.WaitDelay = cmdWaitDelay
	cmd.Dir = c.Dir
	// Children join the trace of the attempt that runs them
	cmd.Env = telemetry.InstrumentEnvironment(ctx, c.environ())
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := 0
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.ActualVsExpected{}, fmt.Errorf("command interrupted: %w", ctxErr)
		}
		exitErr := &exec.ExitError{}
		if !errors.As(err, &exitErr) {
			return types.ActualVsExpected{}, fmt.Errorf("failed to run command: %w", err)
		}
		code = exitErr.ExitCode()
	}

	if code != c.ExitCode {
		return types.ActualVsExpected{}, &CommandError{
			Argv:     c.Argv,
			ExitCode: code,
			Stderr:   strings.TrimSpace(stripansi.Strip(stderr.String())),
		}
	}

	if !c.HasExpect {
		return types.ActualVsExpected{}, nil
	}
	return types.ActualVsExpected{Actual: c.decode(stdout.Bytes()), Expected: c.Expect}, nil
}

// decode turns stdout into a value. Output that is not valid YAML falls back
// to the trimmed text.
func (c *Command) decode(out []byte) any {
	text := strings.TrimRight(stripansi.Strip(string(out)), "\r\n")
	if c.Output == OutputText {
		return text
	}
	var v any
	if err := yaml.Unmarshal(out, &v); err != nil {
		return text
	}
	return v
}

func (c *Command) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

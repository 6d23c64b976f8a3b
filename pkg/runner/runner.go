package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/rs/zerolog"
)

// Command describes one external tool invocation
type Command struct {
	Name string
	Args []string

	// Dir is the working directory; empty means the current one
	Dir string

	// Env is appended to the inherited environment
	Env []string

	// Quiet keeps the output out of the log (e.g. it holds secrets)
	Quiet bool
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the captured output of a finished command
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes external commands
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExitError is returned when a command exits non-zero
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + lastLines(e.Stderr, 5)
	}
	return msg
}

// DefaultGracePeriod is how long a cancelled command may take to exit
// after its interrupt before it is killed
const DefaultGracePeriod = 30 * time.Second

// ExecRunner runs commands on the local host. Output is captured and
// streamed into the log at debug level. Cancellation interrupts the
// command and kills it only once the grace period has passed, so tools
// like terraform can persist state and release their locks.
type ExecRunner struct {
	logger zerolog.Logger
	grace  time.Duration
}

// NewExecRunner creates a new local command runner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		logger: log.WithComponent("runner"),
		grace:  DefaultGracePeriod,
	}
}

// WithGracePeriod sets the interrupt-to-kill delay
func (r *ExecRunner) WithGracePeriod(d time.Duration) *ExecRunner {
	r.grace = d
	return r
}

// Run executes cmd and waits for it. A non-zero exit yields *ExitError
// alongside the captured Result.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), cmd.Env...)
	}
	c.Cancel = func() error {
		return c.Process.Signal(os.Interrupt)
	}
	c.WaitDelay = r.grace

	logger := r.logger.With().Str("tool", cmd.Name).Logger()

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if !cmd.Quiet {
		stdoutLog := log.LineWriter(logger, zerolog.DebugLevel, "stdout")
		stderrLog := log.LineWriter(logger, zerolog.DebugLevel, "stderr")
		defer stdoutLog.Close()
		defer stderrLog.Close()
		c.Stdout = io.MultiWriter(&stdout, stdoutLog)
		c.Stderr = io.MultiWriter(&stderr, stderrLog)
	}

	logger.Debug().Strs("args", cmd.Args).Str("dir", cmd.Dir).Bool("quiet", cmd.Quiet).Msg("Executing command")
	err := c.Run()

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return result, &ExitError{
				Command:  cmd.String(),
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("%s: %w", cmd.Name, ctx.Err())
		}
		return result, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}

	return result, nil
}

// LookPath reports whether a binary is on PATH
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

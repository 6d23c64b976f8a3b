// Package runnertest provides a scripted runner.Runner for adapter tests.
package runnertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/shepherd/pkg/runner"
)

// Response is the scripted outcome of a matching command
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error

	// Hook runs before the response is returned, with the command
	Hook func(cmd runner.Command) error
}

type rule struct {
	prefix   string
	response Response
}

// Fake matches each command line against registered prefixes, first
// registered wins. Unmatched commands succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	rules []rule
	calls []runner.Command
}

// On registers a response for commands whose "name args..." starts with prefix
func (f *Fake) On(prefix string, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{prefix: prefix, response: resp})
	return f
}

// Calls returns every command run so far
func (f *Fake) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

// Called reports whether a command starting with prefix was run
func (f *Fake) Called(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			return true
		}
	}
	return false
}

// Run implements runner.Runner
func (f *Fake) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var resp *Response
	for i := range f.rules {
		if strings.HasPrefix(cmd.String(), f.rules[i].prefix) {
			resp = &f.rules[i].response
			break
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp == nil {
		return &runner.Result{}, nil
	}

	if resp.Hook != nil {
		if err := resp.Hook(cmd); err != nil {
			return nil, err
		}
	}

	res := &runner.Result{
		Stdout:   []byte(resp.Stdout),
		Stderr:   []byte(resp.Stderr),
		ExitCode: resp.ExitCode,
	}
	if resp.Err != nil {
		return res, resp.Err
	}
	if resp.ExitCode != 0 {
		return res, &runner.ExitError{Command: cmd.String(), ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	}
	return res, nil
}

var _ runner.Runner = (*Fake)(nil)

// String is a debugging aid listing recorded calls
func (f *Fake) String() string {
	var b strings.Builder
	for _, c := range f.Calls() {
		fmt.Fprintln(&b, c.String())
	}
	return b.String()
}

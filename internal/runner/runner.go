package runner

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"aectl/internal/logger"
)

// Runner abstracts external command execution so stage and dispatch
// logic can be tested without touching the machine. All long-running
// work (package installs, dependency builds, benchmark scripts) goes
// through here and is waited on synchronously; the orchestrator never
// overlaps external processes.
type Runner interface {
	// Run executes the command in dir (empty for the current directory),
	// streaming its output to the orchestrator's stdout/stderr. The
	// delegate's own output is the log for whatever it does.
	Run(dir string, name string, args ...string) error

	// Output executes the command and returns its combined output,
	// trimmed. Used where the orchestrator needs to parse results
	// (version strings, ipcs listings, sysfs read-backs).
	Output(dir string, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec, inheriting the orchestrator's
// environment so delegate scripts see the sourced evaluation profile.
type ExecRunner struct{}

func (ExecRunner) Run(dir string, name string, args ...string) error {
	logger.Debug("[DEBUG] Running command: %s\n", strings.Join(append([]string{name}, args...), " "))
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin // sudo may prompt for a password
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func (ExecRunner) Output(dir string, name string, args ...string) (string, error) {
	logger.Debug("[DEBUG] Running command: %s\n", strings.Join(append([]string{name}, args...), " "))
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("%s failed: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Shell runs a single shell line through the runner. Dependency build
// steps and the hugepage setup are specified as shell lines in the
// config, so they funnel through here.
func Shell(r Runner, dir, line string) error {
	return r.Run(dir, "bash", "-c", line)
}

// Call records one command issued to a FakeRunner.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// FakeRunner records every command instead of executing it and returns
// scripted failures. Tests key failures and outputs by the joined
// command line (name plus args, space separated).
type FakeRunner struct {
	Calls   []Call
	Fail    map[string]error
	Outputs map[string]string
}

// NewFakeRunner returns an empty fake with no scripted failures.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Fail:    make(map[string]error),
		Outputs: make(map[string]string),
	}
}

func (f *FakeRunner) key(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

func (f *FakeRunner) Run(dir string, name string, args ...string) error {
	f.Calls = append(f.Calls, Call{Dir: dir, Name: name, Args: args})
	return f.Fail[f.key(name, args)]
}

func (f *FakeRunner) Output(dir string, name string, args ...string) (string, error) {
	f.Calls = append(f.Calls, Call{Dir: dir, Name: name, Args: args})
	key := f.key(name, args)
	return f.Outputs[key], f.Fail[key]
}

// CommandLines returns the recorded commands as joined strings, which
// keeps test assertions readable.
func (f *FakeRunner) CommandLines() []string {
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, f.key(c.Name, c.Args))
	}
	return lines
}

package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"aectl/internal/config"
	"aectl/internal/logger"
	"aectl/internal/runner"
)

// Benchmarks is the fixed set of benchmark identifiers the suite ships.
// The identifier selects the delegate script directory; it carries no
// state of its own.
var Benchmarks = []string{"microbench", "filebench", "loadmng", "leveldb"}

// Validate checks a benchmark identifier before any side effect.
func Validate(name string) error {
	if !slices.Contains(Benchmarks, name) {
		return fmt.Errorf("unknown benchmark %q (expected one of %s)", name, strings.Join(Benchmarks, ", "))
	}
	return nil
}

// Dispatcher routes compile/run/plot verbs to the per-benchmark delegate
// scripts under the benchmark suite checkout, guaranteeing the mode's
// preconditions first. The delegates own the actual benchmark logic; the
// dispatcher only knows their invocation contract (script path, working
// directory, forwarded arguments, exit status).
type Dispatcher struct {
	Cfg    *config.Config
	Runner runner.Runner
}

// NewDispatcher wires a Dispatcher against the real machine.
func NewDispatcher(cfg *config.Config) *Dispatcher {
	return &Dispatcher{Cfg: cfg, Runner: runner.ExecRunner{}}
}

// scriptDir is the delegate script directory for one benchmark.
func (d *Dispatcher) scriptDir(bench string) string {
	return filepath.Join(d.Cfg.BenchDir(), bench)
}

// delegate invokes one delegate script with the forwarded arguments,
// working directory set to the script's own directory. The script's exit
// status is the only success signal; its output is its log.
func (d *Dispatcher) delegate(bench, script string, args []string) error {
	dir := d.scriptDir(bench)
	cmdArgs := append([]string{script}, args...)
	if err := d.Runner.Run(dir, "bash", cmdArgs...); err != nil {
		return fmt.Errorf("%s %s failed: %w", bench, strings.TrimSuffix(script, ".sh"), err)
	}
	return nil
}

// Compile builds one benchmark by delegating to its compile script.
func (d *Dispatcher) Compile(bench string, args []string) error {
	if err := Validate(bench); err != nil {
		return err
	}
	return d.delegate(bench, "compile.sh", args)
}

// Run executes one benchmark. Before delegating it enforces the clean
// starting state every run needs: no survivor processes or stale IPC
// from a previous (possibly crashed) run, and an existing data
// directory for the results.
func (d *Dispatcher) Run(bench string, args []string) error {
	if err := Validate(bench); err != nil {
		return err
	}

	d.preRunCleanup()

	if err := os.MkdirAll(d.Cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", d.Cfg.DataDir, err)
	}
	d.logDispatch(bench, args)

	return d.delegate(bench, "run.sh", args)
}

// Plot renders one benchmark's plots from a prior run's data. Without
// that data there is nothing to plot, so a missing data directory is a
// precondition failure, not a delegate failure.
func (d *Dispatcher) Plot(bench string, args []string) error {
	if err := Validate(bench); err != nil {
		return err
	}
	if _, err := os.Stat(d.Cfg.DataDir); err != nil {
		return fmt.Errorf("data directory %s not found: run `aectl run %s` before plotting", d.Cfg.DataDir, bench)
	}
	return d.delegate(bench, "plot.sh", args)
}

// logDispatch appends one line per run to the dispatch log in the data
// directory, so results can be matched to the exact invocation that
// produced them. Log trouble never blocks a run.
func (d *Dispatcher) logDispatch(bench string, args []string) {
	runID := uuid.New().String()[:8]
	line := fmt.Sprintf("%s %s %s %s\n", time.Now().Format(time.RFC3339), runID, bench, strings.Join(args, " "))
	path := filepath.Join(d.Cfg.DataDir, "dispatch.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Warn("[WARN] Could not open dispatch log %s: %v\n", path, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		logger.Warn("[WARN] Could not write dispatch log: %v\n", err)
	}
	logger.Info("[INFO] Dispatching run %s: %s\n", runID, bench)
}

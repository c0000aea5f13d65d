package provision

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"aectl/internal/config"
	"aectl/internal/envfile"
	"aectl/internal/logger"
	"aectl/internal/runner"
)

// installStage installs the system packages and Python libraries the
// benchmarks need, builds the external dependency projects from source,
// and persists the resolved SSD parameters into the environment profile.
// Dependency builds are best-effort unless flagged fatal in the config;
// a machine with, say, a broken oneTBB build can still run most of the
// suite, and the failed build's own output says what went wrong.
func (e *Engine) installStage() error {
	if err := e.checkToolchain(); err != nil {
		return err
	}
	if err := e.installPackages(); err != nil {
		return err
	}
	if err := e.installPipPackages(); err != nil {
		return err
	}
	if err := e.buildDeps(); err != nil {
		return err
	}
	return e.persistEnvironment()
}

// versionPattern pulls the first dotted version number out of a tool's
// version banner, e.g. "cmake version 3.22.1".
var versionPattern = regexp.MustCompile(`\d+(\.\d+)+`)

// checkToolchain gates the dependency builds on minimum cmake and gcc
// versions. Too-old toolchains fail mid-build of the storage driver
// toolkit with much less actionable errors than this check gives. An
// unparsable banner only warns: an exotic-but-new toolchain should not
// block installation.
func (e *Engine) checkToolchain() error {
	gates := []struct {
		name string
		args []string
		min  string
	}{
		{"cmake", []string{"--version"}, e.Cfg.MinCmake},
		{"gcc", []string{"-dumpfullversion"}, e.Cfg.MinGCC},
	}
	for _, g := range gates {
		if g.min == "" {
			continue
		}
		out, err := e.Runner.Output("", g.name, g.args...)
		if err != nil {
			// Not installed yet: the package stage below provides it.
			logger.Debug("[DEBUG] %s not available before package install: %v\n", g.name, err)
			continue
		}
		raw := versionPattern.FindString(out)
		if raw == "" {
			logger.Warn("[WARN] Could not parse %s version from %q; skipping version gate\n", g.name, out)
			continue
		}
		have, err := version.NewVersion(raw)
		if err != nil {
			logger.Warn("[WARN] Could not parse %s version %q: %v\n", g.name, raw, err)
			continue
		}
		min, err := version.NewVersion(g.min)
		if err != nil {
			return fmt.Errorf("invalid minimum %s version %q in config: %w", g.name, g.min, err)
		}
		if have.LessThan(min) {
			return fmt.Errorf("%s %s is older than required %s; upgrade it before provisioning", g.name, have, min)
		}
		logger.Debug("[DEBUG] %s %s satisfies minimum %s\n", g.name, have, min)
	}
	return nil
}

// installPackages installs the system package list, minus this machine
// class's pre-installed exceptions. Per-package idempotency ("only if
// absent") is the package manager's job, not ours.
func (e *Engine) installPackages() error {
	pkgs := make([]string, 0, len(e.Cfg.Packages))
	for _, p := range e.Cfg.Packages {
		if slices.Contains(e.Prof.SkipPackages, p) {
			logger.Info("[INFO] Skipping package %s (pre-installed on %s)\n", p, e.Prof.Name)
			continue
		}
		pkgs = append(pkgs, p)
	}
	if len(pkgs) == 0 {
		return nil
	}
	if err := e.Runner.Run("", "sudo", "apt-get", "update"); err != nil {
		return fmt.Errorf("package index update failed: %w", err)
	}
	args := append([]string{"apt-get", "install", "-y"}, pkgs...)
	if err := e.Runner.Run("", "sudo", args...); err != nil {
		return fmt.Errorf("package install failed: %w", err)
	}
	return nil
}

// installPipPackages installs the plotting/statistics libraries the plot
// scripts import.
func (e *Engine) installPipPackages() error {
	if len(e.Cfg.PipPackages) == 0 {
		return nil
	}
	args := append([]string{"-m", "pip", "install", "--user"}, e.Cfg.PipPackages...)
	if err := e.Runner.Run("", "python3", args...); err != nil {
		return fmt.Errorf("pip install failed: %w", err)
	}
	return nil
}

// buildDeps clones and builds the external dependency projects under
// <workspace>/deps. Build lines run through the shell inside the
// checkout, with {jobs} expanded to the configured parallelism.
func (e *Engine) buildDeps() error {
	for _, dep := range e.Cfg.Deps {
		if slices.Contains(e.Prof.SkipDeps, dep.Name) {
			logger.Info("[INFO] Skipping dependency %s (pre-installed on %s)\n", dep.Name, e.Prof.Name)
			continue
		}
		if err := e.buildDep(dep); err != nil {
			if dep.Fatal {
				return fmt.Errorf("required dependency %s failed to build: %w", dep.Name, err)
			}
			logger.Warn("[WARN] Dependency %s failed to build (continuing): %v\n", dep.Name, err)
		}
	}
	return nil
}

func (e *Engine) buildDep(dep config.DepBuild) error {
	dir := e.Cfg.DepDir(dep.Name)
	if _, err := os.Stat(dir); err != nil {
		logger.Info("[INFO] Cloning %s into %s\n", dep.URL, dir)
		if err := e.Runner.Run("", "git", "clone", dep.URL, dir); err != nil {
			return err
		}
	}
	if err := e.Runner.Run(dir, "git", "checkout", dep.Branch); err != nil {
		return err
	}
	logger.Info("[INFO] Building %s@%s\n", dep.Name, dep.Branch)
	for _, line := range dep.Build {
		line = strings.ReplaceAll(line, "{jobs}", strconv.Itoa(e.Cfg.Jobs))
		if err := runner.Shell(e.Runner, dir, line); err != nil {
			return fmt.Errorf("build step %q failed: %w", line, err)
		}
	}
	return nil
}

// persistEnvironment serializes the resolved evaluation parameters into
// the environment profile and hooks the profile into the user's shell
// rc. Downstream delegate scripts consume these as ambient environment.
func (e *Engine) persistEnvironment() error {
	err := e.Env.EnsureExports([][2]string{
		{"AE_SSD_NAME", e.Prof.Device},
		{"AE_SSD_PICE_ADDR", e.Prof.PCIeAddr},
		{"AE_WORKSPACE", e.Cfg.Workspace},
		{"AE_DATA_DIR", e.Cfg.DataDir},
		{"AE_BIN_DIR", e.Cfg.BinDir},
		{"AE_ENGINE_MOUNT", e.Cfg.EngineMount},
		{"AE_ENGINE_DATA", e.Cfg.EngineData},
	})
	if err != nil {
		return err
	}
	return envfile.EnsureSourced(e.RC, e.Cfg.EnvFile)
}

package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"aectl/internal/logger"
	"aectl/internal/profile"
	"aectl/internal/runner"
)

// Test hooks for the cpufreq loop: core enumeration and sysfs read-back.
var (
	cpufreqDirs = func() []string {
		dirs, _ := filepath.Glob("/sys/devices/system/cpu/cpu[0-9]*/cpufreq")
		return dirs
	}
	readSysfs = func(path string) (string, error) {
		b, err := os.ReadFile(path)
		return strings.TrimSpace(string(b)), err
	}
)

// AfterReboot applies the half of provisioning that only takes effect in
// a fresh kernel/session: stable-measurement knobs and the hugepage
// reservation for the storage driver. It assumes `init` already ran and
// the machine has rebooted since.
func (e *Engine) AfterReboot() error {
	steps := []step{
		{name: "disable hyper-threading", policy: fatal, fn: func() error {
			// Sibling threads sharing a core add run-to-run variance the
			// paper's numbers were not collected with.
			return runner.Shell(e.Runner, "", "echo off | sudo tee /sys/devices/system/cpu/smt/control > /dev/null")
		}},
		{name: "enable msr module", policy: fatal, fn: func() error {
			// Performance-counter access for the measurement harness.
			return e.Runner.Run("", "sudo", "modprobe", "msr")
		}},
		{name: "disable nmi watchdog", policy: fatal, fn: func() error {
			// The watchdog's periodic interrupts show up as latency
			// spikes in the microbenchmarks.
			return e.Runner.Run("", "sudo", "sysctl", "-w", "kernel.nmi_watchdog=0")
		}},
		{name: "reserve hugepages", policy: fatal, fn: e.reserveHugepages},
	}
	if e.Prof.Name != profile.Cloudlab {
		// CloudLab nodes run with frequency scaling managed by the
		// site; everywhere else pin the clocks for stable numbers.
		steps = append(steps, step{name: "pin cpu frequency", policy: bestEffort, fn: e.pinCPUFrequency})
	}
	if err := runSteps(steps); err != nil {
		return err
	}
	logger.Info("[INFO] Post-reboot setup complete for profile %s\n", e.Prof.Name)
	return nil
}

// reserveHugepages pre-reserves the driver's hugepage memory through the
// storage driver toolkit's own setup script.
func (e *Engine) reserveHugepages() error {
	dir := e.Cfg.DepDir("spdk")
	cmd := fmt.Sprintf("sudo HUGEMEM=%d ./scripts/setup.sh", e.Cfg.HugeMemMB)
	if err := runner.Shell(e.Runner, dir, cmd); err != nil {
		return fmt.Errorf("hugepage reservation failed: %w", err)
	}
	return nil
}

// pinCPUFrequency pins every core's frequency scaling to the configured
// target. Each per-core write is best-effort: offline cores and cores
// without a userspace governor make individual writes fail, and the
// write's reported status is unreliable anyway through tee. The truth is
// the read-back, so verification compares scaling_setspeed afterwards
// and only warns on mismatch.
func (e *Engine) pinCPUFrequency() error {
	target := strconv.Itoa(e.Cfg.CPUFreqKHz)
	dirs := cpufreqDirs()
	if len(dirs) == 0 {
		return fmt.Errorf("no cpufreq control files found")
	}
	pinned := 0
	for _, dir := range dirs {
		_ = runner.Shell(e.Runner, "", fmt.Sprintf("echo userspace | sudo tee %s/scaling_governor > /dev/null", dir))
		_ = runner.Shell(e.Runner, "", fmt.Sprintf("echo %s | sudo tee %s/scaling_setspeed > /dev/null", target, dir))

		got, err := readSysfs(dir + "/scaling_setspeed")
		if err != nil || got != target {
			logger.Warn("[WARN] %s not pinned to %s kHz (reads %q)\n", dir, target, got)
			continue
		}
		pinned++
	}
	logger.Info("[INFO] Pinned %d/%d cores to %s kHz\n", pinned, len(dirs), target)
	return nil
}

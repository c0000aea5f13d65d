package main

import (
	"aectl/cmd" // Import the cmd package which contains the CLI commands and execution logic
)

// main is the program entry point.
// It delegates to cmd.Execute() which handles command line argument parsing and execution.
//
// aectl is the artifact-evaluation orchestrator for the storage-system
// benchmark suite. It:
//   - Provisions an evaluation machine in ordered stages (mount, install,
//     configure), tracking stage completion in durable home-directory
//     markers so that re-running `init` after a partial failure or a
//     reboot only performs the remaining work
//   - Resolves one of three machine profiles (cloudlab, adsl, other) into
//     the SSD device name and PCIe address every later stage depends on
//   - Persists the resolved evaluation environment into a profile file
//     sourced by the user's shell, using exact-line deduplication so
//     repeated runs never duplicate entries
//   - Applies the post-reboot half of provisioning (SMT off, msr module,
//     watchdog off, hugepage reservation, CPU frequency pinning) via
//     `init-after-reboot`
//   - Dispatches benchmark compile/run/plot verbs to the per-benchmark
//     delegate scripts, guaranteeing a clean process/IPC/mount state
//     before every run
//
// Error handling strategy:
//   - Usage and configuration errors are detected before any side effect
//     and exit 1 with contextual help
//   - Delegate script failures propagate as the tool's own non-zero exit
//   - Expected-to-fail cleanup work (killing processes that may not be
//     running, releasing IPC that may not exist) is best-effort and never
//     aborts the enclosing workflow
func main() {
	cmd.Execute()
}

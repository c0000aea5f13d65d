package logger

import (
	"github.com/fatih/color" // Colored console output for log levels
)

// Colorized printing functions for the different log levels. These are
// package-level variables holding functions that behave like fmt.Printf,
// but with text colored appropriately for the log level.

// Info logs informational messages (stage progress, skips) in green.
var Info = color.New(color.FgGreen).PrintfFunc()

// Warn logs warnings in bright magenta. Best-effort steps that fail land
// here: they are expected to fail on a clean machine and must stand out
// without looking like errors.
var Warn = color.New(color.FgHiMagenta).PrintfFunc()

// Error logs error messages in red.
var Error = color.New(color.FgRed).PrintfFunc()

// Debug logs debug messages in cyan if enabled, otherwise is a no-op.
// It is assigned dynamically during Init based on the --debug flag.
var Debug func(format string, a ...any)

// Init initializes the logger package, enabling or disabling debug
// logging. Every external command the orchestrator runs is echoed at
// debug level, so --debug effectively gives a readable trace of what the
// tool did to the machine.
func Init(enableDebug bool) {
	if enableDebug {
		Debug = color.New(color.FgCyan).PrintfFunc()
	} else {
		// No-op to avoid runtime overhead when debug logging is off.
		Debug = func(format string, a ...any) {}
	}
}

func init() {
	// Commands and tests may log before Init runs; default to quiet.
	Debug = func(format string, a ...any) {}
}

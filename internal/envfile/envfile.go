package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aectl/internal/lineset"
	"aectl/internal/logger"
)

// Profile manages the persisted evaluation environment: a file of
// `export KEY=value` lines that the user's interactive shell sources.
// Downstream delegate scripts read these as ambient environment; inside
// the orchestrator itself the same values travel in the explicit config
// struct, and this file is purely a serialization at the boundary.
type Profile struct {
	Store lineset.Store
}

// NewProfile returns a Profile over the environment file at path.
func NewProfile(path string) *Profile {
	return &Profile{Store: &lineset.FileStore{Path: path}}
}

// EnsureExport records KEY=value as an export line if an identical line
// is not already present. A changed value for an existing key appends a
// new line rather than rewriting the old one; later exports win when the
// shell sources the file, matching how the evaluation instructions tell
// users to override values.
func (p *Profile) EnsureExport(key, value string) error {
	line := fmt.Sprintf("export %s=%s", key, value)
	added, err := lineset.EnsureLine(p.Store, line)
	if err != nil {
		return err
	}
	if added {
		logger.Info("[INFO] Added to environment profile: %s\n", line)
	} else {
		logger.Debug("[DEBUG] Environment profile already has: %s\n", line)
	}
	return nil
}

// EnsureExports records the given key/value pairs in order.
func (p *Profile) EnsureExports(pairs [][2]string) error {
	for _, kv := range pairs {
		if err := p.EnsureExport(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// EnsureSourced makes the user's shell rc file source the environment
// profile at envPath, so new interactive shells pick up the evaluation
// variables. The rc line itself is exact-line deduplicated.
func EnsureSourced(rc lineset.Store, envPath string) error {
	added, err := lineset.EnsureLine(rc, fmt.Sprintf("source %s", envPath))
	if err != nil {
		return err
	}
	if added {
		logger.Info("[INFO] Hooked environment profile into shell rc\n")
	}
	return nil
}

// RCPath returns the rc file of the user's shell, detected from $SHELL.
// The evaluation machines run bash, so bash is the fallback for unknown
// shells.
func RCPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	shell := os.Getenv("SHELL")
	logger.Debug("[DEBUG] Detected shell environment: %s\n", shell)
	if strings.Contains(shell, "zsh") {
		return filepath.Join(home, ".zshrc")
	}
	return filepath.Join(home, ".bashrc")
}

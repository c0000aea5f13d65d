package lineset

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"aectl/internal/runner"
)

// Store is a line-oriented text store supporting the one mutation the
// orchestrator ever needs: append a line. The fstab, the limits file,
// and the environment profile are all updated through this interface so
// the exact-line dedup logic is shared and testable in memory.
type Store interface {
	Lines() ([]string, error)
	Append(line string) error
}

// EnsureLine appends line to the store unless an exact-match line (after
// trimming surrounding whitespace) is already present. It reports
// whether it appended. This exact-string idempotency is what makes
// repeated provisioning runs non-destructive: re-running `init` adds
// nothing to a file it already configured.
func EnsureLine(s Store, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	existing, err := s.Lines()
	if err != nil {
		return false, err
	}
	for _, l := range existing {
		if strings.TrimSpace(l) == line {
			return false, nil
		}
	}
	if err := s.Append(line); err != nil {
		return false, err
	}
	return true, nil
}

// FileStore is a Store over a plain file writable by the invoking user
// (the environment profile, shell rc files). A missing file reads as
// empty and is created on first append.
type FileStore struct {
	Path string
}

func (f *FileStore) Lines() ([]string, error) {
	return readLines(f.Path)
}

func (f *FileStore) Append(line string) error {
	file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s for appending: %w", f.Path, err)
	}
	defer file.Close()
	if _, err := file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", f.Path, err)
	}
	return nil
}

// SudoStore is a Store over a root-owned file (/etc/fstab,
// /etc/security/limits.conf). Reads go straight through the filesystem
// (these files are world-readable); appends go through `sudo tee -a` so
// only the single write needs elevated privilege, never the whole tool.
type SudoStore struct {
	Path   string
	Runner runner.Runner
}

func (s *SudoStore) Lines() ([]string, error) {
	return readLines(s.Path)
}

func (s *SudoStore) Append(line string) error {
	// printf avoids any shell interpretation of the line content.
	cmd := fmt.Sprintf("printf '%%s\\n' %s | sudo tee -a %s > /dev/null", shellQuote(line), s.Path)
	if err := runner.Shell(s.Runner, "", cmd); err != nil {
		return fmt.Errorf("failed to append to %s: %w", s.Path, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	Stored []string
}

func (m *MemStore) Lines() ([]string, error) { return m.Stored, nil }

func (m *MemStore) Append(line string) error {
	m.Stored = append(m.Stored, line)
	return nil
}

// readLines returns the trimmed-right lines of path, or an empty slice
// when the file does not exist yet.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return lines, nil
}

// shellQuote single-quotes s for safe interpolation into a shell line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

package provision

import (
	"fmt"

	"aectl/internal/lineset"
	"aectl/internal/logger"
)

// configureStage raises the OS resource limits the storage driver needs:
// unlimited locked memory (the engine memory-maps large regions) and a
// high open-file ceiling (it holds many descriptors). The limit lines go
// into the system limits file with exact-line dedup, so repeated runs
// never stack duplicates.
//
// The limits only apply to sessions started after the next login or
// reboot; init's closing reminder covers that.
func (e *Engine) configureStage() error {
	for _, line := range e.Cfg.Limits {
		added, err := lineset.EnsureLine(e.Limits, line)
		if err != nil {
			return fmt.Errorf("failed to persist limit %q: %w", line, err)
		}
		if added {
			logger.Info("[INFO] Added resource limit: %s\n", line)
		} else {
			logger.Debug("[DEBUG] Resource limit already present: %s\n", line)
		}
	}
	return nil
}

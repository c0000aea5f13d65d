package provision

import (
	"fmt"

	"aectl/internal/lineset"
	"aectl/internal/logger"
	"aectl/internal/profile"
)

// mountStage formats the benchmark SSD and mounts it at the workspace
// root. CloudLab nodes boot with the SSD blank, so this applies only to
// the cloudlab profile; lab machines and user-supplied machines bring
// their own workspace storage.
//
// The fstab entry uses exact-line dedup, so a re-run after a failed
// later stage adds nothing. The format itself is NOT idempotent — it is
// guarded by the stage marker, which is exactly why the marker lives in
// the home directory and not on the SSD being formatted.
func (e *Engine) mountStage() error {
	if e.Prof.Name != profile.Cloudlab {
		logger.Info("[INFO] Mount stage not applicable for profile %s. Skipping.\n", e.Prof.Name)
		return nil
	}

	dev := e.Prof.DevicePath()
	logger.Info("[INFO] Formatting %s and mounting at %s\n", dev, e.Cfg.Workspace)

	if err := e.Runner.Run("", "sudo", "mkfs.ext4", "-F", dev); err != nil {
		return fmt.Errorf("failed to format %s: %w", dev, err)
	}
	if err := e.Runner.Run("", "sudo", "mkdir", "-p", e.Cfg.Workspace); err != nil {
		return err
	}
	if err := e.Runner.Run("", "sudo", "mount", dev, e.Cfg.Workspace); err != nil {
		return fmt.Errorf("failed to mount %s at %s: %w", dev, e.Cfg.Workspace, err)
	}

	// Persist the mount across reboots.
	fstabLine := fmt.Sprintf("%s %s ext4 defaults 0 0", dev, e.Cfg.Workspace)
	if _, err := lineset.EnsureLine(e.Fstab, fstabLine); err != nil {
		return err
	}

	return e.chownToUser(e.Cfg.Workspace)
}

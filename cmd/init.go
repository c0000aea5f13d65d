package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"aectl/internal/logger"
	"aectl/internal/profile"
	"aectl/internal/provision"
	"aectl/internal/runner"
	"aectl/internal/state"
)

// buildEngine resolves the machine profile and wires the stage engine,
// exiting with usage help when the profile token or its required
// environment is invalid. No side effects happen before this succeeds.
func buildEngine(cmd *cobra.Command, token string) *provision.Engine {
	cfg := loadConfig()

	prof, err := profile.Resolve(token, cfg)
	if err != nil {
		logger.Error("[ERROR] %v\n", err)
		_ = cmd.Usage()
		os.Exit(1)
	}
	logger.Debug("[DEBUG] Resolved profile %s: device=%s pcie=%s\n", prof.Name, prof.Device, prof.PCIeAddr)

	tracker, err := state.NewFileTracker()
	if err != nil {
		logger.Error("[ERROR] %v\n", err)
		os.Exit(1)
	}
	return provision.NewEngine(cfg, prof, tracker, runner.ExecRunner{})
}

// initCmd provisions the machine: mount, install and configure stages in
// order, each skipped when its completion marker already exists. Safe to
// re-invoke after partial failure; re-provisioning from scratch requires
// manually deleting the ~/.aectl_*_done markers.
var initCmd = &cobra.Command{
	Use:   "init <cloudlab|adsl|other>",
	Short: "Provision this machine for the evaluation (run once, then reboot)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine := buildEngine(cmd, args[0])
		if err := engine.Init(); err != nil {
			logger.Error("[ERROR] %v\n", err)
			os.Exit(1)
		}
	},
}

// initAfterRebootCmd applies the post-reboot half of provisioning:
// hyper-threading off, msr module, NMI watchdog off, hugepage
// reservation, and (off CloudLab) CPU frequency pinning.
var initAfterRebootCmd = &cobra.Command{
	Use:   "init-after-reboot <cloudlab|adsl|other>",
	Short: "Apply the post-reboot half of provisioning",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine := buildEngine(cmd, args[0])
		if err := engine.AfterReboot(); err != nil {
			logger.Error("[ERROR] %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(initAfterRebootCmd)
}

package provision

import (
	"fmt"
	"os"
	"os/user"

	"aectl/internal/config"
	"aectl/internal/envfile"
	"aectl/internal/lineset"
	"aectl/internal/logger"
	"aectl/internal/profile"
	"aectl/internal/runner"
	"aectl/internal/state"
)

// Engine runs the provisioning stages for one resolved machine profile.
// It is the only writer of the completion ledger; exactly one instance
// runs at a time against a workspace (concurrent invocations are
// unsupported).
type Engine struct {
	Cfg     *config.Config
	Prof    *profile.Profile
	Tracker state.StageTracker
	Runner  runner.Runner

	// Line stores for the idempotent system-file edits. NewEngine wires
	// the real files; tests substitute in-memory stores.
	Fstab  lineset.Store
	Limits lineset.Store
	Env    *envfile.Profile
	RC     lineset.Store
}

// NewEngine wires an Engine against the real machine.
func NewEngine(cfg *config.Config, prof *profile.Profile, tracker state.StageTracker, r runner.Runner) *Engine {
	return &Engine{
		Cfg:     cfg,
		Prof:    prof,
		Tracker: tracker,
		Runner:  r,
		Fstab:   &lineset.SudoStore{Path: cfg.FstabFile, Runner: r},
		Limits:  &lineset.SudoStore{Path: cfg.LimitsFile, Runner: r},
		Env:     envfile.NewProfile(cfg.EnvFile),
		RC:      &lineset.FileStore{Path: envfile.RCPath()},
	}
}

// Init is the pre-reboot half of provisioning: workspace and repository
// setup, then the mount, install and configure stages in that order,
// each independently skippable via its completion marker. It finishes
// with the reboot reminder; the changes that need kernel or session
// effect only activate through `init-after-reboot`.
func (e *Engine) Init() error {
	steps := []step{
		{name: "prepare workspace", policy: fatal, fn: e.ensureWorkspace},
		{name: "fetch repositories", policy: fatal, fn: e.ensureRepos},
		{name: "mount stage", policy: fatal, fn: func() error {
			return e.runStage(state.StageMount, e.mountStage)
		}},
		{name: "install stage", policy: fatal, fn: func() error {
			return e.runStage(state.StageInstall, e.installStage)
		}},
		{name: "configure stage", policy: fatal, fn: func() error {
			return e.runStage(state.StageConfigure, e.configureStage)
		}},
	}
	if e.Prof.BestEffortInit {
		logger.Warn("[WARN] Unknown machine class: provisioning steps run best-effort\n")
		steps = relaxed(steps)
	}
	if err := runSteps(steps); err != nil {
		return err
	}

	logger.Info("[INFO] Provisioning complete for profile %s\n", e.Prof.Name)
	logger.Info("[INFO] Reboot the machine, then run: aectl init-after-reboot %s\n", e.Prof.Name)
	return nil
}

// runStage gates fn behind the completion ledger: skip when marked,
// otherwise run and mark. A marker write failure is a stage failure —
// the work may have happened, but it is not durably recorded, so the
// next invocation must be able to retry rather than trust a false
// positive.
func (e *Engine) runStage(stage state.Stage, fn func() error) error {
	if e.Tracker.IsComplete(stage) {
		logger.Info("[INFO] Stage %s already complete. Skipping.\n", stage)
		return nil
	}
	if err := fn(); err != nil {
		return fmt.Errorf("stage %s failed: %w", stage, err)
	}
	if err := e.Tracker.MarkComplete(stage); err != nil {
		return fmt.Errorf("stage %s ran but was not durably recorded: %w", stage, err)
	}
	logger.Info("[INFO] Stage %s complete.\n", stage)
	return nil
}

// ensureWorkspace creates the workspace root when it does not exist and
// hands it to the invoking user. On cloudlab the mount stage re-does
// this on top of the freshly formatted SSD.
func (e *Engine) ensureWorkspace() error {
	if _, err := os.Stat(e.Cfg.Workspace); err == nil {
		return nil
	}
	if err := e.Runner.Run("", "sudo", "mkdir", "-p", e.Cfg.Workspace); err != nil {
		return err
	}
	return e.chownToUser(e.Cfg.Workspace)
}

// ensureRepos makes sure the system and benchmark checkouts exist and
// sit on the configured branches. An existing checkout is left alone
// apart from the branch switch: evaluators may carry local changes, and
// clobbering them on every `init` would make re-invocation destructive.
func (e *Engine) ensureRepos() error {
	repos := []struct {
		repo config.Repo
		dir  string
	}{
		{e.Cfg.SysRepo, e.Cfg.SysDir()},
		{e.Cfg.BenchRepo, e.Cfg.BenchDir()},
	}
	for _, r := range repos {
		if _, err := os.Stat(r.dir); err != nil {
			logger.Info("[INFO] Cloning %s into %s\n", r.repo.URL, r.dir)
			if err := e.Runner.Run("", "git", "clone", r.repo.URL, r.dir); err != nil {
				return err
			}
		}
		if err := e.Runner.Run(r.dir, "git", "checkout", r.repo.Branch); err != nil {
			return fmt.Errorf("failed to checkout %s in %s: %w", r.repo.Branch, r.dir, err)
		}
	}
	return nil
}

// chownToUser hands path to the invoking user after privileged creation.
func (e *Engine) chownToUser(path string) error {
	usr, err := user.Current()
	if err != nil {
		return fmt.Errorf("cannot determine invoking user for chown of %s: %w", path, err)
	}
	return e.Runner.Run("", "sudo", "chown", "-R", usr.Username+":"+usr.Username, path)
}

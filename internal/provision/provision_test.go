package provision

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aectl/internal/config"
	"aectl/internal/envfile"
	"aectl/internal/lineset"
	"aectl/internal/profile"
	"aectl/internal/runner"
	"aectl/internal/state"
)

// testEngine wires an Engine against in-memory stores, a fake runner,
// and a workspace under TempDir with the repo checkouts pre-created (so
// only branch checkouts, not clones, are issued).
func testEngine(t *testing.T, prof *profile.Profile) (*Engine, *runner.FakeRunner) {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "sys"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "bench"), 0755))

	cfg := &config.Config{
		Workspace:   ws,
		DataDir:     ws + "/results",
		BinDir:      ws + "/bin",
		EngineMount: "/mnt/aefs",
		EngineData:  ws + "/engine",
		EnvFile:     ws + "/.ae_env",
		SysRepo:     config.Repo{URL: "https://example.com/sys.git", Branch: "ae"},
		BenchRepo:   config.Repo{URL: "https://example.com/bench.git", Branch: "ae"},
		Jobs:        2,
		Packages:    []string{"cmake", "libaio-dev"},
		PipPackages: []string{"matplotlib"},
		Deps: []config.DepBuild{
			{Name: "fio", URL: "https://example.com/fio.git", Branch: "fio-3.36", Build: []string{"make -j{jobs}"}},
			{Name: "spdk", URL: "https://example.com/spdk.git", Branch: "v23.05", Build: []string{"make -j{jobs}"}, Fatal: true},
		},
		Limits: []string{
			"* soft memlock unlimited",
			"* hard memlock unlimited",
		},
	}

	fake := runner.NewFakeRunner()
	e := &Engine{
		Cfg:     cfg,
		Prof:    prof,
		Tracker: state.NewMemTracker(),
		Runner:  fake,
		Fstab:   &lineset.MemStore{},
		Limits:  &lineset.MemStore{},
		Env:     &envfile.Profile{Store: &lineset.MemStore{}},
		RC:      &lineset.MemStore{},
	}
	return e, fake
}

func cloudlabProfile() *profile.Profile {
	return &profile.Profile{Name: profile.Cloudlab, Device: "nvme0n1", PCIeAddr: "0000:c5:00.0"}
}

func adslProfile() *profile.Profile {
	return &profile.Profile{Name: profile.Adsl, Device: "nvme1n1", PCIeAddr: "0000:5e:00.0"}
}

func anyLineContains(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestInitCloudlabFreshRunsAllStages(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())

	require.NoError(t, e.Init())

	lines := fake.CommandLines()
	assert.True(t, anyLineContains(lines, "mkfs.ext4 -F /dev/nvme0n1"), "mount stage should format the SSD")
	assert.True(t, anyLineContains(lines, "mount /dev/nvme0n1"), "mount stage should mount the SSD")
	assert.True(t, anyLineContains(lines, "apt-get install -y cmake libaio-dev"), "install stage should install packages")
	assert.True(t, anyLineContains(lines, "pip install --user matplotlib"), "install stage should install pip packages")
	assert.True(t, anyLineContains(lines, "make -j2"), "dep builds should expand {jobs}")

	// The fstab line is recorded exactly once.
	fstab := e.Fstab.(*lineset.MemStore)
	assert.Equal(t, []string{"/dev/nvme0n1 " + e.Cfg.Workspace + " ext4 defaults 0 0"}, fstab.Stored)

	// Limits are persisted.
	limits := e.Limits.(*lineset.MemStore)
	assert.Equal(t, e.Cfg.Limits, limits.Stored)

	// SSD parameters land in the environment profile, and the profile is
	// hooked into the shell rc.
	env := e.Env.Store.(*lineset.MemStore)
	assert.Contains(t, env.Stored, "export AE_SSD_NAME=nvme0n1")
	assert.Contains(t, env.Stored, "export AE_SSD_PICE_ADDR=0000:c5:00.0")
	rc := e.RC.(*lineset.MemStore)
	require.Len(t, rc.Stored, 1)
	assert.Contains(t, rc.Stored[0], "source ")

	// All three markers exist afterwards.
	for _, s := range []state.Stage{state.StageMount, state.StageInstall, state.StageConfigure} {
		assert.True(t, e.Tracker.IsComplete(s), string(s))
	}
}

func TestInitSkipsCompletedStages(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())
	for _, s := range []state.Stage{state.StageMount, state.StageInstall, state.StageConfigure} {
		require.NoError(t, e.Tracker.MarkComplete(s))
	}

	require.NoError(t, e.Init())

	// Ledger-driven skip: no mount or installation action happens on a
	// re-run, only the repository branch checkouts.
	lines := fake.CommandLines()
	assert.False(t, anyLineContains(lines, "mkfs"), "no format on re-run")
	assert.False(t, anyLineContains(lines, "apt-get"), "no package install on re-run")
	assert.False(t, anyLineContains(lines, "pip"), "no pip install on re-run")
	assert.True(t, anyLineContains(lines, "git checkout ae"))
}

func TestInitMountStageOnlyAppliesToCloudlab(t *testing.T) {
	e, fake := testEngine(t, adslProfile())

	require.NoError(t, e.Init())

	assert.False(t, anyLineContains(fake.CommandLines(), "mkfs"), "adsl brings its own workspace storage")
	fstab := e.Fstab.(*lineset.MemStore)
	assert.Empty(t, fstab.Stored)
	// The not-applicable stage still records completion.
	assert.True(t, e.Tracker.IsComplete(state.StageMount))
}

func TestMountStageFstabLineDeduped(t *testing.T) {
	e, _ := testEngine(t, cloudlabProfile())
	line := "/dev/nvme0n1 " + e.Cfg.Workspace + " ext4 defaults 0 0"
	e.Fstab.(*lineset.MemStore).Stored = []string{line}

	require.NoError(t, e.mountStage())

	assert.Equal(t, []string{line}, e.Fstab.(*lineset.MemStore).Stored)
}

// failingTracker accepts reads but cannot record completion.
type failingTracker struct{}

func (failingTracker) IsComplete(state.Stage) bool    { return false }
func (failingTracker) MarkComplete(state.Stage) error { return errors.New("disk full") }

func TestMarkerWriteFailureFailsTheStage(t *testing.T) {
	e, _ := testEngine(t, adslProfile())
	e.Tracker = failingTracker{}

	err := e.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not durably recorded")
}

func TestInstallRespectsProfileSkips(t *testing.T) {
	prof := adslProfile()
	prof.SkipPackages = []string{"libaio-dev"}
	prof.SkipDeps = []string{"spdk"}
	e, fake := testEngine(t, prof)

	require.NoError(t, e.installStage())

	lines := fake.CommandLines()
	assert.True(t, anyLineContains(lines, "apt-get install -y cmake"))
	assert.False(t, anyLineContains(lines, "libaio-dev"), "skipped package must not be installed")
	assert.False(t, anyLineContains(lines, "spdk"), "skipped dep must not be cloned or built")
}

func TestFatalDepBuildAborts(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())
	fake.Fail["git clone https://example.com/spdk.git "+e.Cfg.DepDir("spdk")] = errors.New("network down")

	err := e.installStage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spdk")
}

func TestBestEffortDepBuildContinues(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())
	fake.Fail["git clone https://example.com/fio.git "+e.Cfg.DepDir("fio")] = errors.New("network down")

	// fio is best-effort; installation continues and still persists the
	// environment profile.
	require.NoError(t, e.installStage())
	env := e.Env.Store.(*lineset.MemStore)
	assert.Contains(t, env.Stored, "export AE_SSD_NAME=nvme0n1")
}

func TestToolchainGateRejectsOldCmake(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())
	e.Cfg.MinCmake = "3.16"
	fake.Outputs["cmake --version"] = "cmake version 3.10.2"

	err := e.installStage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cmake")
	assert.Contains(t, err.Error(), "3.16")
}

func TestToolchainGateAcceptsNewCmake(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())
	e.Cfg.MinCmake = "3.16"
	fake.Outputs["cmake --version"] = "cmake version 3.22.1"

	require.NoError(t, e.installStage())
}

func TestInitOtherProfileIsBestEffort(t *testing.T) {
	prof := &profile.Profile{Name: profile.Other, Device: "nvme0n1", PCIeAddr: "0000:17:00.0", BestEffortInit: true}
	e, fake := testEngine(t, prof)
	// Break the install stage outright.
	fake.Fail["sudo apt-get update"] = errors.New("no sudo here")

	// On `other`, a failed step does not abort the remaining steps: the
	// configure stage still runs.
	require.NoError(t, e.Init())
	limits := e.Limits.(*lineset.MemStore)
	assert.Equal(t, e.Cfg.Limits, limits.Stored)
	assert.False(t, e.Tracker.IsComplete(state.StageInstall), "failed stage must not be marked complete")
	assert.True(t, e.Tracker.IsComplete(state.StageConfigure))
}

func TestStepRunnerPolicies(t *testing.T) {
	var ran []string
	mk := func(name string, p policy, err error) step {
		return step{name: name, policy: p, fn: func() error {
			ran = append(ran, name)
			return err
		}}
	}

	// Best-effort failures are skipped over.
	ran = nil
	err := runSteps([]step{
		mk("a", bestEffort, errors.New("boom")),
		mk("b", fatal, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ran)

	// Fatal failures stop the sequence.
	ran = nil
	err = runSteps([]step{
		mk("a", fatal, errors.New("boom")),
		mk("b", fatal, nil),
	})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, ran)
}

package provision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCpufreq substitutes the sysfs hooks: dirs enumerates fake cores,
// reads maps read-back paths to values.
func withCpufreq(t *testing.T, dirs []string, reads map[string]string) {
	t.Helper()
	origDirs, origRead := cpufreqDirs, readSysfs
	cpufreqDirs = func() []string { return dirs }
	readSysfs = func(path string) (string, error) {
		v, ok := reads[path]
		if !ok {
			return "", errors.New("no such file")
		}
		return v, nil
	}
	t.Cleanup(func() { cpufreqDirs, readSysfs = origDirs, origRead })
}

func TestAfterRebootAppliesMeasurementKnobs(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())
	e.Cfg.HugeMemMB = 16384

	require.NoError(t, e.AfterReboot())

	lines := fake.CommandLines()
	assert.True(t, anyLineContains(lines, "/sys/devices/system/cpu/smt/control"))
	assert.True(t, anyLineContains(lines, "modprobe msr"))
	assert.True(t, anyLineContains(lines, "kernel.nmi_watchdog=0"))
	assert.True(t, anyLineContains(lines, "HUGEMEM=16384 ./scripts/setup.sh"))
	// CloudLab leaves frequency scaling to the site.
	assert.False(t, anyLineContains(lines, "scaling_governor"))
}

func TestAfterRebootHugepageDirIsSPDKCheckout(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())

	require.NoError(t, e.AfterReboot())

	var dir string
	for _, c := range fake.Calls {
		if len(c.Args) == 2 && c.Args[0] == "-c" && c.Args[1] != "" && c.Dir != "" {
			dir = c.Dir
		}
	}
	assert.Equal(t, e.Cfg.DepDir("spdk"), dir)
}

func TestAfterRebootPinsFrequencyOffCloudlab(t *testing.T) {
	e, fake := testEngine(t, adslProfile())
	e.Cfg.CPUFreqKHz = 2200000
	withCpufreq(t, []string{"/sys/cpu0/cpufreq", "/sys/cpu1/cpufreq"}, map[string]string{
		"/sys/cpu0/cpufreq/scaling_setspeed": "2200000",
		// cpu1 never takes the value: only a warning, never an abort.
		"/sys/cpu1/cpufreq/scaling_setspeed": "3500000",
	})

	require.NoError(t, e.AfterReboot())

	lines := fake.CommandLines()
	assert.True(t, anyLineContains(lines, "/sys/cpu0/cpufreq/scaling_governor"))
	assert.True(t, anyLineContains(lines, "/sys/cpu1/cpufreq/scaling_setspeed"))
}

func TestAfterRebootFrequencyPinToleratesWriteFailures(t *testing.T) {
	e, fake := testEngine(t, adslProfile())
	e.Cfg.CPUFreqKHz = 2200000
	withCpufreq(t, []string{"/sys/cpu0/cpufreq"}, map[string]string{
		"/sys/cpu0/cpufreq/scaling_setspeed": "2200000",
	})
	// The write reports failure, but the read-back is the truth.
	fake.Fail["bash -c echo 2200000 | sudo tee /sys/cpu0/cpufreq/scaling_setspeed > /dev/null"] = errors.New("tee: permission denied")

	require.NoError(t, e.AfterReboot())
}

func TestAfterRebootNoCpufreqFilesIsBestEffort(t *testing.T) {
	e, _ := testEngine(t, adslProfile())
	withCpufreq(t, nil, nil)

	// The pin step fails (nothing to pin) but is best-effort.
	require.NoError(t, e.AfterReboot())
}

func TestAfterRebootSMTFailureIsFatal(t *testing.T) {
	e, fake := testEngine(t, cloudlabProfile())
	fake.Fail["bash -c echo off | sudo tee /sys/devices/system/cpu/smt/control > /dev/null"] = errors.New("no such file")

	require.Error(t, e.AfterReboot())
}

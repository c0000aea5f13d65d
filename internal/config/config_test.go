package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data", cfg.Workspace)
	assert.Equal(t, "/data/results", cfg.DataDir)
	assert.Equal(t, "/data/bin", cfg.BinDir)
	assert.Equal(t, "/etc/fstab", cfg.FstabFile)
	assert.Equal(t, "/etc/security/limits.conf", cfg.LimitsFile)
	assert.Equal(t, "nvme0n1", cfg.Profiles.Cloudlab.Device)
	assert.NotEmpty(t, cfg.Profiles.Adsl.PCIeByHost)
	assert.NotEmpty(t, cfg.Packages)
	assert.NotEmpty(t, cfg.Deps)
	assert.Greater(t, cfg.Jobs, 0)
	// The SSD parameters have no defaults outside a profile.
	assert.Empty(t, cfg.SSDName)
	assert.Empty(t, cfg.SSDPCIeAddr)
}

func TestLoadDefaultsMarkSPDKFatal(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	var fatal []string
	for _, d := range cfg.Deps {
		if d.Fatal {
			fatal = append(fatal, d.Name)
		}
	}
	// Only the storage driver toolkit build aborts installation; the
	// other dependency builds are best-effort.
	assert.Equal(t, []string{"spdk"}, fatal)
}

func TestLoadYAMLOverlay(t *testing.T) {
	yamlContent := `
workspace: /ssd
jobs: 4
packages: [git, cmake]
profiles:
  cloudlab:
    device: nvme2n1
`
	path := filepath.Join(t.TempDir(), "aectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/ssd", cfg.Workspace)
	assert.Equal(t, 4, cfg.Jobs)
	assert.Equal(t, []string{"git", "cmake"}, cfg.Packages)
	assert.Equal(t, "nvme2n1", cfg.Profiles.Cloudlab.Device)
	// Derived paths follow the overlaid workspace.
	assert.Equal(t, "/ssd/results", cfg.DataDir)
	assert.Equal(t, "/ssd/bin", cfg.BinDir)
}

func TestLoadYAMLMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/aectl.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.Workspace)
}

func TestLoadYAMLInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{{not yaml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AE_WORKSPACE", "/mnt/ws")
	t.Setenv("AE_DATA_DIR", "/mnt/out")
	t.Setenv("AE_JOBS", "12")
	t.Setenv("AE_SSD_NAME", "nvme3n1")
	t.Setenv("AE_SSD_PICE_ADDR", "0000:17:00.0")
	t.Setenv("AE_SYS_BRANCH", "dev")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/mnt/ws", cfg.Workspace)
	assert.Equal(t, "/mnt/out", cfg.DataDir)
	assert.Equal(t, 12, cfg.Jobs)
	assert.Equal(t, "nvme3n1", cfg.SSDName)
	assert.Equal(t, "0000:17:00.0", cfg.SSDPCIeAddr)
	assert.Equal(t, "dev", cfg.SysRepo.Branch)
	// Unset derived fields follow the overridden workspace.
	assert.Equal(t, "/mnt/ws/bin", cfg.BinDir)
}

func TestEnvOverrideBadJobsIgnored(t *testing.T) {
	t.Setenv("AE_JOBS", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Greater(t, cfg.Jobs, 0)
}

func TestHelperPaths(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/sys", cfg.SysDir())
	assert.Equal(t, "/data/bench", cfg.BenchDir())
	assert.Equal(t, "/data/deps/spdk", cfg.DepDir("spdk"))
}

package config

// Repo identifies a git repository checkout used by the evaluation:
// the storage system under test and the benchmark suite.
type Repo struct {
	URL    string `yaml:"url"`
	Branch string `yaml:"branch"`
}

// DepBuild describes one external dependency project that the install
// stage clones and builds from source.
// - Build holds shell lines executed in order inside the checkout; the
//   literal token {jobs} is replaced with the configured parallelism.
// - Fatal marks builds whose failure aborts the install stage. Everything
//   else is best-effort: the error is logged and installation continues.
type DepBuild struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Branch string   `yaml:"branch"`
	Build  []string `yaml:"build"`
	Fatal  bool     `yaml:"fatal"`
}

// CloudlabProfile holds the fixed hardware defaults for CloudLab nodes.
type CloudlabProfile struct {
	Device   string `yaml:"device"`    // SSD block device name, e.g. nvme0n1
	PCIeAddr string `yaml:"pcie_addr"` // SSD PCIe address, e.g. 0000:c5:00.0
}

// AdslProfile holds the defaults for the lab's own machines. The PCIe
// address differs per machine, so it is keyed by hostname; an unknown
// hostname is a fatal configuration error unless AE_SSD_PICE_ADDR is set.
// SkipPackages and SkipDeps list what is assumed pre-installed there.
type AdslProfile struct {
	Device       string            `yaml:"device"`
	PCIeByHost   map[string]string `yaml:"pcie_by_host"`
	SkipPackages []string          `yaml:"skip_packages"`
	SkipDeps     []string          `yaml:"skip_deps"`
}

// Profiles groups the per-machine-class defaults. The `other` profile
// has no defaults on purpose: its device and PCIe address must come from
// the ambient environment.
type Profiles struct {
	Cloudlab CloudlabProfile `yaml:"cloudlab"`
	Adsl     AdslProfile     `yaml:"adsl"`
}

// Config is the immutable configuration for one invocation. It is built
// exactly once by Load (compiled-in defaults, optional YAML overlay,
// AE_* environment overrides) and passed explicitly to every component;
// nothing outside Load reads the ambient environment.
type Config struct {
	// Paths.
	Workspace  string `yaml:"workspace"`   // workspace root; mount target on cloudlab
	DataDir    string `yaml:"data_dir"`    // top-level benchmark data directory
	BinDir     string `yaml:"bin_dir"`     // build-output binaries
	EnvFile    string `yaml:"env_file"`    // persisted environment profile (sourced by the shell)
	FstabFile  string `yaml:"fstab_file"`  // system fixed-mount table
	LimitsFile string `yaml:"limits_file"` // resource limit configuration

	// Storage engine paths exported for the delegate scripts.
	EngineMount string `yaml:"engine_mount"`
	EngineData  string `yaml:"engine_data"`

	// Repositories.
	SysRepo   Repo `yaml:"sys_repo"`
	BenchRepo Repo `yaml:"bench_repo"`

	// SSD parameters. Empty unless overridden by the environment; the
	// profile resolver fills in machine defaults where they exist.
	SSDName     string `yaml:"ssd_name"`
	SSDPCIeAddr string `yaml:"ssd_pcie_addr"`

	Profiles Profiles `yaml:"profiles"`

	// Install stage data.
	Jobs        int        `yaml:"jobs"`
	Packages    []string   `yaml:"packages"`
	PipPackages []string   `yaml:"pip_packages"`
	Deps        []DepBuild `yaml:"deps"`
	MinCmake    string     `yaml:"min_cmake"`
	MinGCC      string     `yaml:"min_gcc"`

	// Configure stage data.
	Limits []string `yaml:"limits"`

	// Post-reboot data.
	HugeMemMB  int `yaml:"hugemem_mb"`
	CPUFreqKHz int `yaml:"cpufreq_khz"`

	// Pre-run cleanup data.
	KillProcs []string `yaml:"kill_procs"`
	ShmGlob   string   `yaml:"shm_glob"`
}

// SysDir is the checkout location of the storage system under test.
func (c *Config) SysDir() string { return c.Workspace + "/sys" }

// BenchDir is the checkout location of the benchmark suite.
func (c *Config) BenchDir() string { return c.Workspace + "/bench" }

// DepDir is the checkout location of one external dependency build.
func (c *Config) DepDir(name string) string { return c.Workspace + "/deps/" + name }

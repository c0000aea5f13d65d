package profile

import (
	"fmt"
	"os"

	"aectl/internal/config"
	"aectl/internal/logger"
)

// Valid profile tokens. A profile is a machine-class identifier that
// selects the hardware defaults every provisioning stage depends on.
const (
	Cloudlab = "cloudlab"
	Adsl     = "adsl"
	Other    = "other"
)

// Profile is the resolved machine profile: the SSD parameters plus the
// install exceptions for this machine class. It is resolved once per
// invocation and passed explicitly to the stage engine.
type Profile struct {
	Name     string
	Device   string // SSD block device name, e.g. nvme0n1
	PCIeAddr string // SSD PCIe address, e.g. 0000:c5:00.0

	// Install exceptions: packages and dependency builds assumed
	// pre-installed on this machine class.
	SkipPackages []string
	SkipDeps     []string

	// BestEffortInit relaxes the init step list to logged-and-continue.
	// Set for `other`: on an unknown machine any individual step may
	// reasonably fail without invalidating the rest of provisioning.
	BestEffortInit bool
}

// DevicePath is the device node for the profile's SSD.
func (p *Profile) DevicePath() string { return "/dev/" + p.Device }

// Test hooks. Resolution depends on the hostname (adsl) and on device
// nodes existing (other); tests substitute these.
var (
	osHostname   = os.Hostname
	deviceExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}
)

// Resolve maps a profile token to a Profile, or fails with a
// configuration error before any side effect. cfg supplies the machine
// tables and any AE_SSD_NAME / AE_SSD_PICE_ADDR overrides; overrides
// always win over machine defaults.
func Resolve(token string, cfg *config.Config) (*Profile, error) {
	switch token {
	case Cloudlab:
		p := &Profile{
			Name:     Cloudlab,
			Device:   cfg.Profiles.Cloudlab.Device,
			PCIeAddr: cfg.Profiles.Cloudlab.PCIeAddr,
		}
		applyOverrides(p, cfg)
		return p, nil

	case Adsl:
		p := &Profile{
			Name:         Adsl,
			Device:       cfg.Profiles.Adsl.Device,
			SkipPackages: cfg.Profiles.Adsl.SkipPackages,
			SkipDeps:     cfg.Profiles.Adsl.SkipDeps,
		}
		applyOverrides(p, cfg)
		if p.PCIeAddr == "" {
			host, err := osHostname()
			if err != nil {
				return nil, fmt.Errorf("failed to read hostname for adsl profile: %w", err)
			}
			addr, ok := cfg.Profiles.Adsl.PCIeByHost[host]
			if !ok {
				// Deliberately a hard failure, not a fallback to
				// other-style resolution: a mistyped hostname silently
				// benchmarking the wrong SSD is worse than stopping.
				return nil, fmt.Errorf("unknown adsl host %q: no PCIe address on record, set AE_SSD_PICE_ADDR to override", host)
			}
			p.PCIeAddr = addr
		}
		return p, nil

	case Other:
		// No defaults on an unknown machine: both values must come from
		// the environment, and the device must actually exist.
		if cfg.SSDName == "" {
			return nil, fmt.Errorf("profile other requires AE_SSD_NAME to name the benchmark SSD")
		}
		if cfg.SSDPCIeAddr == "" {
			return nil, fmt.Errorf("profile other requires AE_SSD_PICE_ADDR to name the SSD PCIe address")
		}
		p := &Profile{
			Name:           Other,
			Device:         cfg.SSDName,
			PCIeAddr:       cfg.SSDPCIeAddr,
			BestEffortInit: true,
		}
		if !deviceExists(p.DevicePath()) {
			return nil, fmt.Errorf("device %s not found: AE_SSD_NAME=%s does not name an existing block device", p.DevicePath(), cfg.SSDName)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown machine profile %q (expected cloudlab, adsl or other)", token)
	}
}

// applyOverrides lets AE_SSD_NAME / AE_SSD_PICE_ADDR (already folded
// into cfg) override the machine-class defaults.
func applyOverrides(p *Profile, cfg *config.Config) {
	if cfg.SSDName != "" {
		logger.Debug("[DEBUG] SSD device overridden to %s\n", cfg.SSDName)
		p.Device = cfg.SSDName
	}
	if cfg.SSDPCIeAddr != "" {
		logger.Debug("[DEBUG] SSD PCIe address overridden to %s\n", cfg.SSDPCIeAddr)
		p.PCIeAddr = cfg.SSDPCIeAddr
	}
}

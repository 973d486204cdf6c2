// Package config loads the developer-override switches (§6.3): the
// global padding kill switch, a restricted-middle-node testing bypass,
// and overrides for the overhead governor's compiled-in caps.
//
// Config is stored at $XDG_CONFIG_HOME/circpad/overrides.yaml (defaults
// to ~/.config/circpad/overrides.yaml), following the reference CLI's
// own Path()/Load()/Save() shape for its daemon-context file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Overrides holds the §6.3 developer switches. These are never
// negotiated or advertised on the wire — they only shape how this
// host's own activation controller and overhead governor behave.
type Overrides struct {
	// PaddingEnabled is the global kill switch. It is enforced by the
	// host program (circpadsim skips its whole replay when it is false);
	// the activation controller does not read it.
	PaddingEnabled bool `yaml:"padding-enabled"`

	// RestrictedMiddleNodes lists hop fingerprints or CIDRs that bypass
	// the §6.2 subprotocol support check when installing a machine.
	// Testing only — production deployments should leave this empty.
	RestrictedMiddleNodes []string `yaml:"restricted-middle-nodes,omitempty"`

	// GlobalAllowedBurst and GlobalMaxPercent override the overhead
	// governor's compiled-in defaults (overhead.DefaultGlobalBurst,
	// overhead.DefaultGlobalMaxPercent) when non-nil.
	GlobalAllowedBurst *uint64  `yaml:"global-allowed-burst,omitempty"`
	GlobalMaxPercent   *float64 `yaml:"global-max-percent,omitempty"`
}

// defaultOverrides is what Load returns when no file exists yet.
func defaultOverrides() *Overrides {
	return &Overrides{PaddingEnabled: true}
}

// Path returns the overrides file location. It respects
// XDG_CONFIG_HOME, falling back to ~/.config/circpad/overrides.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "circpad", "overrides.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "circpad", "overrides.yaml")
}

// Load reads the overrides file. If the file does not exist, the
// defaults (padding enabled, no overrides) are returned, not an error.
func Load() (*Overrides, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultOverrides(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultOverrides()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the overrides to disk, creating directories as needed.
func (o *Overrides) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// BypassesSupportCheck reports whether hop is listed under
// RestrictedMiddleNodes and should therefore skip the §6.2 subprotocol
// support probe: either an entry equals it exactly, or it is an IP
// address inside an entry written as a CIDR.
func (o *Overrides) BypassesSupportCheck(hopFingerprint string) bool {
	ip := net.ParseIP(hopFingerprint)
	for _, entry := range o.RestrictedMiddleNodes {
		if entry == hopFingerprint {
			return true
		}
		if ip != nil {
			if _, subnet, err := net.ParseCIDR(entry); err == nil && subnet.Contains(ip) {
				return true
			}
		}
	}
	return false
}

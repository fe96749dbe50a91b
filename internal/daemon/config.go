// Package daemon assembles a complete zold node: configuration, the
// Wallets/Farm/Remotes/Entrance subsystems, the HTTP front, and the
// metronome (§6 "Configuration options").
package daemon

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the Node entry's full configuration, loaded from a TOML file
// and overridable by CLI flags in cmd/zoldnode (§6 "Configuration
// options").
type Config struct {
	Node    NodeConfig    `toml:"node"`
	Farm    FarmConfig    `toml:"farm"`
	Remotes RemotesConfig `toml:"remotes"`
	Front   FrontConfig   `toml:"front"`
}

// NodeConfig holds the identity and persistence-root options.
type NodeConfig struct {
	Invoice  string `toml:"invoice"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	BindPort int    `toml:"bind_port"`
	Home     string `toml:"home"`
	Network  string `toml:"network"`
}

// FarmConfig holds the Score engine options.
type FarmConfig struct {
	Threads  int `toml:"threads"`
	Strength int `toml:"strength"`
}

// RemotesConfig holds peer-registry behavior options.
type RemotesConfig struct {
	Standalone          bool `toml:"standalone"`
	IgnoreScoreWeakness bool `toml:"ignore_score_weakness"`
	NeverReboot         bool `toml:"never_reboot"`
}

// FrontConfig holds HTTP front options.
type FrontConfig struct {
	Halt string `toml:"halt"`
}

// DefaultConfig returns the Node entry's baseline configuration before a
// config file or CLI flags are applied.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			Host:    "localhost",
			Port:    4096,
			Home:    "~/.zold",
			Network: "test",
		},
		Farm: FarmConfig{
			Threads:  4,
			Strength: 6,
		},
	}
}

// Load reads path as TOML into a Config seeded with DefaultConfig's
// values, so an incomplete config file still yields sane fallbacks.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

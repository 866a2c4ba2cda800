package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// GenesisAlloc funds an account when the data directory is bootstrapped for
// the first time. Amounts are decimal strings so large balances survive TOML
// round-trips.
type GenesisAlloc struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	ListenAddress string         `toml:"ListenAddress"`
	DataDir       string         `toml:"DataDir"`
	NetworkName   string         `toml:"NetworkName"`
	Env           string         `toml:"Env"`
	RPCToken      string         `toml:"RPCToken"`
	GenesisAlloc  []GenesisAlloc `toml:"GenesisAlloc"`
}

// Load loads the configuration from the given path, creating a commented
// default file when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./streamvault-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "streamvault-local"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
	if cfg.GenesisAlloc == nil {
		cfg.GenesisAlloc = []GenesisAlloc{}
	}
}

func validate(cfg *Config) error {
	for i, alloc := range cfg.GenesisAlloc {
		if strings.TrimSpace(alloc.Address) == "" {
			return fmt.Errorf("config: genesis allocation %d has no address", i)
		}
		if strings.TrimSpace(alloc.Token) == "" {
			return fmt.Errorf("config: genesis allocation %d has no token", i)
		}
		if strings.TrimSpace(alloc.Amount) == "" {
			return fmt.Errorf("config: genesis allocation %d has no amount", i)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

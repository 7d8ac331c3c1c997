package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	GenesisFile   string `toml:"GenesisFile"`
	Environment   string `toml:"Environment"`

	Logging   Logging   `toml:"logging"`
	Commerce  Commerce  `toml:"commerce"`
	RPC       RPC       `toml:"rpc"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists. Unknown keys are rejected so typos surface at boot.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for a fresh local node.
func Default() *Config {
	return &Config{
		ListenAddress: ":8545",
		DataDir:       "./ecom-data",
		Environment:   "local",
		Logging: Logging{
			Level: "info",
		},
		Commerce: Commerce{
			RecordDeposit:        0,
			RefundTimeoutSeconds: int64((7 * 24 * time.Hour) / time.Second),
			AuditIntervalSeconds: 60,
			PausedModules:        []string{},
		},
		RPC: RPC{
			Issuer:             "ecomchain",
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			ReadTimeoutSeconds: 15,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
		Indexer: Indexer{
			Driver: "sqlite",
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

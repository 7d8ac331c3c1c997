package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Commerce.RefundTimeout() != 7*24*time.Hour {
		t.Fatalf("unexpected refund timeout: %s", cfg.Commerce.RefundTimeout())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if again.ListenAddress != cfg.ListenAddress || again.DataDir != cfg.DataDir {
		t.Fatalf("reloaded config differs: %+v", again)
	}
}

func TestLoadParsesCommerceSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
Environment = "staging"

[commerce]
RecordDeposit = 25
RefundTimeoutSeconds = 3600
AllowForceClose = true
PausedModules = ["order"]
AuditIntervalSeconds = 30

[rpc]
JWTSecret = "file-secret"
JWTSecretEnv = "ECOM_TEST_JWT"
RateLimitPerSecond = 5.5
RateLimitBurst = 10

[indexer]
Driver = "postgres"
DSN = "host=localhost"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Commerce.RecordDeposit != 25 || !cfg.Commerce.AllowForceClose {
		t.Fatalf("commerce section not parsed: %+v", cfg.Commerce)
	}
	if cfg.Commerce.RefundTimeout() != time.Hour || cfg.Commerce.AuditInterval() != 30*time.Second {
		t.Fatalf("durations not parsed: %+v", cfg.Commerce)
	}
	if len(cfg.Commerce.PausedModules) != 1 || cfg.Commerce.PausedModules[0] != "order" {
		t.Fatalf("paused modules not parsed: %v", cfg.Commerce.PausedModules)
	}
	if cfg.RPC.Secret() != "file-secret" {
		t.Fatalf("expected file secret, got %q", cfg.RPC.Secret())
	}
	t.Setenv("ECOM_TEST_JWT", "env-secret")
	if cfg.RPC.Secret() != "env-secret" {
		t.Fatalf("expected env secret, got %q", cfg.RPC.Secret())
	}
	// Defaults survive for sections the file omits.
	if cfg.Telemetry.Endpoint != "localhost:4318" {
		t.Fatalf("telemetry default lost: %+v", cfg.Telemetry)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("DataDir = \"./data\"\nValidatorKey = \"abc\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"refund timeout": func(c *Config) { c.Commerce.RefundTimeoutSeconds = 0 },
		"paused module":  func(c *Config) { c.Commerce.PausedModules = []string{"lending"} },
		"driver":         func(c *Config) { c.Indexer.Driver = "mysql" },
		"data dir":       func(c *Config) { c.DataDir = " " },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

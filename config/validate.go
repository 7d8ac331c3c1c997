package config

import (
	"fmt"
	"os"
	"strings"

	"ecomchain/native/common"
)

var knownModules = map[string]struct{}{
	common.ModulePayment: {},
	common.ModuleEscrow:  {},
	common.ModuleOrder:   {},
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if c.Commerce.RefundTimeoutSeconds <= 0 {
		return fmt.Errorf("commerce: RefundTimeoutSeconds must be positive")
	}
	if c.Commerce.AuditIntervalSeconds < 0 {
		return fmt.Errorf("commerce: AuditIntervalSeconds must not be negative")
	}
	for _, module := range c.Commerce.PausedModules {
		if _, ok := knownModules[module]; !ok {
			return fmt.Errorf("commerce: unknown paused module %q", module)
		}
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	switch strings.ToLower(c.Indexer.Driver) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
	}
	return nil
}

// Secret resolves the signing secret, preferring the environment variable
// when one is named.
func (r RPC) Secret() string {
	if env := strings.TrimSpace(r.JWTSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return r.JWTSecret
}

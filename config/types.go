package config

import "time"

// Logging controls the structured log sink.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Commerce holds the escrow engine policy knobs.
type Commerce struct {
	// RecordDeposit is charged per created record and returned on close.
	RecordDeposit        uint64   `toml:"RecordDeposit"`
	RefundTimeoutSeconds int64    `toml:"RefundTimeoutSeconds"`
	AllowForceClose      bool     `toml:"AllowForceClose"`
	PausedModules        []string `toml:"PausedModules"`
	AuditIntervalSeconds int64    `toml:"AuditIntervalSeconds"`
}

// RefundTimeout returns the refund delay as a duration.
func (c Commerce) RefundTimeout() time.Duration {
	return time.Duration(c.RefundTimeoutSeconds) * time.Second
}

// AuditInterval returns the vault audit period. Zero disables the monitor.
func (c Commerce) AuditInterval() time.Duration {
	return time.Duration(c.AuditIntervalSeconds) * time.Second
}

// RPC configures the JSON-RPC endpoint.
type RPC struct {
	JWTSecret          string  `toml:"JWTSecret"`
	JWTSecretEnv       string  `toml:"JWTSecretEnv"`
	Issuer             string  `toml:"Issuer"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	ReadTimeoutSeconds int     `toml:"ReadTimeoutSeconds"`
}

// ReadTimeout returns the request read timeout as a duration.
func (r RPC) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutSeconds) * time.Second
}

// Telemetry configures OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Indexer configures the optional SQL event index. An empty DSN disables it.
type Indexer struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

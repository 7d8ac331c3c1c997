package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ecomchain/config"
	"ecomchain/core"
	"ecomchain/core/genesis"
	"ecomchain/observability/logging"
	ecomotel "ecomchain/observability/otel"
	"ecomchain/rpc"
	"ecomchain/services/indexer"
	"ecomchain/storage"
)

const (
	serviceName       = "ecomd"
	genesisPathEnv    = "ECOM_GENESIS"
	indexSyncInterval = 30 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides ECOM_GENESIS and config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		fmt.Fprintf(os.Stderr, "ecomd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, genesisFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("ECOM_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup(serviceName, env, logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Level:      logging.ParseLevel(cfg.Logging.Level),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := ecomotel.Init(ctx, ecomotel.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     ecomotel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if path := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv); path != "" {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
		applied, err := genesis.Apply(spec, db)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis checked", slog.String("path", path), slog.Bool("applied", applied), slog.Int("accounts", len(spec.Allocations())))
	}

	node := core.NewNode(db, core.Params{
		RecordDeposit:   cfg.Commerce.RecordDeposit,
		RefundTimeout:   cfg.Commerce.RefundTimeout(),
		AllowForceClose: cfg.Commerce.AllowForceClose,
		PausedModules:   cfg.Commerce.PausedModules,
	}, logger)
	defer node.Close()

	serverCfg := rpc.ServerConfig{
		JWTSecret:          cfg.RPC.Secret(),
		Issuer:             cfg.RPC.Issuer,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		ReadTimeout:        cfg.RPC.ReadTimeout(),
	}
	if strings.TrimSpace(cfg.Indexer.DSN) != "" {
		store, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer store.Close()
		syncer := indexer.NewSyncer(store, node, logger)
		node.AddEventSink(syncer)
		go syncer.Run(ctx, indexSyncInterval)
		serverCfg.Events = store
		logger.Info("event indexer enabled", slog.String("driver", cfg.Indexer.Driver))
	}
	if serverCfg.JWTSecret == "" {
		logger.Warn("RPC signing secret not configured; mutating methods are disabled")
	}

	if interval := cfg.Commerce.AuditInterval(); interval > 0 {
		go node.RunAuditor(ctx, interval)
	}

	server := rpc.NewServer(node, serverCfg, logger)
	if err := server.Serve(ctx, cfg.ListenAddress); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(configValue)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"minDex/internal/config"
	"minDex/internal/dex"
	"minDex/internal/metrics"
	"minDex/internal/sim"
	"minDex/internal/storage"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runCfg := sim.RunConfig{FailFast: cfg.FailFast}
	for _, field := range []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"pool", cfg.PoolAddress, &runCfg.PoolAddress},
		{"factory", cfg.Factory, &runCfg.Factory},
		{"asset-a", cfg.AssetA, &runCfg.AssetA},
		{"asset-b", cfg.AssetB, &runCfg.AssetB},
	} {
		addr, err := parseAddress(field.name, field.value)
		if err != nil {
			return err
		}
		*field.dst = addr
	}
	if cfg.StartTime > 0 {
		runCfg.StartTime = time.Unix(cfg.StartTime, 0)
	}

	steps, err := sim.ReadScriptFile(cfg.Script)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openBackends(ctx, cfg.Store, runCfg.PoolAddress)
	if err != nil {
		return err
	}
	defer stores.Close()

	sinks := storage.MultiSink{}
	if cfg.EventsOut != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.EventsOut))
	}
	if stores.events != nil {
		sinks = append(sinks, stores.events)
	}
	if cfg.EventsDB {
		sinks = append(sinks, &storage.DBEventLog{Store: stores.pg, Address: runCfg.PoolAddress.Hex()})
	}
	encoder, err := dex.NewEncoder(cfg.ChainID)
	if err != nil {
		return err
	}
	events := dex.EncodingSink{Encoder: encoder, Next: sinks}

	registry := prometheus.NewRegistry()
	poolMetrics := metrics.NewPoolMetrics(registry)

	runner, err := sim.NewRunner(runCfg, events, stores.state, poolMetrics, logger)
	if err != nil {
		return err
	}
	resumed := false
	if cfg.Resume {
		if resumed, err = runner.Resume(ctx); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
	}
	// a fresh run restarts sequence numbers, so older events would collide
	if !resumed {
		if err := sinks.ResetEvents(ctx); err != nil {
			return fmt.Errorf("reset events: %w", err)
		}
	}

	logger.Info("simulate start",
		zap.String("script", cfg.Script),
		zap.Int("steps", len(steps)),
		zap.String("pool", runCfg.PoolAddress.Hex()),
		zap.String("state_backend", cfg.Store.Backend),
		zap.Bool("resumed", resumed),
		zap.String("events_out", cfg.EventsOut),
	)

	summary, err := runner.Run(ctx, steps)
	if err != nil {
		return err
	}

	if cfg.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsOut, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "steps=%d committed=%d rejected=%d\n", summary.Steps, summary.Committed, summary.Rejected)
	printSnapshot(out, summary.Snapshot)
	return nil
}

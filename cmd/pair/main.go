package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"minDex/internal/config"
	"minDex/internal/storage"
	"minDex/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "pair",
		Short:        "Constant-product pair simulator and price oracle tools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a JSONL script of pool operations",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("script", "", "input script JSONL")
	simulateCmd.Flags().String("pool", "", "pool address")
	simulateCmd.Flags().String("factory", "", "factory address allowed to initialize the pool")
	simulateCmd.Flags().String("asset-a", "", "asset A identity")
	simulateCmd.Flags().String("asset-b", "", "asset B identity")
	simulateCmd.Flags().Int64("start-time", 0, "simulated start time (unix seconds), 0 means now")
	simulateCmd.Flags().Bool("fail-fast", false, "stop at the first unexpected rejection")
	simulateCmd.Flags().Bool("resume", false, "continue from the stored snapshot; otherwise stored events of the pool are cleared")
	simulateCmd.Flags().Uint64("chain-id", 31337, "chain id stamped on encoded logs")
	simulateCmd.Flags().String("events-out", "./data/events.jsonl", "output events JSONL, empty disables")
	simulateCmd.Flags().Bool("events-db", false, "also write events to Postgres (requires pg-dsn)")
	simulateCmd.Flags().String("metrics-out", "", "write Prometheus metrics to this file after the run")
	addStoreFlags(simulateCmd)
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize recorded events and the persisted pool snapshot",
		RunE:  runInspect,
	}

	inspectCmd.Flags().String("events", "./data/events.jsonl", "events JSONL written by simulate, empty skips")
	inspectCmd.Flags().String("pool", "", "pool address")
	inspectCmd.Flags().Int("limit", 20, "number of trailing events to print")
	inspectCmd.Flags().Duration("window", 0, "aggregate events into windows of this size (e.g. 1m, 1h), 0 disables")
	addStoreFlags(inspectCmd)
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(inspectCmd)

	twapCmd := &cobra.Command{
		Use:   "twap",
		Short: "Compute the time-weighted average price of a deployed pair",
		RunE:  runTwap,
	}

	twapCmd.Flags().String("rpc", "", "RPC URL")
	twapCmd.Flags().String("pair", "", "pair contract address")
	twapCmd.Flags().Uint64("from", 0, "window start block, 0 samples the latest block twice")
	twapCmd.Flags().Uint64("to", 0, "window end block, 0 means latest")
	twapCmd.Flags().Duration("interval", time.Minute, "wait between samples of the latest block")
	twapCmd.Flags().Int("precision", 8, "decimal places of reported prices")
	twapCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	twapCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	twapCmd.Flags().String("pg-dsn", "", "Postgres DSN, stores the window when set")
	twapCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(twapCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("state-backend", config.BackendFile, "snapshot store (none, file, leveldb, postgres)")
	cmd.Flags().String("state-path", "./data/state.json", "snapshot file or leveldb directory")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func parseAddress(name, input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", name, input)
	}
	return common.HexToAddress(input), nil
}

// backends holds the stores opened for one command run.
type backends struct {
	state   storage.StateStore
	events  storage.EventSink
	pg      *postgres.Store
	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends opens the snapshot store for the pool and, when it can also
// hold events, exposes it as an event sink.
func openBackends(ctx context.Context, cfg config.StoreConfig, pool common.Address) (*backends, error) {
	b := &backends{}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		b.pg = store
	}

	switch cfg.Backend {
	case config.BackendFile:
		b.state = &storage.FileStateStore{Path: cfg.Path}
	case config.BackendLevelDB:
		db, err := storage.OpenLevelDB(cfg.Path, pool)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		b.state = db
		b.events = db
	case config.BackendPostgres:
		b.state = &storage.DBStateStore{Store: b.pg, Address: pool.Hex()}
	}
	return b, nil
}

package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Script      string
	PoolAddress string
	Factory     string
	AssetA      string
	AssetB      string
	// StartTime is a unix timestamp; zero means now.
	StartTime int64
	FailFast  bool
	// Resume continues from the stored snapshot instead of starting fresh.
	Resume     bool
	ChainID    uint64
	EventsOut  string
	EventsDB   bool
	MetricsOut string
	Store      StoreConfig
	LogLevel   string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"pool":          "0x00000000000000000000000000000000000000F1",
		"factory":       "0x00000000000000000000000000000000000000F0",
		"asset-a":       "0x00000000000000000000000000000000000000A1",
		"asset-b":       "0x00000000000000000000000000000000000000B1",
		"chain-id":      uint64(31337),
		"events-out":    "./data/events.jsonl",
		"state-backend": BackendFile,
		"state-path":    "./data/state.json",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Script:      v.GetString("script"),
		PoolAddress: v.GetString("pool"),
		Factory:     v.GetString("factory"),
		AssetA:      v.GetString("asset-a"),
		AssetB:      v.GetString("asset-b"),
		StartTime:   v.GetInt64("start-time"),
		FailFast:    v.GetBool("fail-fast"),
		Resume:      v.GetBool("resume"),
		ChainID:     v.GetUint64("chain-id"),
		EventsOut:   v.GetString("events-out"),
		EventsDB:    v.GetBool("events-db"),
		MetricsOut:  v.GetString("metrics-out"),
		Store:       loadStore(v),
		LogLevel:    v.GetString("log-level"),
	}
	return cfg, nil
}

func (c SimulateConfig) Validate() error {
	if c.Script == "" {
		return fmt.Errorf("script is required")
	}
	if c.Resume && c.Store.Backend == BackendNone {
		return fmt.Errorf("resume requires a state backend")
	}
	if c.EventsDB && c.Store.PGDSN == "" {
		return fmt.Errorf("events-db requires pg-dsn")
	}
	return c.Store.Validate()
}

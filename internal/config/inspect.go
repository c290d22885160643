package config

import (
	"time"

	"github.com/spf13/pflag"
)

// InspectConfig holds configuration for the inspect command.
type InspectConfig struct {
	Events      string
	PoolAddress string
	Limit       int
	// Window groups events into fixed windows when positive.
	Window   time.Duration
	Store    StoreConfig
	LogLevel string
}

// LoadInspect merges config file, environment variables, and flags into InspectConfig.
func LoadInspect(cfgFile string, flags *pflag.FlagSet) (InspectConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"events":        "./data/events.jsonl",
		"pool":          "0x00000000000000000000000000000000000000F1",
		"limit":         20,
		"state-backend": BackendFile,
		"state-path":    "./data/state.json",
	})
	if err != nil {
		return InspectConfig{}, err
	}

	return InspectConfig{
		Events:      v.GetString("events"),
		PoolAddress: v.GetString("pool"),
		Limit:       v.GetInt("limit"),
		Window:      v.GetDuration("window"),
		Store:       loadStore(v),
		LogLevel:    v.GetString("log-level"),
	}, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// TwapConfig holds configuration for the twap command.
type TwapConfig struct {
	RPCURL    string
	Pair      string
	FromBlock uint64
	ToBlock   uint64
	// Interval is the wait between two samples of the latest block when
	// FromBlock is unset.
	Interval     time.Duration
	Precision    int
	MaxRetries   int
	RetryBackoff time.Duration
	PGDSN        string
	LogLevel     string
}

// LoadTwap merges config file, environment variables, and flags into TwapConfig.
func LoadTwap(cfgFile string, flags *pflag.FlagSet) (TwapConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"interval":      time.Minute,
		"precision":     8,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
	})
	if err != nil {
		return TwapConfig{}, err
	}

	return TwapConfig{
		RPCURL:       v.GetString("rpc"),
		Pair:         v.GetString("pair"),
		FromBlock:    v.GetUint64("from"),
		ToBlock:      v.GetUint64("to"),
		Interval:     v.GetDuration("interval"),
		Precision:    v.GetInt("precision"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		PGDSN:        v.GetString("pg-dsn"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

func (c TwapConfig) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if c.Pair == "" {
		return fmt.Errorf("pair is required")
	}
	if c.ToBlock > 0 && c.FromBlock >= c.ToBlock {
		return fmt.Errorf("from block must be below to block")
	}
	if c.FromBlock == 0 && c.Interval <= 0 {
		return fmt.Errorf("interval must be positive when sampling the latest block")
	}
	return nil
}

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PAIR"

// State backends.
const (
	BackendNone     = "none"
	BackendFile     = "file"
	BackendLevelDB  = "leveldb"
	BackendPostgres = "postgres"
)

// StoreConfig selects where pool snapshots are persisted.
type StoreConfig struct {
	Backend string
	// Path is the JSON file for the file backend and the database
	// directory for leveldb.
	Path  string
	PGDSN string
}

// Validate checks that the selected backend has what it needs.
func (s StoreConfig) Validate() error {
	switch s.Backend {
	case BackendNone:
		return nil
	case BackendFile, BackendLevelDB:
		if s.Path == "" {
			return fmt.Errorf("state-path is required for the %s backend", s.Backend)
		}
		return nil
	case BackendPostgres:
		if s.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown state backend %q", s.Backend)
	}
}

// newViper merges config file, environment variables, and flags. Flags win
// over env, env wins over the file.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func loadStore(v *viper.Viper) StoreConfig {
	return StoreConfig{
		Backend: strings.ToLower(strings.TrimSpace(v.GetString("state-backend"))),
		Path:    v.GetString("state-path"),
		PGDSN:   v.GetString("pg-dsn"),
	}
}

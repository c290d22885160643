package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func simulateFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	flags.String("script", "", "")
	flags.String("state-backend", BackendFile, "")
	flags.String("state-path", "./data/state.json", "")
	flags.String("pg-dsn", "", "")
	flags.Bool("fail-fast", false, "")
	flags.Bool("resume", false, "")
	flags.Int64("start-time", 0, "")
	return flags
}

func TestLoadSimulateDefaults(t *testing.T) {
	cfg, err := LoadSimulate("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 31337 {
		t.Fatalf("chain id mismatch: %d", cfg.ChainID)
	}
	if cfg.Store.Backend != BackendFile || cfg.Store.Path != "./data/state.json" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing script error")
	}
}

func TestLoadSimulateFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PAIR_STATE_BACKEND", "leveldb")
	t.Setenv("PAIR_STATE_PATH", "/tmp/from-env")

	flags := simulateFlags()
	if err := flags.Parse([]string{"--script", "swap.jsonl", "--state-path", "/tmp/from-flag", "--fail-fast"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadSimulate("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != BackendLevelDB {
		t.Fatalf("env backend not applied: %q", cfg.Store.Backend)
	}
	if cfg.Store.Path != "/tmp/from-flag" {
		t.Fatalf("flag path not applied: %q", cfg.Store.Path)
	}
	if !cfg.FailFast || cfg.Script != "swap.jsonl" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestResumeNeedsStateBackend(t *testing.T) {
	flags := simulateFlags()
	if err := flags.Parse([]string{"--script", "swap.jsonl", "--resume", "--state-backend", "none"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := LoadSimulate("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Resume {
		t.Fatalf("resume flag not applied")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected resume without state backend to fail")
	}
}

func TestLoadTwapFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pair.yaml")
	content := "rpc: http://localhost:8545\npair: \"0x0000000000000000000000000000000000000001\"\ninterval: 30s\nfrom: 100\nto: 200\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadTwap(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Interval != 30*time.Second || cfg.FromBlock != 100 || cfg.ToBlock != 200 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Precision != 8 || cfg.MaxRetries != 5 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cfg.FromBlock = 300
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected inverted range error")
	}
}

func TestStoreConfigValidate(t *testing.T) {
	cases := []struct {
		store StoreConfig
		ok    bool
	}{
		{StoreConfig{Backend: BackendNone}, true},
		{StoreConfig{Backend: BackendFile, Path: "state.json"}, true},
		{StoreConfig{Backend: BackendLevelDB}, false},
		{StoreConfig{Backend: BackendPostgres}, false},
		{StoreConfig{Backend: BackendPostgres, PGDSN: "postgres://localhost/pair"}, true},
		{StoreConfig{Backend: "redis"}, false},
	}
	for _, tc := range cases {
		err := tc.store.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%+v: expected ok=%v, got %v", tc.store, tc.ok, err)
		}
	}
}

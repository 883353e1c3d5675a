package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Feed != FeedWS {
		t.Errorf("feed = %q, want %q", cfg.Feed, FeedWS)
	}
	if cfg.Iterations != 10 {
		t.Errorf("iterations = %d, want 10", cfg.Iterations)
	}
	if cfg.Journal != JournalJSONL {
		t.Errorf("journal = %q, want %q", cfg.Journal, JournalJSONL)
	}
	if cfg.SlippageBps != 50 {
		t.Errorf("slippage bps = %d, want 50", cfg.SlippageBps)
	}
	if cfg.RetryBackoff != 500*time.Millisecond {
		t.Errorf("retry backoff = %s, want 500ms", cfg.RetryBackoff)
	}
	if cfg.Execute {
		t.Errorf("execute defaults on, want off")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.LogLevel)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ARBBOT_RPC", "http://localhost:8545")
	t.Setenv("ARBBOT_LOG_LEVEL", "debug")
	t.Setenv("ARBBOT_POOL", "0xaa, 0xbb")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RPCURL != "http://localhost:8545" {
		t.Errorf("rpc = %q", cfg.RPCURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.Pools) != 2 || cfg.Pools[0] != "0xaa" || cfg.Pools[1] != "0xbb" {
		t.Errorf("pools = %v, want [0xaa 0xbb]", cfg.Pools)
	}
}

func TestLoadFlagOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("iterations", 10, "")
	flags.String("feed", FeedWS, "")
	if err := flags.Set("iterations", "25"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := flags.Set("feed", FeedJSONL); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Iterations != 25 {
		t.Errorf("iterations = %d, want 25", cfg.Iterations)
	}
	if cfg.Feed != FeedJSONL {
		t.Errorf("feed = %q, want %q", cfg.Feed, FeedJSONL)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		RPCURL:   "http://localhost:8545",
		Pools:    []string{"0xaa"},
		Feed:     FeedJSONL,
		FeedPath: "./prices.jsonl",
		Journal:  JournalNone,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc", func(c *Config) { c.RPCURL = "" }},
		{"no pools", func(c *Config) { c.Pools = nil }},
		{"unknown feed", func(c *Config) { c.Feed = "csv" }},
		{"ws without endpoint", func(c *Config) { c.Feed = FeedWS }},
		{"jsonl without path", func(c *Config) { c.FeedPath = "" }},
		{"unknown journal", func(c *Config) { c.Journal = "kafka" }},
		{"postgres without dsn", func(c *Config) { c.Journal = JournalPostgres }},
		{"execute without key", func(c *Config) { c.Execute = true }},
		{"execute without vault", func(c *Config) {
			c.Execute = true
			c.PrivateKey = "ab"
		}},
		{"slippage out of range", func(c *Config) {
			c.Execute = true
			c.PrivateKey = "ab"
			c.VaultAddress = "0xcc"
			c.SlippageBps = 10_000
		}},
	}
	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestBacktestValidate(t *testing.T) {
	valid := BacktestConfig{
		Feed:          FeedJSONL,
		In:            "./prices.jsonl",
		PoolFile:      "./pool.json",
		AssetInIndex:  0,
		AssetOutIndex: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*BacktestConfig)
	}{
		{"jsonl without in", func(c *BacktestConfig) { c.In = "" }},
		{"http without base url", func(c *BacktestConfig) { c.Feed = FeedHTTP }},
		{"no pool source", func(c *BacktestConfig) { c.PoolFile = "" }},
		{"equal indices", func(c *BacktestConfig) { c.AssetOutIndex = 0 }},
		{"negative index", func(c *BacktestConfig) { c.AssetInIndex = -1 }},
	}
	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestQuoteValidate(t *testing.T) {
	valid := QuoteConfig{
		RPCURL:        "http://localhost:8545",
		Pool:          "0xaa",
		AssetInIndex:  0,
		AssetOutIndex: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	offline := QuoteConfig{PoolFile: "./pool.json", AssetOutIndex: 1}
	if err := offline.Validate(); err != nil {
		t.Fatalf("offline config rejected: %v", err)
	}

	missing := QuoteConfig{AssetOutIndex: 1}
	if err := missing.Validate(); err == nil {
		t.Errorf("expected error without any pool source")
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"1700000000", 1700000000, false},
		{"2023-11-14T22:13:20Z", 1700000000, false},
		{"yesterday", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTimestamp(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

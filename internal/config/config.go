package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Feed and journal kinds accepted by the commands.
const (
	FeedWS    = "ws"
	FeedJSONL = "jsonl"
	FeedHTTP  = "http"

	JournalJSONL    = "jsonl"
	JournalPostgres = "postgres"
	JournalNone     = "none"
)

// Config holds configuration for the live bot, loaded from flags, env, or
// config file.
type Config struct {
	RPCURL       string
	VaultAddress string
	Pools        []string
	Assets       []string

	Feed         string
	FeedEndpoint string
	FeedPath     string

	Iterations  int
	MinAmountIn string
	Interval    time.Duration

	Journal   string
	Out       string
	PGDSN     string
	StateName string

	Execute     bool
	PrivateKey  string
	SlippageBps int64

	APIAddr          string
	Netwatch         bool
	NetwatchInterval time.Duration

	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := newViper()

	v.SetDefault("feed", FeedWS)
	v.SetDefault("iterations", 10)
	v.SetDefault("min-amount-in", "0")
	v.SetDefault("journal", JournalJSONL)
	v.SetDefault("out", "./data/trades.jsonl")
	v.SetDefault("state-name", "arb-runner")
	v.SetDefault("slippage-bps", int64(50))
	v.SetDefault("netwatch-interval", 30*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		VaultAddress:     v.GetString("vault"),
		Pools:            stringsAt(v, "pool"),
		Assets:           stringsAt(v, "asset"),
		Feed:             v.GetString("feed"),
		FeedEndpoint:     v.GetString("feed-endpoint"),
		FeedPath:         v.GetString("feed-path"),
		Iterations:       v.GetInt("iterations"),
		MinAmountIn:      v.GetString("min-amount-in"),
		Interval:         v.GetDuration("interval"),
		Journal:          v.GetString("journal"),
		Out:              v.GetString("out"),
		PGDSN:            v.GetString("pg-dsn"),
		StateName:        v.GetString("state-name"),
		Execute:          v.GetBool("execute"),
		PrivateKey:       v.GetString("private-key"),
		SlippageBps:      v.GetInt64("slippage-bps"),
		APIAddr:          v.GetString("api-addr"),
		Netwatch:         v.GetBool("netwatch"),
		NetwatchInterval: v.GetDuration("netwatch-interval"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the field combinations the run command needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}

	switch c.Feed {
	case FeedWS:
		if c.FeedEndpoint == "" {
			return fmt.Errorf("feed-endpoint is required for the ws feed")
		}
		if len(c.Assets) == 0 {
			return fmt.Errorf("asset mappings are required for the ws feed")
		}
	case FeedJSONL:
		if c.FeedPath == "" {
			return fmt.Errorf("feed-path is required for the jsonl feed")
		}
	default:
		return fmt.Errorf("unknown feed kind %q", c.Feed)
	}

	switch c.Journal {
	case JournalJSONL:
		if c.Out == "" {
			return fmt.Errorf("out path is required for the jsonl journal")
		}
	case JournalPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres journal")
		}
	case JournalNone:
	default:
		return fmt.Errorf("unknown journal kind %q", c.Journal)
	}

	if c.Execute {
		if c.PrivateKey == "" {
			return fmt.Errorf("private-key is required when execute is enabled")
		}
		if c.VaultAddress == "" {
			return fmt.Errorf("vault address is required when execute is enabled")
		}
		if c.SlippageBps < 0 || c.SlippageBps >= 10_000 {
			return fmt.Errorf("slippage-bps must be in [0, 10000)")
		}
	}

	return nil
}

// newViper builds a viper instance with the shared env binding.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ARBBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// bindAndRead binds the flag set and reads the config file, tolerating a
// missing default file.
func bindAndRead(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// stringsAt reads a list-valued key whether viper saw a YAML list, a
// comma-separated env string, or repeated flag values, dropping blanks.
func stringsAt(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	var raw []string
	switch typed := v.Get(key).(type) {
	case []string:
		raw = typed
	case string:
		raw = strings.Split(typed, ",")
	case []interface{}:
		raw = make([]string, 0, len(typed))
		for _, item := range typed {
			raw = append(raw, fmt.Sprintf("%v", item))
		}
	}

	var out []string
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// BacktestConfig holds configuration for the backtest command.
type BacktestConfig struct {
	Feed    string
	In      string
	BaseURL string
	Assets  []string
	From    string
	To      string
	Chunk   time.Duration
	Bucket  time.Duration
	Cache   string

	RPCURL   string
	Pool     string
	Block    uint64
	PoolFile string

	AssetInIndex  int
	AssetOutIndex int
	Iterations    int
	MinAmountIn   string

	Out    string
	Report string
	Fills  bool

	Checkpoint        string
	CheckpointEnabled bool
	CheckpointEvery   int

	LogLevel string
}

// LoadBacktest merges config file, environment variables, and flags into
// BacktestConfig.
func LoadBacktest(cfgFile string, flags *pflag.FlagSet) (BacktestConfig, error) {
	v := newViper()

	v.SetDefault("feed", FeedJSONL)
	v.SetDefault("chunk", 24*time.Hour)
	v.SetDefault("bucket", time.Minute)
	v.SetDefault("asset-in", 0)
	v.SetDefault("asset-out", 1)
	v.SetDefault("iterations", 10)
	v.SetDefault("min-amount-in", "0")
	v.SetDefault("out", "./data/backtest_trades.jsonl")
	v.SetDefault("report", "./data/backtest_report.json")
	v.SetDefault("checkpoint", "./data/backtest_checkpoint.json")
	v.SetDefault("checkpoint-enabled", false)
	v.SetDefault("checkpoint-every", 100)
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return BacktestConfig{}, err
	}

	cfg := BacktestConfig{
		Feed:              v.GetString("feed"),
		In:                v.GetString("in"),
		BaseURL:           v.GetString("base-url"),
		Assets:            stringsAt(v, "asset"),
		From:              v.GetString("from"),
		To:                v.GetString("to"),
		Chunk:             v.GetDuration("chunk"),
		Bucket:            v.GetDuration("bucket"),
		Cache:             v.GetString("cache"),
		RPCURL:            v.GetString("rpc"),
		Pool:              v.GetString("pool"),
		Block:             v.GetUint64("block"),
		PoolFile:          v.GetString("pool-file"),
		AssetInIndex:      v.GetInt("asset-in"),
		AssetOutIndex:     v.GetInt("asset-out"),
		Iterations:        v.GetInt("iterations"),
		MinAmountIn:       v.GetString("min-amount-in"),
		Out:               v.GetString("out"),
		Report:            v.GetString("report"),
		Fills:             v.GetBool("fills"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		CheckpointEvery:   v.GetInt("checkpoint-every"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the field combinations the backtest command needs.
func (c BacktestConfig) Validate() error {
	switch c.Feed {
	case FeedJSONL:
		if c.In == "" {
			return fmt.Errorf("in path is required for the jsonl feed")
		}
	case FeedHTTP:
		if c.BaseURL == "" {
			return fmt.Errorf("base-url is required for the http feed")
		}
		if len(c.Assets) == 0 {
			return fmt.Errorf("asset mappings are required for the http feed")
		}
		if c.From == "" || c.To == "" {
			return fmt.Errorf("from and to are required for the http feed")
		}
	default:
		return fmt.Errorf("unknown feed kind %q", c.Feed)
	}

	if c.PoolFile == "" {
		if c.RPCURL == "" || c.Pool == "" {
			return fmt.Errorf("either pool-file or rpc url plus pool address is required")
		}
	}

	if c.AssetInIndex == c.AssetOutIndex {
		return fmt.Errorf("asset-in and asset-out must differ")
	}
	if c.AssetInIndex < 0 || c.AssetOutIndex < 0 {
		return fmt.Errorf("asset indices must not be negative")
	}

	return nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}

package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	RPCURL   string
	Pool     string
	Block    uint64
	PoolFile string

	AssetInIndex  int
	AssetOutIndex int
	AmountIn      string
	Target        string
	Iterations    int

	LogLevel string
}

// LoadQuote merges config file, environment variables, and flags into
// QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v := newViper()

	v.SetDefault("asset-in", 0)
	v.SetDefault("asset-out", 1)
	v.SetDefault("amount-in", "1")
	v.SetDefault("iterations", 10)
	v.SetDefault("log-level", "info")

	if err := bindAndRead(v, cfgFile, flags); err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		RPCURL:        v.GetString("rpc"),
		Pool:          v.GetString("pool"),
		Block:         v.GetUint64("block"),
		PoolFile:      v.GetString("pool-file"),
		AssetInIndex:  v.GetInt("asset-in"),
		AssetOutIndex: v.GetInt("asset-out"),
		AmountIn:      v.GetString("amount-in"),
		Target:        v.GetString("target"),
		Iterations:    v.GetInt("iterations"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the field combinations the quote command needs.
func (c QuoteConfig) Validate() error {
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

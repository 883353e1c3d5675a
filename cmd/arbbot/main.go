package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vaultArb/internal/api"
	"vaultArb/internal/arb"
	"vaultArb/internal/bot"
	"vaultArb/internal/config"
	"vaultArb/internal/model"
	"vaultArb/internal/netwatch"
	"vaultArb/internal/pricefeed"
	"vaultArb/internal/storage"
	"vaultArb/internal/storage/postgres"
	"vaultArb/internal/vault"
)

func main() {
	root := &cobra.Command{
		Use:          "arbbot",
		Short:        "Weighted pool arbitrage bot",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the live loop",
		RunE:  runRun,
	}

	runCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	runCmd.Flags().String("vault", "", "Vault contract address")
	runCmd.Flags().StringSlice("pool", nil, "weighted pool addresses (comma-separated)")
	runCmd.Flags().StringSlice("asset", nil, "feed mappings, 0xtoken=symbol (comma-separated)")
	runCmd.Flags().String("feed", config.FeedWS, "price feed kind (ws, jsonl)")
	runCmd.Flags().String("feed-endpoint", "", "ws feed endpoint URL")
	runCmd.Flags().String("feed-path", "", "jsonl feed input path")
	runCmd.Flags().Int("iterations", 10, "solver refinement iterations")
	runCmd.Flags().String("min-amount-in", "0", "minimum trade size in tokenIn units")
	runCmd.Flags().Duration("interval", 0, "minimum spacing between evaluations, 0 evaluates every snapshot")
	runCmd.Flags().String("journal", config.JournalJSONL, "trade journal kind (jsonl, postgres, none)")
	runCmd.Flags().String("out", "./data/trades.jsonl", "output trades JSONL path")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("state-name", "arb-runner", "state name used for resume")
	runCmd.Flags().Bool("execute", false, "submit swaps on chain")
	runCmd.Flags().String("private-key", "", "hex private key for swap submission")
	runCmd.Flags().Int64("slippage-bps", 50, "output limit slippage in basis points")
	runCmd.Flags().String("api-addr", "", "status API listen address, empty disables")
	runCmd.Flags().Bool("netwatch", false, "monitor RPC host latency")
	runCmd.Flags().Duration("netwatch-interval", 30*time.Second, "latency probe interval")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a reference price feed against a pool snapshot",
		RunE:  runBacktest,
	}

	backtestCmd.Flags().String("feed", config.FeedJSONL, "price feed kind (jsonl, http)")
	backtestCmd.Flags().String("in", "", "input snapshots JSONL")
	backtestCmd.Flags().String("base-url", "", "market history endpoint base URL")
	backtestCmd.Flags().StringSlice("asset", nil, "feed mappings, 0xtoken=id (comma-separated)")
	backtestCmd.Flags().String("from", "", "window start (unix seconds or RFC3339)")
	backtestCmd.Flags().String("to", "", "window end (unix seconds or RFC3339)")
	backtestCmd.Flags().Duration("chunk", 24*time.Hour, "window covered per history request")
	backtestCmd.Flags().Duration("bucket", time.Minute, "snapshot bucket width")
	backtestCmd.Flags().String("cache", "", "sqlite price cache path, empty disables")
	backtestCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	backtestCmd.Flags().String("pool", "", "weighted pool address")
	backtestCmd.Flags().Uint64("block", 0, "snapshot block height, 0 means latest")
	backtestCmd.Flags().String("pool-file", "", "pool state JSON path, skips the RPC read")
	backtestCmd.Flags().Int("asset-in", 0, "pool index of the token paid in")
	backtestCmd.Flags().Int("asset-out", 1, "pool index of the token received")
	backtestCmd.Flags().Int("iterations", 10, "solver refinement iterations")
	backtestCmd.Flags().String("min-amount-in", "0", "minimum fill size in tokenIn units")
	backtestCmd.Flags().String("out", "./data/backtest_trades.jsonl", "output trades JSONL path")
	backtestCmd.Flags().String("report", "./data/backtest_report.json", "output report JSON path")
	backtestCmd.Flags().Bool("fills", false, "include per-fill detail in the report")
	backtestCmd.Flags().String("checkpoint", "./data/backtest_checkpoint.json", "checkpoint file path")
	backtestCmd.Flags().Bool("checkpoint-enabled", false, "enable checkpointing")
	backtestCmd.Flags().Int("checkpoint-every", 100, "snapshots between checkpoint saves")
	backtestCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(backtestCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price one pair of a pool and size a trade toward a target",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("rpc", "", "Ethereum RPC URL")
	quoteCmd.Flags().String("pool", "", "weighted pool address")
	quoteCmd.Flags().Uint64("block", 0, "snapshot block height, 0 means latest")
	quoteCmd.Flags().String("pool-file", "", "pool state JSON path, skips the RPC read")
	quoteCmd.Flags().Int("asset-in", 0, "pool index of the token paid in")
	quoteCmd.Flags().Int("asset-out", 1, "pool index of the token received")
	quoteCmd.Flags().String("amount-in", "1", "probe trade size in tokenIn units")
	quoteCmd.Flags().String("target", "", "target spot price to size toward, empty skips sizing")
	quoteCmd.Flags().Int("iterations", 10, "solver refinement iterations")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	pools, err := bot.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}

	minAmountIn, err := decimal.NewFromString(cfg.MinAmountIn)
	if err != nil {
		return fmt.Errorf("parse min-amount-in: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := vault.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	feed, err := newRunFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer feed.Close()

	var (
		journal    storage.Journal
		stateStore bot.StateStore
	)
	switch cfg.Journal {
	case config.JournalJSONL:
		jl := storage.NewJsonlJournal(cfg.Out)
		defer jl.Close()
		journal = jl
	case config.JournalPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		journal = &postgres.TradeJournal{Context: ctx, Store: store}
		stateStore = store
	}

	finder := arb.NewFinder(cfg.Iterations, logger)

	var executor bot.SwapExecutor
	if cfg.Execute {
		exec, err := vault.NewExecutor(ctx, client,
			common.HexToAddress(cfg.VaultAddress), cfg.PrivateKey, cfg.SlippageBps, logger)
		if err != nil {
			return fmt.Errorf("build executor: %w", err)
		}
		logger.Info("execution enabled", zap.String("sender", exec.Sender().Hex()))
		executor = exec
	}

	runner := bot.NewRunner(bot.RunConfig{
		Pools:        pools,
		Interval:     cfg.Interval,
		MinAmountIn:  minAmountIn,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Execute:      cfg.Execute,
		StateName:    cfg.StateName,
	}, client, feed, finder, journal, stateStore, executor, nil, logger)

	if cfg.APIAddr != "" {
		server := api.NewServer(cfg.APIAddr, runner.Status(), logger)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("api shutdown failed", zap.Error(err))
			}
		}()
	}

	if cfg.Netwatch {
		host, err := netwatch.HostFromURL(cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("netwatch host: %w", err)
		}
		monitor, err := netwatch.NewMonitor(netwatch.Config{
			Host:     host,
			Interval: cfg.NetwatchInterval,
		}, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("netwatch stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("run start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("pools", len(pools)),
		zap.String("feed", cfg.Feed),
		zap.String("journal", cfg.Journal),
		zap.Int("iterations", cfg.Iterations),
		zap.String("min_amount_in", minAmountIn.String()),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("execute", cfg.Execute),
	)

	return runner.Run(ctx)
}

func newRunFeed(ctx context.Context, cfg config.Config, logger *zap.Logger) (pricefeed.Source, error) {
	switch cfg.Feed {
	case config.FeedWS:
		assets, err := bot.ParseAssetMap(cfg.Assets)
		if err != nil {
			return nil, err
		}
		wsCfg := pricefeed.DefaultWSConfig()
		wsCfg.Endpoint = cfg.FeedEndpoint
		wsCfg.Assets = assets
		return pricefeed.NewWSSource(ctx, wsCfg, logger)
	case config.FeedJSONL:
		return pricefeed.NewJSONLSource(cfg.FeedPath)
	default:
		return nil, fmt.Errorf("unknown feed kind %q", cfg.Feed)
	}
}

// loadPoolState reads the snapshot either from a JSON file or over RPC at
// the requested block height.
func loadPoolState(ctx context.Context, rpcURL, pool string, block uint64, poolFile string, logger *zap.Logger) (*model.PoolState, error) {
	if poolFile != "" {
		return readPoolState(poolFile)
	}

	if !common.IsHexAddress(pool) {
		return nil, fmt.Errorf("invalid pool address: %s", pool)
	}

	client, err := vault.NewClient(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	state, err := client.PoolState(ctx, common.HexToAddress(pool), block)
	if err != nil {
		return nil, fmt.Errorf("read pool state: %w", err)
	}

	logger.Info("pool snapshot read",
		zap.String("pool", state.Address.Hex()),
		zap.Uint64("block", state.Block),
		zap.Int("tokens", len(state.Tokens)),
	)
	return state, nil
}

func readPoolState(path string) (*model.PoolState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool file: %w", err)
	}

	var state model.PoolState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse pool file: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultArb/internal/arb"
	"vaultArb/internal/backtest"
	"vaultArb/internal/bot"
	"vaultArb/internal/config"
	"vaultArb/internal/pricefeed"
	"vaultArb/internal/storage"
)

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBacktest(cfgFile, cmd.Flags())
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

	minAmountIn, err := decimal.NewFromString(cfg.MinAmountIn)
	if err != nil {
		return fmt.Errorf("parse min-amount-in: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := loadPoolState(ctx, cfg.RPCURL, cfg.Pool, cfg.Block, cfg.PoolFile, logger)
	if err != nil {
		return err
	}

	src, err := newBacktestFeed(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	var journal storage.Journal
	if cfg.Out != "" {
		jl := storage.NewJsonlJournal(cfg.Out)
		defer jl.Close()
		journal = jl
	}

	finder := arb.NewFinder(cfg.Iterations, logger)

	runner := backtest.NewRunner(backtest.RunConfig{
		AssetInIndex:      cfg.AssetInIndex,
		AssetOutIndex:     cfg.AssetOutIndex,
		MinAmountIn:       minAmountIn,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		CheckpointEvery:   cfg.CheckpointEvery,
	}, finder, journal, logger)

	logger.Info("backtest start",
		zap.String("pool", state.Address.Hex()),
		zap.String("feed", cfg.Feed),
		zap.Int("asset_in", cfg.AssetInIndex),
		zap.Int("asset_out", cfg.AssetOutIndex),
		zap.Int("iterations", cfg.Iterations),
		zap.String("min_amount_in", minAmountIn.String()),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	report, err := runner.Run(ctx, state, src)
	if err != nil {
		return err
	}
	if !cfg.Fills {
		report.Fills = nil
	}

	if cfg.Report != "" {
		if err := writeReport(cfg.Report, report); err != nil {
			return err
		}
	}

	fmt.Print(report.Summary())
	logger.Info("backtest complete",
		zap.Int("snapshots", report.Snapshots),
		zap.Int("trades", report.Trades),
		zap.String("gross_pnl", report.GrossPnL.String()),
		zap.String("volume", report.Volume.String()),
		zap.String("report", cfg.Report),
	)
	return nil
}

func newBacktestFeed(ctx context.Context, cfg config.BacktestConfig, logger *zap.Logger) (pricefeed.Source, error) {
	switch cfg.Feed {
	case config.FeedJSONL:
		return pricefeed.NewJSONLSource(cfg.In)
	case config.FeedHTTP:
		assets, err := bot.ParseAssetMap(cfg.Assets)
		if err != nil {
			return nil, err
		}
		from, err := config.ParseTimestamp(cfg.From)
		if err != nil {
			return nil, fmt.Errorf("parse from: %w", err)
		}
		to, err := config.ParseTimestamp(cfg.To)
		if err != nil {
			return nil, fmt.Errorf("parse to: %w", err)
		}
		return pricefeed.NewBackfillSource(ctx, pricefeed.HTTPSourceConfig{
			BaseURL:  cfg.BaseURL,
			Assets:   assets,
			From:     time.Unix(int64(from), 0).UTC(),
			To:       time.Unix(int64(to), 0).UTC(),
			Chunk:    cfg.Chunk,
			Interval: cfg.Bucket,
		}, cfg.Cache, logger)
	default:
		return nil, fmt.Errorf("unknown feed kind %q", cfg.Feed)
	}
}

func writeReport(path string, report *backtest.Report) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

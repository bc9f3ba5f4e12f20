package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	root := &cobra.Command{
		Use:          "honest",
		Short:        "Honest Asset reserve ledger",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("state", "./data/ledger.json", "ledger snapshot file")
	flags.String("journal", "./data/journal.jsonl", "operation journal JSONL path")
	flags.String("postgres-dsn", "", "Postgres DSN; replaces the snapshot file when set")
	flags.String("ledger", "default", "ledger name inside Postgres")
	flags.String("rpc", "", "EVM RPC URL for token metadata and price feeds")
	flags.String("from", "", "caller address")
	flags.Duration("price-cache-ttl", 30*time.Second, "oracle price cache ttl")
	flags.Int("max-retries", 5, "maximum RPC retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this rotated file")

	root.AddCommand(
		initCmd(),
		statusCmd(),
		balanceCmd(),
		faucetCmd(),
		mintCmd(),
		swapCmd(),
		redeemCmd(),
		depositCmd(),
		withdrawCmd(),
		accrueCmd(),
		claimReservedCmd(),
		feesCmd(),
		assetCmd(),
		pricesCmd(),
		auditCmd(),
		journalCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil || file == "" {
		return logger, err
	}

	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotated, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

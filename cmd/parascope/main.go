package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "parascope",
		Short:        "Relay chain and parachain block indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Index the configured chain groups",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("parent", "", "relay chain endpoint when no groups are configured")
	runCmd.Flags().StringSlice("child", nil, "parachains of the relay chain (comma-separated para_id=endpoint)")
	runCmd.Flags().String("env", "polkadot", "environment of the flag-defined group")
	runCmd.Flags().String("start", "live", "start address (live or env:/sovereign/para_id/block)")
	runCmd.Flags().String("start-timestamp", "", "start time when the address names no block (unix seconds or RFC3339)")
	runCmd.Flags().Duration("pacing", 6*time.Second, "minimum delay between historical relay blocks")
	runCmd.Flags().String("cache-dir", "./data/cache", "transport cache root, empty disables the cache")
	runCmd.Flags().Int("channel-size", 16, "inclusion channel capacity per parachain")
	runCmd.Flags().Int("queue-size", 0, "merge queue capacity, 0 means unbounded")
	runCmd.Flags().Int("max-retries", 6, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", time.Second, "initial retry backoff")
	runCmd.Flags().String("out", "", "output JSONL path")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("checkpoint", "", "checkpoint file path for historical runs")
	runCmd.Flags().String("metrics-addr", "", "Prometheus listen address (e.g. :9090)")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a hex payload against runtime metadata",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("metadata", "", "metadata file (raw or 0x hex)")
	decodeCmd.Flags().String("endpoint", "", "node to fetch metadata from when no file is given")
	decodeCmd.Flags().String("at", "", "block hash to fetch metadata at")
	decodeCmd.Flags().String("kind", "extrinsic", "payload kind (extrinsic, events, xcm, hrmp, block)")
	decodeCmd.Flags().String("input", "", "0x hex payload, a file path, or - for stdin")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize runtime metadata",
		RunE:  runInspect,
	}

	inspectCmd.Flags().String("metadata", "", "metadata file (raw or 0x hex)")
	inspectCmd.Flags().String("endpoint", "", "node to fetch metadata from when no file is given")
	inspectCmd.Flags().String("at", "", "block hash to fetch metadata at")
	inspectCmd.Flags().String("pallet", "", "print calls, events and storage of one pallet")
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(inspectCmd)

	tailCmd := &cobra.Command{
		Use:   "tail [file]",
		Short: "Print a JSONL record stream in color",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTail,
	}

	tailCmd.Flags().Bool("follow", false, "keep reading as the file grows")
	tailCmd.Flags().Bool("links", false, "only print records carrying links")
	tailCmd.Flags().Bool("no-color", false, "disable colors")

	root.AddCommand(tailCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
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

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

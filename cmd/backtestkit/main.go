package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"backtestkit/internal/engine"
	"backtestkit/internal/repository"
)

// appConfig is the CLI-side file configuration. Everything that affects the
// deterministic core travels in the request JSON instead.
type appConfig struct {
	Database    string `yaml:"database"`
	DatabaseURL string `yaml:"database_url"`
	OutputDir   string `yaml:"output_dir"`
	Replays     int    `yaml:"replays"`
}

var (
	cfgPath   string
	dbPath    string
	dbURL     string
	outputDir string
	verbose   bool

	cfg appConfig
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "backtestkit",
	Short: "Deterministic backtest execution and evaluation engine",
	Long: `backtestkit replays trading strategies against immutable market-data
snapshots and produces canonical, hashed result artifacts. Identical requests
over identical snapshots always produce byte-identical outputs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()

		cfg = appConfig{Database: "snapshots.db", OutputDir: "out", Replays: 3}
		if cfgPath != "" {
			raw, err := os.ReadFile(cfgPath)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("parse config: %w", err)
			}
		}
		if dbPath != "" {
			cfg.Database = dbPath
		}
		if dbURL != "" {
			cfg.DatabaseURL = dbURL
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite snapshot database path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "Postgres snapshot database URL (overrides --db)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "out", "", "artifact output directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd, evaluateCmd, seedCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore selects the snapshot store: Postgres when a URL is configured,
// SQLite otherwise. The returned closer releases the connection.
func openStore(ctx context.Context) (engine.SnapshotStore, func(), error) {
	if cfg.DatabaseURL != "" {
		store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	store, err := repository.NewSQLiteStore(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

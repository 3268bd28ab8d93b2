package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"backtestkit/internal/engine"
	"backtestkit/strategies"
	"backtestkit/types"
)

var requestPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a backtest request and write hashed artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(requestPath)
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}
		var req types.BacktestRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("%w: %v", engine.ErrInputInvalid, err)
		}

		store, closeStore, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		registry, err := strategies.DefaultRegistry()
		if err != nil {
			return err
		}

		var bar *progressbar.ProgressBar
		eng := engine.New(store, registry,
			engine.WithLogger(log),
			engine.WithProgress(func(done, total int) {
				// One bar per replay pass.
				if done == 1 {
					bar = newProgressBar(total)
				}
				bar.Add(1)
			}),
		)

		artifact, err := eng.RunVerified(cmd.Context(), req, cfg.Replays)
		if err != nil {
			return err
		}

		path, sidecar, err := engine.WriteArtifact(cfg.OutputDir, engine.ArtifactFileName, artifact.Raw)
		if err != nil {
			return err
		}
		log.Info().
			Str("artifact", path).
			Str("sidecar", sidecar).
			Str("sha256", artifact.SHA256).
			Msg("backtest artifacts written")
		fmt.Println(path)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&requestPath, "request", "", "backtest request JSON file")
	runCmd.MarkFlagRequired("request")
}

func newProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Backtesting in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"backtestkit/internal/engine"
)

var artifactPath string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Compute performance metrics from a backtest artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(artifactPath)
		if err != nil {
			return fmt.Errorf("read artifact: %w", err)
		}
		doc, err := engine.ParseArtifact(raw)
		if err != nil {
			return err
		}

		summary := engine.Summary{
			StartEquity: doc.Summary.StartEquity,
			EndEquity:   doc.Summary.EndEquity,
		}
		metrics, err := engine.Evaluate(summary, doc.EquityCurve, doc.Trades)
		if err != nil {
			return err
		}

		serialized, sha, err := engine.SerializeMetrics(metrics)
		if err != nil {
			return err
		}
		path, sidecar, err := engine.WriteArtifact(cfg.OutputDir, engine.MetricsFileName, serialized)
		if err != nil {
			return err
		}
		log.Info().
			Str("metrics", path).
			Str("sidecar", sidecar).
			Str("sha256", sha).
			Int("trades", metrics.TradeCount).
			Msg("metrics artifact written")
		fmt.Println(path)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&artifactPath, "artifact", "", "backtest-result.json to evaluate")
	evaluateCmd.MarkFlagRequired("artifact")
}

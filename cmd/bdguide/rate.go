package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

var rateCmd = &cobra.Command{
	Use:   "rate <project-id> <category-id> <metric-id> <tier>",
	Short: "Record a tier for one metric of a saved evaluation and save it",
	Long:  "Opens the saved evaluation, records the metric (tier T0, T1 or none), recomputes the overall score and saves it.",
	Args:  cobra.ExactArgs(4),
	RunE:  runRate,
}

var (
	rateValue string
	rateNotes string
)

func init() {
	rateCmd.Flags().StringVar(&rateValue, "value", "", "Observed value for the metric")
	rateCmd.Flags().StringVar(&rateNotes, "notes", "", "Evaluator notes for the metric")
	rootCmd.AddCommand(rateCmd)
}

func runRate(cmd *cobra.Command, args []string) error {
	tier, err := models.ParseTier(args[3])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Session.Open(args[0]); err != nil {
		return err
	}
	ev := models.MetricEvaluation{Value: rateValue, Tier: tier, Notes: rateNotes}
	if err := a.Session.UpdateMetric(args[1], args[2], ev); err != nil {
		return err
	}
	saved, err := a.Session.Save(ctx)
	if err != nil {
		return err
	}

	tierText := string(saved.OverallTier)
	if tierText == "" {
		tierText = "unclassified"
	}
	score := 0.0
	if saved.OverallScore != nil {
		score = *saved.OverallScore
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: score %.1f, tier %s\n", saved.Name, score, tierText)
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hwidmann/liquiplan/internal/cli"
	"github.com/hwidmann/liquiplan/internal/engine"
	"github.com/hwidmann/liquiplan/internal/output"
)

func calcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Compute the liquidity forecast for a plan",
		Long: `Runs the full forecast over a plan's current value set: actual values
take precedence over forecasts per cell, balances propagate across
periods, and the result carries a canonical data hash.`,
		RunE: runCalc,
	}

	cmd.Flags().Bool("snapshot", false, "Persist the computed state as a new immutable version")
	cmd.Flags().Bool("json", false, "Print the full payload as JSON instead of a table")

	_ = viper.BindPFlag("calc.snapshot", cmd.Flags().Lookup("snapshot"))
	_ = viper.BindPFlag("calc.json", cmd.Flags().Lookup("json"))

	return cmd
}

func runCalc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	plan, err := resolvePlan(ctx, store)
	if err != nil {
		return err
	}

	validated, err := loadValidatedInput(ctx, store, plan)
	if err != nil {
		return err
	}

	result, err := engine.Calculate(validated)
	if err != nil {
		return err
	}

	if findings := engine.VerifyResultIntegrity(result, validated.OpeningBalanceCents); len(findings) > 0 {
		for _, finding := range findings {
			slog.Error("calculation integrity check failed", "finding", finding)
		}
		return fmt.Errorf("calculation failed its integrity check, refusing to report the result")
	}

	if viper.GetBool("calc.snapshot") {
		version, verr := store.CreateVersion(ctx, plan.ID, validated.OpeningBalanceCents, validated.Values, result.DataHash)
		if verr != nil {
			return fmt.Errorf("failed to snapshot version: %w", verr)
		}
		slog.Info(cli.FormatSuccess(fmt.Sprintf("Saved version %d", version.Version)),
			"hash", version.DataHash)
	}

	payload := output.Transform(plan, validated, result)

	if viper.GetBool("calc.json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%s / %s", plan.CaseRef, plan.Name)))
	fmt.Println(cli.RenderKPIs(payload.KPIs))
	fmt.Println(cli.RenderTable(payload.Table))
	fmt.Println(cli.SubtleStyle.Render("Hash: " + result.DataHash))
	return nil
}

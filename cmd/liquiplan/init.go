package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hwidmann/liquiplan/internal/cli"
)

func initPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a plan with its category and line skeleton from the config",
		Long: `Creates a new plan from the plan section of the configuration file:
case reference, planning horizon, opening balance, and the declared
cashflow categories and lines. Period values are entered afterwards.`,
		RunE: runInitPlan,
	}
}

func runInitPlan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	settings, err := loadPlanSettings()
	if err != nil {
		return err
	}
	plan, err := settings.ToPlan()
	if err != nil {
		return err
	}
	categories, err := settings.ToCategories(plan.ID)
	if err != nil {
		return err
	}
	lines := settings.ToLines()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.SavePlan(ctx, plan); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.SaveCategories(ctx, plan.ID, categories); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.SaveLines(ctx, plan.ID, lines); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("Created plan %s for case %s", plan.ID, plan.CaseRef)),
		"periods", plan.PeriodCount,
		"period_type", plan.PeriodType,
		"categories", len(categories),
		"lines", len(lines))
	return nil
}

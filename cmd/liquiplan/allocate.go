package main

import (
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hwidmann/liquiplan/internal/cli"
	"github.com/hwidmann/liquiplan/internal/model"
	"github.com/hwidmann/liquiplan/internal/service"
)

func allocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Assign ledger entries to old and new estate",
		Long: `Runs the estate allocation rules over the plan's ledger: explicit
confirmed allocations are kept, everything else is decided by the date
cutoff, contract ratios, or day-exact proration of service periods.
Entries no rule can decide are marked undetermined for review.`,
		RunE: runAllocate,
	}

	cmd.Flags().Bool("recompute", false, "Re-run allocation for entries that already have one (confirmed entries are kept)")

	_ = viper.BindPFlag("allocate.recompute", cmd.Flags().Lookup("recompute"))

	return cmd
}

func runAllocate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	splitter, err := loadSplitter()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	plan, err := resolvePlan(ctx, store)
	if err != nil {
		return err
	}

	filter := service.LedgerFilter{}
	if !viper.GetBool("allocate.recompute") {
		filter.UnallocatedOnly = true
	}
	entries, err := store.GetLedgerEntries(ctx, plan.ID, filter)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		slog.Info(cli.FormatInfo("No entries to allocate"))
		return nil
	}

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("Allocating entries"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	counts := make(map[model.EstateAllocation]int)
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := &entries[i]

		result := splitter.Apply(entry)
		if err := store.SaveAllocation(ctx, entry); err != nil {
			return fmt.Errorf("failed to save allocation for entry %s: %w", entry.ID, err)
		}
		counts[result.Allocation]++
		_ = bar.Add(1)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("Allocated %d entries", len(entries))),
		"old_estate", counts[model.AllocationOldEstate],
		"new_estate", counts[model.AllocationNewEstate],
		"mixed", counts[model.AllocationMixed],
		"undetermined", counts[model.AllocationUndetermined])

	if undetermined := counts[model.AllocationUndetermined]; undetermined > 0 {
		slog.Warn(cli.FormatWarning(fmt.Sprintf("%d entries need manual review", undetermined)))
	}
	return nil
}

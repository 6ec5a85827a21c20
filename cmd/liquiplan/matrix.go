package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hwidmann/liquiplan/internal/aggregate"
	"github.com/hwidmann/liquiplan/internal/cli"
	"github.com/hwidmann/liquiplan/internal/model"
	"github.com/hwidmann/liquiplan/internal/output"
	"github.com/hwidmann/liquiplan/internal/service"
)

func matrixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Aggregate the ledger into a bucket/period matrix",
		Long: `Buckets the plan's allocated ledger entries by category tag and text
patterns, distributes them over the planning periods, and sums each
cell. Estate totals and data-quality counters are reported alongside.`,
		RunE: runMatrix,
	}

	cmd.Flags().String("scope", "", "Named location scope from the config (default: global)")
	cmd.Flags().String("explain", "", "Show the contributing entries of one cell (format: bucket:period)")
	cmd.Flags().Bool("json", false, "Print the full payload as JSON instead of a table")

	_ = viper.BindPFlag("matrix.scope", cmd.Flags().Lookup("scope"))
	_ = viper.BindPFlag("matrix.explain", cmd.Flags().Lookup("explain"))
	_ = viper.BindPFlag("matrix.json", cmd.Flags().Lookup("json"))

	return cmd
}

func runMatrix(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	matcher, err := loadMatcher()
	if err != nil {
		return err
	}
	scope, err := loadScope(viper.GetString("matrix.scope"))
	if err != nil {
		return err
	}
	explain := viper.GetString("matrix.explain")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	plan, err := resolvePlan(ctx, store)
	if err != nil {
		return err
	}

	entries, err := store.GetLedgerEntries(ctx, plan.ID, service.LedgerFilter{})
	if err != nil {
		return err
	}

	eng, err := aggregate.NewEngine(matcher, plan.StartDate, plan.PeriodType, plan.PeriodCount)
	if err != nil {
		return err
	}

	entryPtrs := make([]*model.LedgerEntry, len(entries))
	for i := range entries {
		entryPtrs[i] = &entries[i]
	}

	result, err := eng.Aggregate(entryPtrs, scope, aggregate.Options{TraceMode: explain != ""})
	if err != nil {
		return err
	}

	scopeName := ""
	if scope != nil {
		scopeName = scope.Name
	}
	payload := output.TransformMatrix(plan, matcher.Buckets(), scopeName, result)

	if viper.GetBool("matrix.json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%s / Matrix (%s)", plan.CaseRef, payload.Scope)))
	fmt.Println(cli.RenderTable(payload.Table))
	fmt.Println(cli.RenderStats(payload.Stats))

	if explain != "" {
		return printCellTrace(result, explain)
	}
	return nil
}

// printCellTrace renders the drill-down for one bucket/period cell.
func printCellTrace(result *aggregate.Result, cell string) error {
	bucketID, periodStr, ok := strings.Cut(cell, ":")
	if !ok {
		return fmt.Errorf("invalid --explain value %q, expected bucket:period", cell)
	}
	period, err := strconv.Atoi(periodStr)
	if err != nil {
		return fmt.Errorf("invalid period in --explain value %q: %w", cell, err)
	}

	traces := result.CellTrace(bucketID, period)
	if len(traces) == 0 {
		fmt.Println(cli.FormatInfo(fmt.Sprintf("No entries contribute to %s in period %d", bucketID, period)))
		return nil
	}

	var b strings.Builder
	for _, tr := range traces {
		fmt.Fprintf(&b, "%s  %s  %s\n",
			tr.TransactionDate.Format("2006-01-02"),
			output.EuroString(tr.AmountCents),
			tr.Description)
		fmt.Fprintf(&b, "  matched via %s", tr.MatchedVia)
		if tr.Rule != nil {
			fmt.Fprintf(&b, " (rule %d: %q)", tr.Rule.ID, tr.Rule.Pattern)
		}
		fmt.Fprintf(&b, ", allocation %s", tr.EstateAllocation)
		if tr.AllocationNote != "" {
			fmt.Fprintf(&b, ", note: %s", tr.AllocationNote)
		}
		b.WriteString("\n")
	}
	fmt.Println(cli.RenderBox(fmt.Sprintf("%s / Periode %d", bucketID, period+1), strings.TrimRight(b.String(), "\n")))
	return nil
}

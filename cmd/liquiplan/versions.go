package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hwidmann/liquiplan/internal/cli"
	"github.com/hwidmann/liquiplan/internal/common"
	"github.com/hwidmann/liquiplan/internal/engine"
	"github.com/hwidmann/liquiplan/internal/model"
)

func versionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Inspect and verify the plan's snapshot history",
	}

	cmd.AddCommand(versionsListCmd())
	cmd.AddCommand(versionsVerifyCmd())

	return cmd
}

func versionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all snapshots of the plan, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			versions, err := store.ListVersions(ctx, plan.ID)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Println(cli.FormatInfo("No versions yet; run 'liquiplan calc --snapshot' to create one"))
				return nil
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("%s / Versions", plan.CaseRef)))
			for _, v := range versions {
				fmt.Printf("  v%-4d %s  opening %s  %s\n",
					v.Version,
					v.CreatedAt.Format("2006-01-02 15:04"),
					model.CentsString(v.OpeningBalanceCents),
					cli.SubtleStyle.Render(shortHash(v.DataHash)))
			}
			return nil
		},
	}
}

func versionsVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [version]",
		Short: "Recompute a snapshot's hash and compare it to the stored one",
		Long: `Recomputes the canonical hash over a stored snapshot's value set. A
mismatch is evidence of tampering or corruption; the affected version
must not be used until resolved. Without an argument, every version of
the plan is verified.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			var targets []model.PlanVersion
			if len(args) == 1 {
				number, convErr := strconv.Atoi(args[0])
				if convErr != nil {
					return fmt.Errorf("invalid version number %q: %w", args[0], convErr)
				}
				v, getErr := store.GetVersion(ctx, plan.ID, number)
				if getErr != nil {
					return getErr
				}
				targets = append(targets, *v)
			} else {
				summaries, listErr := store.ListVersions(ctx, plan.ID)
				if listErr != nil {
					return listErr
				}
				for _, summary := range summaries {
					v, getErr := store.GetVersion(ctx, plan.ID, summary.Version)
					if getErr != nil {
						return getErr
					}
					targets = append(targets, *v)
				}
			}

			var corrupted int
			for _, v := range targets {
				if !engine.VerifyDataHash(v.DataHash, v.OpeningBalanceCents, v.Values) {
					corrupted++
					fmt.Println(cli.FormatError(fmt.Sprintf("v%d: hash mismatch, snapshot is corrupted or tampered", v.Version)))
					continue
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("v%d: %s", v.Version, shortHash(v.DataHash))))
			}

			if corrupted > 0 {
				return fmt.Errorf("%w: %d of %d versions failed verification", common.ErrHashMismatch, corrupted, len(targets))
			}
			return nil
		},
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

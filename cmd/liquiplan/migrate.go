package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hwidmann/liquiplan/internal/cli"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// initStorage already migrates; this command exists so the schema
			// can be brought forward without running anything else.
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			slog.Info(cli.FormatSuccess("Database schema is up to date"))
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/hwidmann/liquiplan/internal/aggregate"
	"github.com/hwidmann/liquiplan/internal/allocation"
	"github.com/hwidmann/liquiplan/internal/config"
	"github.com/hwidmann/liquiplan/internal/engine"
	"github.com/hwidmann/liquiplan/internal/model"
	"github.com/hwidmann/liquiplan/internal/service"
	"github.com/hwidmann/liquiplan/internal/storage"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/liquiplan/liquiplan.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// resolvePlan finds the plan to operate on: an explicit --plan ID wins,
// otherwise the newest plan for the configured case reference.
func resolvePlan(ctx context.Context, store service.Storage) (*model.Plan, error) {
	if planID := viper.GetString("plan.id"); planID != "" {
		return store.GetPlan(ctx, planID)
	}
	if caseRef := viper.GetString("plan.case_ref"); caseRef != "" {
		return store.GetPlanByCaseRef(ctx, caseRef)
	}
	return nil, fmt.Errorf("no plan selected: pass --plan or set plan.case_ref in the config")
}

// loadPlanSettings decodes the plan skeleton from the config tree.
func loadPlanSettings() (config.PlanSettings, error) {
	var settings config.PlanSettings
	if err := viper.UnmarshalKey("plan", &settings); err != nil {
		return config.PlanSettings{}, fmt.Errorf("failed to decode plan settings: %w", err)
	}
	return settings, nil
}

// loadSplitter builds the estate allocation splitter from configuration.
func loadSplitter() (*allocation.Splitter, error) {
	var settings config.AllocationSettings
	if err := viper.UnmarshalKey("allocation", &settings); err != nil {
		return nil, fmt.Errorf("failed to decode allocation settings: %w", err)
	}
	cfg, err := settings.ToAllocationConfig()
	if err != nil {
		return nil, err
	}
	return allocation.NewSplitter(cfg)
}

// loadMatcher builds the bucket matcher from configuration.
func loadMatcher() (*aggregate.Matcher, error) {
	var settings config.BucketSettings
	if err := viper.UnmarshalKey("matrix", &settings); err != nil {
		return nil, fmt.Errorf("failed to decode matrix settings: %w", err)
	}
	return aggregate.NewMatcher(settings.ToBucketConfig())
}

// loadScope resolves a named scope from configuration. An empty name means
// global.
func loadScope(name string) (*aggregate.Scope, error) {
	if name == "" {
		return nil, nil
	}
	var scopes []config.ScopeSetting
	if err := viper.UnmarshalKey("matrix.scopes", &scopes); err != nil {
		return nil, fmt.Errorf("failed to decode scope settings: %w", err)
	}
	for _, s := range scopes {
		if s.Name == name {
			return s.ToScope(), nil
		}
	}
	return nil, fmt.Errorf("unknown scope %q", name)
}

// loadValidatedInput assembles and validates the full calculation input of a
// plan from storage.
func loadValidatedInput(ctx context.Context, store service.Storage, plan *model.Plan) (*engine.ValidatedInput, error) {
	categories, err := store.GetCategories(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	lines, err := store.GetLines(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines: %w", err)
	}
	values, err := store.GetPeriodValues(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load period values: %w", err)
	}

	validated, errs := engine.Validate(engine.Input{
		Categories:          categories,
		Lines:               lines,
		Values:              values,
		PeriodCount:         plan.PeriodCount,
		OpeningBalanceCents: plan.OpeningBalanceCents,
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("plan input is invalid:\n%s", engine.FormatValidationErrors(errs))
	}
	return validated, nil
}

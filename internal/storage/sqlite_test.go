package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hwidmann/liquiplan/internal/common"
	"github.com/hwidmann/liquiplan/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func createTestPlan() *model.Plan {
	return model.NewPlan("IN 42/25", "Fortführungsplanung",
		model.PeriodWeekly, 13,
		time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), 250000)
}

func seedPlanSkeleton(t *testing.T, store *SQLiteStorage, plan *model.Plan) {
	t.Helper()
	ctx := context.Background()

	if err := store.SavePlan(ctx, plan); err != nil {
		t.Fatalf("Failed to save plan: %v", err)
	}
	categories := []model.Category{
		{ID: "cat-rev", PlanID: plan.ID, Name: "Umsatzerlöse", FlowType: model.FlowInflow, EstateType: model.EstateNew, DisplayOrder: 1},
		{ID: "cat-pay", PlanID: plan.ID, Name: "Personal", FlowType: model.FlowOutflow, EstateType: model.EstateNew, DisplayOrder: 2},
	}
	if err := store.SaveCategories(ctx, plan.ID, categories); err != nil {
		t.Fatalf("Failed to save categories: %v", err)
	}
	lines := []model.Line{
		{ID: "line-kv", CategoryID: "cat-rev", Name: "KV-Abschläge", DisplayOrder: 1},
		{ID: "line-lohn", CategoryID: "cat-pay", Name: "Löhne", DisplayOrder: 1},
	}
	if err := store.SaveLines(ctx, plan.ID, lines); err != nil {
		t.Fatalf("Failed to save lines: %v", err)
	}
}

func TestSavePlanAndGetPlan(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	plan := createTestPlan()
	if err := store.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	got, err := store.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if got.CaseRef != plan.CaseRef {
		t.Errorf("CaseRef = %q, want %q", got.CaseRef, plan.CaseRef)
	}
	if got.PeriodType != model.PeriodWeekly {
		t.Errorf("PeriodType = %q, want WEEKLY", got.PeriodType)
	}
	if got.OpeningBalanceCents != 250000 {
		t.Errorf("OpeningBalanceCents = %d, want 250000", got.OpeningBalanceCents)
	}
}

func TestGetPlanNotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetPlan(context.Background(), "no-such-plan")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSavePlanRejectsInvalidPlan(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	plan := createTestPlan()
	plan.PeriodCount = 53
	if err := store.SavePlan(ctx, plan); err == nil {
		t.Error("expected error for period count above the maximum")
	}

	plan = createTestPlan()
	plan.CaseRef = "  "
	if err := store.SavePlan(ctx, plan); err == nil {
		t.Error("expected error for blank case reference")
	}
}

func TestGetPlanByCaseRefReturnsNewest(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	older := createTestPlan()
	older.CreatedAt = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	newer := createTestPlan()
	newer.CreatedAt = time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)

	if err := store.SavePlan(ctx, older); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	if err := store.SavePlan(ctx, newer); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	got, err := store.GetPlanByCaseRef(ctx, "IN 42/25")
	if err != nil {
		t.Fatalf("GetPlanByCaseRef failed: %v", err)
	}
	if got.ID != newer.ID {
		t.Errorf("got plan %s, want newest plan %s", got.ID, newer.ID)
	}
}

func TestCategoriesAndLinesRoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	plan := createTestPlan()
	seedPlanSkeleton(t, store, plan)

	categories, err := store.GetCategories(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetCategories failed: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("got %d categories, want 2", len(categories))
	}
	if categories[0].ID != "cat-rev" {
		t.Errorf("first category = %s, want cat-rev (display order)", categories[0].ID)
	}
	if categories[1].EstateType != model.EstateNew {
		t.Errorf("EstateType = %q, want NEW_ESTATE", categories[1].EstateType)
	}

	lines, err := store.GetLines(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetLines failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestUpsertPeriodValueReplacesCell(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	plan := createTestPlan()
	seedPlanSkeleton(t, store, plan)

	value := model.PeriodValue{LineID: "line-kv", ValueType: model.ValuePLAN, PeriodIndex: 3, AmountCents: 50000}
	if err := store.UpsertPeriodValue(ctx, plan.ID, value); err != nil {
		t.Fatalf("UpsertPeriodValue failed: %v", err)
	}

	// Second write to the same cell must replace, not duplicate.
	value.AmountCents = 70000
	if err := store.UpsertPeriodValue(ctx, plan.ID, value); err != nil {
		t.Fatalf("UpsertPeriodValue (update) failed: %v", err)
	}

	// A different value type in the same period is a distinct cell.
	ist := model.PeriodValue{LineID: "line-kv", ValueType: model.ValueIST, PeriodIndex: 3, AmountCents: 68000}
	if err := store.UpsertPeriodValue(ctx, plan.ID, ist); err != nil {
		t.Fatalf("UpsertPeriodValue (IST) failed: %v", err)
	}

	values, err := store.GetPeriodValues(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetPeriodValues failed: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("got %d values, want 2", len(values))
	}
	for _, pv := range values {
		switch pv.ValueType {
		case model.ValueIST:
			if pv.AmountCents != 68000 {
				t.Errorf("IST amount = %d, want 68000", pv.AmountCents)
			}
		case model.ValuePLAN:
			if pv.AmountCents != 70000 {
				t.Errorf("PLAN amount = %d, want 70000 after update", pv.AmountCents)
			}
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	// A second run over an up-to-date schema must be a no-op.
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestTransactionReadsSeeUncommittedWrites(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	plan := createTestPlan()

	// With a single pooled connection, a read that bypassed the open
	// transaction would wait on it forever. A deadline keeps a regression
	// from hanging the suite.
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan in tx failed: %v", err)
	}
	categories := []model.Category{
		{ID: "cat-rev", PlanID: plan.ID, Name: "Umsatzerlöse", FlowType: model.FlowInflow, EstateType: model.EstateNew, DisplayOrder: 1},
	}
	if err := tx.SaveCategories(ctx, plan.ID, categories); err != nil {
		t.Fatalf("SaveCategories in tx failed: %v", err)
	}

	got, err := tx.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetPlan in tx failed: %v", err)
	}
	if got.ID != plan.ID {
		t.Errorf("got plan %s, want %s", got.ID, plan.ID)
	}
	if _, err := tx.GetPlanByCaseRef(ctx, plan.CaseRef); err != nil {
		t.Errorf("GetPlanByCaseRef in tx failed: %v", err)
	}
	gotCats, err := tx.GetCategories(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetCategories in tx failed: %v", err)
	}
	if len(gotCats) != 1 {
		t.Errorf("got %d categories, want 1", len(gotCats))
	}
	if _, err := tx.GetPeriodValues(ctx, plan.ID); err != nil {
		t.Errorf("GetPeriodValues in tx failed: %v", err)
	}
	if _, err := tx.CountUnallocated(ctx, plan.ID); err != nil {
		t.Errorf("CountUnallocated in tx failed: %v", err)
	}
}

func TestBeginTxCommitAndRollback(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	plan := createTestPlan()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := tx.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan in tx failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if _, err := store.GetPlan(ctx, plan.ID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("plan visible after rollback, err = %v", err)
	}

	tx, err = store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := tx.SavePlan(ctx, plan); err != nil {
		t.Fatalf("SavePlan in tx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := store.GetPlan(ctx, plan.ID); err != nil {
		t.Errorf("plan not visible after commit: %v", err)
	}
}

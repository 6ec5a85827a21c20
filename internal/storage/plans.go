package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hwidmann/liquiplan/internal/common"
	"github.com/hwidmann/liquiplan/internal/model"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so query helpers can run
// inside or outside an explicit transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SavePlan inserts or updates a plan.
func (s *SQLiteStorage) SavePlan(ctx context.Context, plan *model.Plan) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePlan(plan); err != nil {
		return err
	}
	return s.savePlanTx(ctx, s.db, plan)
}

func (s *SQLiteStorage) savePlanTx(ctx context.Context, db dbtx, plan *model.Plan) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO plans (id, case_ref, name, period_type, period_count, start_date, opening_balance_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			case_ref = excluded.case_ref,
			name = excluded.name,
			period_type = excluded.period_type,
			period_count = excluded.period_count,
			start_date = excluded.start_date,
			opening_balance_cents = excluded.opening_balance_cents`,
		plan.ID, plan.CaseRef, plan.Name, string(plan.PeriodType), plan.PeriodCount,
		plan.StartDate, plan.OpeningBalanceCents, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID.
func (s *SQLiteStorage) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getPlanTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getPlanTx(ctx context.Context, db dbtx, id string) (*model.Plan, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, case_ref, name, period_type, period_count, start_date, opening_balance_cents, created_at
		FROM plans WHERE id = ?`, id)
	return scanPlan(row)
}

// GetPlanByCaseRef retrieves the most recently created plan for a case.
func (s *SQLiteStorage) GetPlanByCaseRef(ctx context.Context, caseRef string) (*model.Plan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(caseRef, "caseRef"); err != nil {
		return nil, err
	}
	return s.getPlanByCaseRefTx(ctx, s.db, caseRef)
}

func (s *SQLiteStorage) getPlanByCaseRefTx(ctx context.Context, db dbtx, caseRef string) (*model.Plan, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, case_ref, name, period_type, period_count, start_date, opening_balance_cents, created_at
		FROM plans WHERE case_ref = ?
		ORDER BY created_at DESC LIMIT 1`, caseRef)
	return scanPlan(row)
}

func scanPlan(row *sql.Row) (*model.Plan, error) {
	var plan model.Plan
	var periodType string
	err := row.Scan(&plan.ID, &plan.CaseRef, &plan.Name, &periodType,
		&plan.PeriodCount, &plan.StartDate, &plan.OpeningBalanceCents, &plan.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: plan", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	plan.PeriodType = model.PeriodType(periodType)
	return &plan, nil
}

// ListPlans returns all plans, newest first.
func (s *SQLiteStorage) ListPlans(ctx context.Context) ([]model.Plan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listPlansTx(ctx, s.db)
}

func (s *SQLiteStorage) listPlansTx(ctx context.Context, db dbtx) ([]model.Plan, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, case_ref, name, period_type, period_count, start_date, opening_balance_cents, created_at
		FROM plans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer closeRows(rows)

	var plans []model.Plan
	for rows.Next() {
		var plan model.Plan
		var periodType string
		if err := rows.Scan(&plan.ID, &plan.CaseRef, &plan.Name, &periodType,
			&plan.PeriodCount, &plan.StartDate, &plan.OpeningBalanceCents, &plan.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plan.PeriodType = model.PeriodType(periodType)
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// SaveCategories replaces a plan's category set.
func (s *SQLiteStorage) SaveCategories(ctx context.Context, planID string, categories []model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(planID, "planID"); err != nil {
		return err
	}
	return s.saveCategoriesTx(ctx, s.db, planID, categories)
}

func (s *SQLiteStorage) saveCategoriesTx(ctx context.Context, db dbtx, planID string, categories []model.Category) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM cashflow_categories WHERE plan_id = ?`, planID); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	for _, cat := range categories {
		_, err := db.ExecContext(ctx, `
			INSERT INTO cashflow_categories (id, plan_id, name, flow_type, estate_type, display_order)
			VALUES (?, ?, ?, ?, ?, ?)`,
			cat.ID, planID, cat.Name, string(cat.FlowType), string(cat.EstateType), cat.DisplayOrder)
		if err != nil {
			return fmt.Errorf("failed to save category %s: %w", cat.ID, err)
		}
	}
	return nil
}

// GetCategories returns a plan's categories in display order.
func (s *SQLiteStorage) GetCategories(ctx context.Context, planID string) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getCategoriesTx(ctx, s.db, planID)
}

func (s *SQLiteStorage) getCategoriesTx(ctx context.Context, db dbtx, planID string) ([]model.Category, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, plan_id, name, flow_type, estate_type, display_order
		FROM cashflow_categories WHERE plan_id = ?
		ORDER BY display_order, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer closeRows(rows)

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		var flowType, estateType string
		if err := rows.Scan(&cat.ID, &cat.PlanID, &cat.Name, &flowType, &estateType, &cat.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cat.FlowType = model.FlowType(flowType)
		cat.EstateType = model.EstateType(estateType)
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// SaveLines replaces a plan's line set.
func (s *SQLiteStorage) SaveLines(ctx context.Context, planID string, lines []model.Line) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(planID, "planID"); err != nil {
		return err
	}
	return s.saveLinesTx(ctx, s.db, planID, lines)
}

func (s *SQLiteStorage) saveLinesTx(ctx context.Context, db dbtx, planID string, lines []model.Line) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM cashflow_lines WHERE plan_id = ?`, planID); err != nil {
		return fmt.Errorf("failed to clear lines: %w", err)
	}
	for _, line := range lines {
		_, err := db.ExecContext(ctx, `
			INSERT INTO cashflow_lines (id, plan_id, category_id, name, display_order)
			VALUES (?, ?, ?, ?, ?)`,
			line.ID, planID, line.CategoryID, line.Name, line.DisplayOrder)
		if err != nil {
			return fmt.Errorf("failed to save line %s: %w", line.ID, err)
		}
	}
	return nil
}

// GetLines returns a plan's lines in display order.
func (s *SQLiteStorage) GetLines(ctx context.Context, planID string) ([]model.Line, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getLinesTx(ctx, s.db, planID)
}

func (s *SQLiteStorage) getLinesTx(ctx context.Context, db dbtx, planID string) ([]model.Line, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, category_id, name, display_order
		FROM cashflow_lines WHERE plan_id = ?
		ORDER BY display_order, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer closeRows(rows)

	var lines []model.Line
	for rows.Next() {
		var line model.Line
		if err := rows.Scan(&line.ID, &line.CategoryID, &line.Name, &line.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpsertPeriodValue writes one cell, enforcing the one-value-per-cell rule
// through the unique index.
func (s *SQLiteStorage) UpsertPeriodValue(ctx context.Context, planID string, value model.PeriodValue) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(planID, "planID"); err != nil {
		return err
	}
	return s.upsertPeriodValueTx(ctx, s.db, planID, value)
}

func (s *SQLiteStorage) upsertPeriodValueTx(ctx context.Context, db dbtx, planID string, value model.PeriodValue) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO period_values (plan_id, line_id, value_type, period_index, amount_cents)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(line_id, period_index, value_type) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			updated_at = CURRENT_TIMESTAMP`,
		planID, value.LineID, string(value.ValueType), value.PeriodIndex, value.AmountCents)
	if err != nil {
		return fmt.Errorf("failed to upsert period value: %w", err)
	}
	return nil
}

// GetPeriodValues returns a plan's full value set in canonical order.
func (s *SQLiteStorage) GetPeriodValues(ctx context.Context, planID string) ([]model.PeriodValue, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getPeriodValuesTx(ctx, s.db, planID)
}

func (s *SQLiteStorage) getPeriodValuesTx(ctx context.Context, db dbtx, planID string) ([]model.PeriodValue, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT line_id, value_type, period_index, amount_cents
		FROM period_values WHERE plan_id = ?
		ORDER BY line_id, period_index, value_type`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query period values: %w", err)
	}
	defer closeRows(rows)

	return scanPeriodValues(rows)
}

func scanPeriodValues(rows *sql.Rows) ([]model.PeriodValue, error) {
	var values []model.PeriodValue
	for rows.Next() {
		var pv model.PeriodValue
		var valueType string
		if err := rows.Scan(&pv.LineID, &valueType, &pv.PeriodIndex, &pv.AmountCents); err != nil {
			return nil, fmt.Errorf("failed to scan period value: %w", err)
		}
		pv.ValueType = model.ValueType(valueType)
		values = append(values, pv)
	}
	return values, rows.Err()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "error", err)
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hwidmann/liquiplan/internal/common"
	"github.com/hwidmann/liquiplan/internal/model"
)

// CreateVersion appends a new immutable snapshot of a plan's value set. The
// version number is assigned inside the insert transaction so concurrent
// writers can never produce a gap or a duplicate.
func (s *SQLiteStorage) CreateVersion(ctx context.Context, planID string, openingBalanceCents int64, values []model.PeriodValue, dataHash string) (*model.PlanVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(planID, "planID"); err != nil {
		return nil, err
	}
	if err := validateString(dataHash, "dataHash"); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	version, err := s.createVersionTx(ctx, tx, planID, openingBalanceCents, values, dataHash)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStorage) createVersionTx(ctx context.Context, db dbtx, planID string, openingBalanceCents int64, values []model.PeriodValue, dataHash string) (*model.PlanVersion, error) {
	var maxVersion sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM plan_versions WHERE plan_id = ?`, planID).Scan(&maxVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to determine next version: %w", err)
	}

	pv := &model.PlanVersion{
		ID:                  uuid.NewString(),
		PlanID:              planID,
		Version:             int(maxVersion.Int64) + 1,
		OpeningBalanceCents: openingBalanceCents,
		DataHash:            dataHash,
		Values:              append([]model.PeriodValue(nil), values...),
		CreatedAt:           time.Now().UTC(),
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO plan_versions (id, plan_id, version, opening_balance_cents, data_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pv.ID, pv.PlanID, pv.Version, pv.OpeningBalanceCents, pv.DataHash, pv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	for _, value := range pv.Values {
		_, err = db.ExecContext(ctx, `
			INSERT INTO plan_version_values (version_id, line_id, value_type, period_index, amount_cents)
			VALUES (?, ?, ?, ?, ?)`,
			pv.ID, value.LineID, string(value.ValueType), value.PeriodIndex, value.AmountCents)
		if err != nil {
			return nil, fmt.Errorf("failed to insert version value: %w", err)
		}
	}

	return pv, nil
}

// GetVersion retrieves one snapshot including its full value set.
func (s *SQLiteStorage) GetVersion(ctx context.Context, planID string, version int) (*model.PlanVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getVersionTx(ctx, s.db, planID, version)
}

func (s *SQLiteStorage) getVersionTx(ctx context.Context, db dbtx, planID string, version int) (*model.PlanVersion, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, plan_id, version, opening_balance_cents, data_hash, created_at
		FROM plan_versions WHERE plan_id = ? AND version = ?`, planID, version)
	return scanVersionWithValues(ctx, db, row)
}

// GetLatestVersion retrieves the newest snapshot of a plan.
func (s *SQLiteStorage) GetLatestVersion(ctx context.Context, planID string) (*model.PlanVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getLatestVersionTx(ctx, s.db, planID)
}

func (s *SQLiteStorage) getLatestVersionTx(ctx context.Context, db dbtx, planID string) (*model.PlanVersion, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, plan_id, version, opening_balance_cents, data_hash, created_at
		FROM plan_versions WHERE plan_id = ?
		ORDER BY version DESC LIMIT 1`, planID)
	return scanVersionWithValues(ctx, db, row)
}

func scanVersionWithValues(ctx context.Context, db dbtx, row *sql.Row) (*model.PlanVersion, error) {
	var pv model.PlanVersion
	err := row.Scan(&pv.ID, &pv.PlanID, &pv.Version, &pv.OpeningBalanceCents, &pv.DataHash, &pv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: plan version", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT line_id, value_type, period_index, amount_cents
		FROM plan_version_values WHERE version_id = ?
		ORDER BY line_id, period_index, value_type`, pv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query version values: %w", err)
	}
	defer closeRows(rows)

	pv.Values, err = scanPeriodValues(rows)
	if err != nil {
		return nil, err
	}
	return &pv, nil
}

// ListVersions returns a plan's version history without the value sets,
// newest first.
func (s *SQLiteStorage) ListVersions(ctx context.Context, planID string) ([]model.PlanVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listVersionsTx(ctx, s.db, planID)
}

func (s *SQLiteStorage) listVersionsTx(ctx context.Context, db dbtx, planID string) ([]model.PlanVersion, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, plan_id, version, opening_balance_cents, data_hash, created_at
		FROM plan_versions WHERE plan_id = ?
		ORDER BY version DESC`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer closeRows(rows)

	var versions []model.PlanVersion
	for rows.Next() {
		var pv model.PlanVersion
		if err := rows.Scan(&pv.ID, &pv.PlanID, &pv.Version, &pv.OpeningBalanceCents, &pv.DataHash, &pv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, pv)
	}
	return versions, rows.Err()
}

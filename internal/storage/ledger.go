package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hwidmann/liquiplan/internal/common"
	"github.com/hwidmann/liquiplan/internal/model"
	"github.com/hwidmann/liquiplan/internal/service"
)

// SaveLedgerEntries inserts or updates a batch of ledger entries.
func (s *SQLiteStorage) SaveLedgerEntries(ctx context.Context, planID string, entries []model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(planID, "planID"); err != nil {
		return err
	}
	if err := validateLedgerEntries(entries); err != nil {
		return err
	}
	return s.saveLedgerEntriesTx(ctx, s.db, planID, entries)
}

func (s *SQLiteStorage) saveLedgerEntriesTx(ctx context.Context, db dbtx, planID string, entries []model.LedgerEntry) error {
	for _, entry := range entries {
		var ratio any
		if entry.EstateRatio != nil {
			ratio = entry.EstateRatio.String()
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO ledger_entries (
				id, plan_id, transaction_date, description, amount_cents, value_type,
				category_tag, counterparty_ref, location_ref,
				service_period_start, service_period_end,
				estate_allocation, estate_ratio, allocation_source, allocation_note, review_status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				transaction_date = excluded.transaction_date,
				description = excluded.description,
				amount_cents = excluded.amount_cents,
				value_type = excluded.value_type,
				category_tag = excluded.category_tag,
				counterparty_ref = excluded.counterparty_ref,
				location_ref = excluded.location_ref,
				service_period_start = excluded.service_period_start,
				service_period_end = excluded.service_period_end`,
			entry.ID, planID, entry.TransactionDate, entry.Description, entry.AmountCents,
			string(entry.ValueType), entry.CategoryTag, entry.CounterpartyRef, entry.LocationRef,
			entry.ServicePeriodStart, entry.ServicePeriodEnd,
			string(entry.EstateAllocation), ratio, string(entry.AllocationSource),
			entry.AllocationNote, string(entry.ReviewStatus))
		if err != nil {
			return fmt.Errorf("failed to save ledger entry %s: %w", entry.ID, err)
		}
	}
	return nil
}

const ledgerColumns = `id, transaction_date, description, amount_cents, value_type,
	category_tag, counterparty_ref, location_ref,
	service_period_start, service_period_end,
	estate_allocation, estate_ratio, allocation_source, allocation_note, review_status`

// GetLedgerEntries returns a plan's ledger entries matching the filter,
// ordered by transaction date.
func (s *SQLiteStorage) GetLedgerEntries(ctx context.Context, planID string, filter service.LedgerFilter) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(planID, "planID"); err != nil {
		return nil, err
	}
	return s.getLedgerEntriesTx(ctx, s.db, planID, filter)
}

func (s *SQLiteStorage) getLedgerEntriesTx(ctx context.Context, db dbtx, planID string, filter service.LedgerFilter) ([]model.LedgerEntry, error) {
	var conditions []string
	args := []any{planID}
	conditions = append(conditions, "plan_id = ?")

	if filter.StartDate != nil {
		conditions = append(conditions, "transaction_date >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "transaction_date <= ?")
		args = append(args, *filter.EndDate)
	}
	if filter.ValueType != "" {
		conditions = append(conditions, "value_type = ?")
		args = append(args, string(filter.ValueType))
	}
	if filter.Allocation != "" {
		conditions = append(conditions, "estate_allocation = ?")
		args = append(args, string(filter.Allocation))
	}
	if filter.UnallocatedOnly {
		conditions = append(conditions, "(estate_allocation IS NULL OR estate_allocation = '')")
	}

	query := fmt.Sprintf(`SELECT %s FROM ledger_entries WHERE %s ORDER BY transaction_date, id`,
		ledgerColumns, strings.Join(conditions, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer closeRows(rows)

	var entries []model.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetLedgerEntryByID retrieves a single ledger entry.
func (s *SQLiteStorage) GetLedgerEntryByID(ctx context.Context, id string) (*model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getLedgerEntryByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getLedgerEntryByIDTx(ctx context.Context, db dbtx, id string) (*model.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM ledger_entries WHERE id = ?`, ledgerColumns), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entry: %w", err)
	}
	defer closeRows(rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: ledger entry", common.ErrNotFound)
	}
	return scanLedgerEntry(rows)
}

func scanLedgerEntry(rows *sql.Rows) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	var description, categoryTag, counterpartyRef, locationRef sql.NullString
	var allocation, ratio, source, note, reviewStatus sql.NullString
	var serviceStart, serviceEnd sql.NullTime
	var valueType string

	err := rows.Scan(&entry.ID, &entry.TransactionDate, &description, &entry.AmountCents, &valueType,
		&categoryTag, &counterpartyRef, &locationRef,
		&serviceStart, &serviceEnd,
		&allocation, &ratio, &source, &note, &reviewStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	entry.ValueType = model.ValueType(valueType)
	entry.Description = description.String
	entry.CategoryTag = categoryTag.String
	entry.CounterpartyRef = counterpartyRef.String
	entry.LocationRef = locationRef.String
	entry.EstateAllocation = model.EstateAllocation(allocation.String)
	entry.AllocationSource = model.AllocationSource(source.String)
	entry.AllocationNote = note.String
	entry.ReviewStatus = model.ReviewStatus(reviewStatus.String)

	if serviceStart.Valid {
		t := serviceStart.Time
		entry.ServicePeriodStart = &t
	}
	if serviceEnd.Valid {
		t := serviceEnd.Time
		entry.ServicePeriodEnd = &t
	}
	if ratio.Valid && ratio.String != "" {
		d, err := decimal.NewFromString(ratio.String)
		if err != nil {
			return nil, fmt.Errorf("entry %s has malformed estate ratio %q: %w", entry.ID, ratio.String, err)
		}
		entry.EstateRatio = &d
	}
	return &entry, nil
}

// SaveAllocation persists only the allocation fields of an entry. Input
// fields like amount and dates are deliberately left untouched.
func (s *SQLiteStorage) SaveAllocation(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if err := validateString(entry.ID, "entry.ID"); err != nil {
		return err
	}
	return s.saveAllocationTx(ctx, s.db, entry)
}

func (s *SQLiteStorage) saveAllocationTx(ctx context.Context, db dbtx, entry *model.LedgerEntry) error {
	var ratio any
	if entry.EstateRatio != nil {
		ratio = entry.EstateRatio.String()
	}
	result, err := db.ExecContext(ctx, `
		UPDATE ledger_entries SET
			estate_allocation = ?,
			estate_ratio = ?,
			allocation_source = ?,
			allocation_note = ?,
			review_status = ?
		WHERE id = ?`,
		string(entry.EstateAllocation), ratio, string(entry.AllocationSource),
		entry.AllocationNote, string(entry.ReviewStatus), entry.ID)
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check allocation update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: ledger entry %s", common.ErrNotFound, entry.ID)
	}
	return nil
}

// ConfirmAllocation marks an entry's allocation as human-reviewed.
func (s *SQLiteStorage) ConfirmAllocation(ctx context.Context, entryID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(entryID, "entryID"); err != nil {
		return err
	}
	return s.confirmAllocationTx(ctx, s.db, entryID)
}

func (s *SQLiteStorage) confirmAllocationTx(ctx context.Context, db dbtx, entryID string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE ledger_entries SET review_status = ?
		WHERE id = ? AND estate_allocation IS NOT NULL AND estate_allocation != ''`,
		string(model.ReviewConfirmed), entryID)
	if err != nil {
		return fmt.Errorf("failed to confirm allocation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check confirmation: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: allocated ledger entry %s", common.ErrNotFound, entryID)
	}
	return nil
}

// CountUnallocated returns how many of a plan's entries still lack an estate
// allocation.
func (s *SQLiteStorage) CountUnallocated(ctx context.Context, planID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(planID, "planID"); err != nil {
		return 0, err
	}
	return s.countUnallocatedTx(ctx, s.db, planID)
}

func (s *SQLiteStorage) countUnallocatedTx(ctx context.Context, db dbtx, planID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE plan_id = ? AND (estate_allocation IS NULL OR estate_allocation = '')`,
		planID).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to count unallocated entries: %w", err)
	}
	return count, nil
}

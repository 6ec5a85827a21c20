// Package storage provides the data persistence layer for the liquiplan application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hwidmann/liquiplan/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrEmptySlice   = errors.New("slice cannot be empty")
	ErrInvalidPlan  = errors.New("invalid plan")
	ErrInvalidEntry = errors.New("invalid ledger entry")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePlan validates a plan before persisting it.
func validatePlan(plan *model.Plan) error {
	if plan == nil {
		return fmt.Errorf("%w: plan", ErrNilParameter)
	}
	if plan.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPlan)
	}
	if strings.TrimSpace(plan.CaseRef) == "" {
		return fmt.Errorf("%w: missing case reference", ErrInvalidPlan)
	}
	if plan.PeriodType != model.PeriodWeekly && plan.PeriodType != model.PeriodMonthly {
		return fmt.Errorf("%w: unknown period type %q", ErrInvalidPlan, plan.PeriodType)
	}
	if plan.PeriodCount < model.MinPeriodCount || plan.PeriodCount > model.MaxPeriodCount {
		return fmt.Errorf("%w: period count %d outside [%d, %d]",
			ErrInvalidPlan, plan.PeriodCount, model.MinPeriodCount, model.MaxPeriodCount)
	}
	if plan.StartDate.IsZero() {
		return fmt.Errorf("%w: missing start date", ErrInvalidPlan)
	}
	return nil
}

// validateLedgerEntries validates a slice of ledger entries.
func validateLedgerEntries(entries []model.LedgerEntry) error {
	if entries == nil {
		return fmt.Errorf("%w: entries", ErrNilParameter)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: entries", ErrEmptySlice)
	}

	for i, entry := range entries {
		if err := validateLedgerEntry(&entry); err != nil {
			return fmt.Errorf("entry at index %d: %w", i, err)
		}
	}
	return nil
}

// validateLedgerEntry validates a single ledger entry.
func validateLedgerEntry(entry *model.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrNilParameter)
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidEntry)
	}
	if entry.ValueType != model.ValueIST && entry.ValueType != model.ValuePLAN {
		return fmt.Errorf("%w: unknown value type %q", ErrInvalidEntry, entry.ValueType)
	}
	if (entry.ServicePeriodStart == nil) != (entry.ServicePeriodEnd == nil) {
		return fmt.Errorf("%w: service period must have both ends or neither", ErrInvalidEntry)
	}
	if entry.EstateAllocation == model.AllocationMixed && entry.EstateRatio == nil {
		return fmt.Errorf("%w: mixed allocation requires a ratio", ErrInvalidEntry)
	}
	return nil
}

// Package model defines the core domain types shared across the application.
package model

import (
	"time"

	"github.com/google/uuid"
)

// PeriodType determines the granularity of a plan's forecasting horizon.
type PeriodType string

const (
	// PeriodWeekly plans in calendar weeks starting at the plan start date.
	PeriodWeekly PeriodType = "WEEKLY"
	// PeriodMonthly plans in calendar months starting at the plan start date.
	PeriodMonthly PeriodType = "MONTHLY"
)

// ValueType distinguishes actual values from forecasted ones.
type ValueType string

const (
	// ValueIST is an actual, confirmed value (e.g. from a bank statement).
	ValueIST ValueType = "IST"
	// ValuePLAN is a forecasted value used until an actual one is known.
	ValuePLAN ValueType = "PLAN"
)

// FlowType is the direction of a cashflow category.
type FlowType string

const (
	FlowInflow  FlowType = "INFLOW"
	FlowOutflow FlowType = "OUTFLOW"
)

// EstateType is the asset pool a cashflow category belongs to.
type EstateType string

const (
	EstateOld EstateType = "OLD_ESTATE"
	EstateNew EstateType = "NEW_ESTATE"
)

// MinPeriodCount and MaxPeriodCount bound the forecasting horizon.
const (
	MinPeriodCount = 1
	MaxPeriodCount = 52
)

// Plan is the skeleton of a liquidity forecast for one insolvency case.
type Plan struct {
	CreatedAt           time.Time
	StartDate           time.Time
	ID                  string
	CaseRef             string
	Name                string
	PeriodType          PeriodType
	PeriodCount         int
	OpeningBalanceCents int64
}

// NewPlan creates a plan with a fresh identifier.
func NewPlan(caseRef, name string, periodType PeriodType, periodCount int, startDate time.Time, openingBalanceCents int64) *Plan {
	return &Plan{
		ID:                  uuid.NewString(),
		CaseRef:             caseRef,
		Name:                name,
		PeriodType:          periodType,
		PeriodCount:         periodCount,
		StartDate:           startDate,
		OpeningBalanceCents: openingBalanceCents,
		CreatedAt:           time.Now().UTC(),
	}
}

// Category is the upper level of the two-level classification tree.
type Category struct {
	ID           string
	PlanID       string
	Name         string
	FlowType     FlowType
	EstateType   EstateType
	DisplayOrder int
}

// Line is the unit of value entry; it belongs to exactly one category.
type Line struct {
	ID           string
	CategoryID   string
	Name         string
	DisplayOrder int
}

// PeriodValue is the atomic input cell of a plan. At most one value may exist
// per (LineID, PeriodIndex, ValueType) tuple.
type PeriodValue struct {
	LineID      string
	ValueType   ValueType
	PeriodIndex int
	AmountCents int64
}

// PlanVersion is an immutable snapshot of a plan's opening balance and value
// set. Versions are append-only and monotonically numbered; the stored hash
// must always equal the hash recomputed from the stored values.
type PlanVersion struct {
	CreatedAt           time.Time
	ID                  string
	PlanID              string
	DataHash            string
	Values              []PeriodValue
	Version             int
	OpeningBalanceCents int64
}

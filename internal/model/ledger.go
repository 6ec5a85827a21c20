package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EstateAllocation is the legally significant split of a ledger entry between
// the two asset pools of an insolvency proceeding.
type EstateAllocation string

const (
	// AllocationOldEstate assigns the full amount to claims arising before
	// the proceeding's opening date.
	AllocationOldEstate EstateAllocation = "OLD_ESTATE"
	// AllocationNewEstate assigns the full amount to claims arising after
	// the proceeding's opening date.
	AllocationNewEstate EstateAllocation = "NEW_ESTATE"
	// AllocationMixed splits the amount between both pools by EstateRatio.
	AllocationMixed EstateAllocation = "MIXED"
	// AllocationUndetermined marks entries no rule could decide. This is a
	// data-quality flag surfaced to operators, never silently resolved.
	AllocationUndetermined EstateAllocation = "UNDETERMINED"
)

// AllocationSource records which rule produced an estate allocation.
type AllocationSource string

const (
	// SourceExplicit means a human or the import pipeline set the allocation;
	// the splitter never overrides it.
	SourceExplicit AllocationSource = "EXPLICIT"
	// SourceDateCutoff is the binary before/after comparison against the
	// proceeding's opening date.
	SourceDateCutoff AllocationSource = "DATE_CUTOFF"
	// SourceProration is the day-exact split of a service period straddling
	// the opening date.
	SourceProration AllocationSource = "PERIOD_PRORATION"
	// SourcePriorMonth derives the service period from the month preceding
	// the payment date for counterparties that settle in arrears.
	SourcePriorMonth AllocationSource = "PRIOR_MONTH"
	// SourceContractRatio applies a fixed split from a governing agreement.
	SourceContractRatio AllocationSource = "CONTRACT_RATIO"
	// SourceUndetermined marks the fallback when no rule applies.
	SourceUndetermined AllocationSource = "UNDETERMINED"
)

// ReviewStatus tracks human review of an entry's classification.
type ReviewStatus string

const (
	ReviewUnreviewed ReviewStatus = "UNREVIEWED"
	ReviewConfirmed  ReviewStatus = "CONFIRMED"
)

// LedgerEntry is a single monetary transaction. Classification fields
// (CategoryTag, CounterpartyRef, LocationRef) are owned by the external rule
// engine; allocation fields are owned by the estate allocation splitter.
type LedgerEntry struct {
	TransactionDate    time.Time
	ServicePeriodStart *time.Time
	ServicePeriodEnd   *time.Time
	EstateRatio        *decimal.Decimal
	ID                 string
	Description        string
	CategoryTag        string
	CounterpartyRef    string
	LocationRef        string
	ValueType          ValueType
	EstateAllocation   EstateAllocation
	AllocationSource   AllocationSource
	AllocationNote     string
	ReviewStatus       ReviewStatus
	AmountCents        int64
}

// NewLedgerEntry creates an unallocated, unreviewed entry with a fresh ID.
func NewLedgerEntry(date time.Time, description string, amountCents int64, valueType ValueType) *LedgerEntry {
	return &LedgerEntry{
		ID:              uuid.NewString(),
		TransactionDate: date,
		Description:     description,
		AmountCents:     amountCents,
		ValueType:       valueType,
		ReviewStatus:    ReviewUnreviewed,
	}
}

// HasServicePeriod reports whether both ends of the service period are known.
func (e *LedgerEntry) HasServicePeriod() bool {
	return e.ServicePeriodStart != nil && e.ServicePeriodEnd != nil
}

// IsAllocated reports whether the entry already carries an estate allocation.
func (e *LedgerEntry) IsAllocated() bool {
	return e.EstateAllocation != ""
}

// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/hwidmann/liquiplan/internal/model"
)

// LedgerFilter defines filtering options for ledger entry queries.
type LedgerFilter struct {
	StartDate       *time.Time
	EndDate         *time.Time
	ValueType       model.ValueType
	Allocation      model.EstateAllocation
	UnallocatedOnly bool
	Limit           int
	Offset          int
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Plan operations
	SavePlan(ctx context.Context, plan *model.Plan) error
	GetPlan(ctx context.Context, id string) (*model.Plan, error)
	GetPlanByCaseRef(ctx context.Context, caseRef string) (*model.Plan, error)
	ListPlans(ctx context.Context) ([]model.Plan, error)
	SaveCategories(ctx context.Context, planID string, categories []model.Category) error
	GetCategories(ctx context.Context, planID string) ([]model.Category, error)
	SaveLines(ctx context.Context, planID string, lines []model.Line) error
	GetLines(ctx context.Context, planID string) ([]model.Line, error)
	UpsertPeriodValue(ctx context.Context, planID string, value model.PeriodValue) error
	GetPeriodValues(ctx context.Context, planID string) ([]model.PeriodValue, error)

	// Version operations. Versions are append-only snapshots; stored rows are
	// never updated in place.
	CreateVersion(ctx context.Context, planID string, openingBalanceCents int64, values []model.PeriodValue, dataHash string) (*model.PlanVersion, error)
	GetVersion(ctx context.Context, planID string, version int) (*model.PlanVersion, error)
	GetLatestVersion(ctx context.Context, planID string) (*model.PlanVersion, error)
	ListVersions(ctx context.Context, planID string) ([]model.PlanVersion, error)

	// Ledger operations
	SaveLedgerEntries(ctx context.Context, planID string, entries []model.LedgerEntry) error
	GetLedgerEntries(ctx context.Context, planID string, filter LedgerFilter) ([]model.LedgerEntry, error)
	GetLedgerEntryByID(ctx context.Context, id string) (*model.LedgerEntry, error)
	SaveAllocation(ctx context.Context, entry *model.LedgerEntry) error
	ConfirmAllocation(ctx context.Context, entryID string) error
	CountUnallocated(ctx context.Context, planID string) (int, error)

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

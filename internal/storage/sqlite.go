package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hwidmann/liquiplan/internal/model"
	"github.com/hwidmann/liquiplan/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
// Reads route through the tx handle as well: the pool holds a single
// connection, so a read against the db would wait on the connection the
// open transaction already occupies.
func (t *sqliteTransaction) SavePlan(ctx context.Context, plan *model.Plan) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePlan(plan); err != nil {
		return err
	}
	return t.storage.savePlanTx(ctx, t.tx, plan)
}

func (t *sqliteTransaction) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getPlanTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetPlanByCaseRef(ctx context.Context, caseRef string) (*model.Plan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(caseRef, "caseRef"); err != nil {
		return nil, err
	}
	return t.storage.getPlanByCaseRefTx(ctx, t.tx, caseRef)
}

func (t *sqliteTransaction) ListPlans(ctx context.Context) ([]model.Plan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listPlansTx(ctx, t.tx)
}

func (t *sqliteTransaction) SaveCategories(ctx context.Context, planID string, categories []model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.saveCategoriesTx(ctx, t.tx, planID, categories)
}

func (t *sqliteTransaction) GetCategories(ctx context.Context, planID string) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getCategoriesTx(ctx, t.tx, planID)
}

func (t *sqliteTransaction) SaveLines(ctx context.Context, planID string, lines []model.Line) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.saveLinesTx(ctx, t.tx, planID, lines)
}

func (t *sqliteTransaction) GetLines(ctx context.Context, planID string) ([]model.Line, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getLinesTx(ctx, t.tx, planID)
}

func (t *sqliteTransaction) UpsertPeriodValue(ctx context.Context, planID string, value model.PeriodValue) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.upsertPeriodValueTx(ctx, t.tx, planID, value)
}

func (t *sqliteTransaction) GetPeriodValues(ctx context.Context, planID string) ([]model.PeriodValue, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getPeriodValuesTx(ctx, t.tx, planID)
}

func (t *sqliteTransaction) CreateVersion(ctx context.Context, planID string, openingBalanceCents int64, values []model.PeriodValue, dataHash string) (*model.PlanVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.createVersionTx(ctx, t.tx, planID, openingBalanceCents, values, dataHash)
}

func (t *sqliteTransaction) GetVersion(ctx context.Context, planID string, version int) (*model.PlanVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getVersionTx(ctx, t.tx, planID, version)
}

func (t *sqliteTransaction) GetLatestVersion(ctx context.Context, planID string) (*model.PlanVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getLatestVersionTx(ctx, t.tx, planID)
}

func (t *sqliteTransaction) ListVersions(ctx context.Context, planID string) ([]model.PlanVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listVersionsTx(ctx, t.tx, planID)
}

func (t *sqliteTransaction) SaveLedgerEntries(ctx context.Context, planID string, entries []model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLedgerEntries(entries); err != nil {
		return err
	}
	return t.storage.saveLedgerEntriesTx(ctx, t.tx, planID, entries)
}

func (t *sqliteTransaction) GetLedgerEntries(ctx context.Context, planID string, filter service.LedgerFilter) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(planID, "planID"); err != nil {
		return nil, err
	}
	return t.storage.getLedgerEntriesTx(ctx, t.tx, planID, filter)
}

func (t *sqliteTransaction) GetLedgerEntryByID(ctx context.Context, id string) (*model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getLedgerEntryByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) SaveAllocation(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.saveAllocationTx(ctx, t.tx, entry)
}

func (t *sqliteTransaction) ConfirmAllocation(ctx context.Context, entryID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(entryID, "entryID"); err != nil {
		return err
	}
	return t.storage.confirmAllocationTx(ctx, t.tx, entryID)
}

func (t *sqliteTransaction) CountUnallocated(ctx context.Context, planID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(planID, "planID"); err != nil {
		return 0, err
	}
	return t.storage.countUnallocatedTx(ctx, t.tx, planID)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}

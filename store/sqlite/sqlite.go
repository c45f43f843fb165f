/*
Package sqlite provides a SQLite-backed reference data store.

PURPOSE:
  Implements engine.ReferenceSource over SQLite so the CLI can load index
  series, the recovery table and the term structure from one file, and
  keeps the policy definitions and run history that go with them.

KEY TABLES:
  index_points:   monthly index values, one row per (kind, period)
  recovery_rates: recovery rate and months to receipt per
                  (entity, contract_type, bucket)
  term_points:    term structure, one row per month count
  policies:       JSON correction policies (versioned on update)
  runs:           one row per valuation run with its diagnostics

REPLACE SEMANTICS:
  Each Save* call replaces the whole dataset (or the whole series of one
  kind) inside a single transaction. Reference data is published as a
  unit, never patched row by row.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, which also
  keeps ":memory:" databases alive across calls.

USAGE:
  store, err := sqlite.New("./var/reference.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  refs, err := engine.LoadReferences(ctx, store, engine.IndexIGPM, engine.IndexIPCA)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - engine/store.go: ReferenceSource interface
  - engine/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/receivables-engine/engine"
)

// Store implements engine.ReferenceSource using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ engine.ReferenceSource = (*Store)(nil)

// New opens (or creates) the reference database at dbPath and applies the
// schema. ":memory:" gives a private in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema; every statement is idempotent.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_points (
		kind TEXT NOT NULL,
		period TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (kind, period)
	);

	CREATE TABLE IF NOT EXISTS recovery_rates (
		position INTEGER NOT NULL,
		entity TEXT NOT NULL,
		contract_type TEXT NOT NULL,
		bucket TEXT NOT NULL,
		rate REAL NOT NULL,
		months_to_receipt INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recovery_rates_position
		ON recovery_rates(position);

	CREATE TABLE IF NOT EXISTS term_points (
		months INTEGER PRIMARY KEY,
		rate_252 REAL NOT NULL,
		rate_360 REAL
	);

	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		variant TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		variant TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		fair_value TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		diagnostics_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_portfolio
		ON runs(portfolio_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INDEX SERIES
// =============================================================================

// SaveIndexSeries replaces every point of the series' kind.
func (s *Store) SaveIndexSeries(ctx context.Context, series *engine.IndexSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM index_points WHERE kind = ?", string(series.Kind)); err != nil {
		return err
	}
	for _, p := range series.Points() {
		if _, err := sqlTx.ExecContext(ctx,
			"INSERT INTO index_points (kind, period, value) VALUES (?, ?, ?)",
			string(series.Kind), p.Period.String(), p.Value,
		); err != nil {
			return fmt.Errorf("failed to save index point %s: %w", p.Period, err)
		}
	}
	return sqlTx.Commit()
}

// IndexSeries loads one series, or MissingReferenceDataError when the kind
// has no points.
func (s *Store) IndexSeries(ctx context.Context, kind engine.IndexKind) (*engine.IndexSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT period, value FROM index_points WHERE kind = ? ORDER BY period", string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []engine.IndexPoint
	for rows.Next() {
		var period string
		var value float64
		if err := rows.Scan(&period, &value); err != nil {
			return nil, err
		}
		m, err := engine.ParseMonth(period)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", kind, err)
		}
		points = append(points, engine.IndexPoint{Period: m, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, &engine.MissingReferenceDataError{Dataset: engine.DatasetIndexSeries(kind)}
	}
	return engine.NewIndexSeries(kind, points)
}

// =============================================================================
// RECOVERY TABLE
// =============================================================================

// SaveRecoveryTable replaces the recovery table, keeping entry order.
func (s *Store) SaveRecoveryTable(ctx context.Context, table *engine.RecoveryTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM recovery_rates"); err != nil {
		return err
	}
	for i, e := range table.Entries() {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO recovery_rates (position, entity, contract_type, bucket, rate, months_to_receipt)
			VALUES (?, ?, ?, ?, ?, ?)`,
			i, e.Entity, e.ContractType, string(e.Bucket), e.Rate, e.MonthsToReceipt,
		); err != nil {
			return fmt.Errorf("failed to save recovery entry %d: %w", i, err)
		}
	}
	return sqlTx.Commit()
}

func (s *Store) RecoveryTable(ctx context.Context) (*engine.RecoveryTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity, contract_type, bucket, rate, months_to_receipt
		FROM recovery_rates ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []engine.RecoveryEntry
	for rows.Next() {
		var e engine.RecoveryEntry
		var bucket string
		if err := rows.Scan(&e.Entity, &e.ContractType, &bucket, &e.Rate, &e.MonthsToReceipt); err != nil {
			return nil, err
		}
		e.Bucket = engine.CoarseBucket(bucket)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &engine.MissingReferenceDataError{Dataset: engine.DatasetRecoveryTable}
	}
	return engine.NewRecoveryTable(entries), nil
}

// =============================================================================
// TERM STRUCTURE
// =============================================================================

func (s *Store) SaveTermStructure(ctx context.Context, ts *engine.TermStructure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM term_points"); err != nil {
		return err
	}
	for _, p := range ts.Points() {
		var rate360 sql.NullFloat64
		if p.Rate360 != nil {
			rate360 = sql.NullFloat64{Float64: *p.Rate360, Valid: true}
		}
		if _, err := sqlTx.ExecContext(ctx,
			"INSERT INTO term_points (months, rate_252, rate_360) VALUES (?, ?, ?)",
			p.Months, p.Rate252, rate360,
		); err != nil {
			return fmt.Errorf("failed to save term point %d: %w", p.Months, err)
		}
	}
	return sqlTx.Commit()
}

func (s *Store) TermStructure(ctx context.Context) (*engine.TermStructure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT months, rate_252, rate_360 FROM term_points ORDER BY months")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []engine.TermPoint
	for rows.Next() {
		var p engine.TermPoint
		var rate360 sql.NullFloat64
		if err := rows.Scan(&p.Months, &p.Rate252, &rate360); err != nil {
			return nil, err
		}
		if rate360.Valid {
			v := rate360.Float64
			p.Rate360 = &v
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, &engine.MissingReferenceDataError{Dataset: engine.DatasetTermStructure}
	}
	return engine.NewTermStructure(points)
}

// =============================================================================
// POLICY STORE
// =============================================================================

// PolicyRecord is a correction policy stored as its JSON definition.
type PolicyRecord struct {
	ID         string
	Name       string
	Variant    string
	ConfigJSON string
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SavePolicy inserts a policy or bumps the version of an existing one.
func (s *Store) SavePolicy(ctx context.Context, policy PolicyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO policies (id, name, variant, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			variant = excluded.variant,
			config_json = excluded.config_json,
			version = policies.version + 1,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		policy.ID, policy.Name, policy.Variant, policy.ConfigJSON, now, now,
	)
	return err
}

// GetPolicy retrieves a policy by ID, nil when absent.
func (s *Store) GetPolicy(ctx context.Context, id string) (*PolicyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p PolicyRecord
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, variant, config_json, version, created_at, updated_at FROM policies WHERE id = ?",
		id,
	).Scan(&p.ID, &p.Name, &p.Variant, &p.ConfigJSON, &p.Version, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// ListPolicies returns every stored policy ordered by name.
func (s *Store) ListPolicies(ctx context.Context) ([]PolicyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, variant, config_json, version, created_at, updated_at FROM policies ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []PolicyRecord
	for rows.Next() {
		var p PolicyRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Variant, &p.ConfigJSON, &p.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// =============================================================================
// RUN HISTORY
// =============================================================================

// RunRecord summarizes one valuation run.
type RunRecord struct {
	ID          string
	PortfolioID string
	Variant     string
	Rows        int
	FairValue   string
	Status      string // completed | failed
	Error       string
	Diagnostics engine.Diagnostics
	CreatedAt   time.Time
}

// NewRunRecord builds the record of a finished run.
func NewRunRecord(d engine.Diagnostics, runErr error) RunRecord {
	r := RunRecord{
		ID:          d.RunID,
		PortfolioID: d.PortfolioID,
		Variant:     string(d.Variant),
		Rows:        d.Rows,
		FairValue:   d.Totals.FairValue.StringFixed(2),
		Status:      "completed",
		Diagnostics: d,
	}
	if runErr != nil {
		r.Status = "failed"
		r.Error = runErr.Error()
	}
	return r
}

func (s *Store) SaveRun(ctx context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	diagJSON, err := json.Marshal(r.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, portfolio_id, variant, row_count, fair_value, status, error, diagnostics_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PortfolioID, r.Variant, r.Rows, r.FairValue, r.Status,
		nullString(r.Error), string(diagJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil && isUniqueConstraintError(err) {
		return fmt.Errorf("run %s already recorded: %w", r.ID, err)
	}
	return err
}

// ListRuns returns the most recent runs of a portfolio, newest first.
func (s *Store) ListRuns(ctx context.Context, portfolioID string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portfolio_id, variant, row_count, fair_value, status, error, diagnostics_json, created_at
		FROM runs WHERE portfolio_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		portfolioID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var errText sql.NullString
		var diagJSON, createdAt string
		if err := rows.Scan(&r.ID, &r.PortfolioID, &r.Variant, &r.Rows, &r.FairValue,
			&r.Status, &errText, &diagJSON, &createdAt); err != nil {
			return nil, err
		}
		r.Error = errText.String
		if err := json.Unmarshal([]byte(diagJSON), &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("run %s: decode diagnostics: %w", r.ID, err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset deletes every row from every table.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"index_points", "recovery_rates", "term_points", "policies", "runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

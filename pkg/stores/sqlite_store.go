package stores

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/constrictor/constrictor/pkg/catalogue"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// every connection to :memory: opens its own database
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	sep := "?"
	if strings.Contains(s.cfg.Path, "?") {
		sep = "&"
	}
	dsn := s.cfg.Path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// UpsertDataset validates a dataset and stores its definition, replacing any
// dataset with the same id.
func (s *SQLiteStore) UpsertDataset(ctx context.Context, d *catalogue.Dataset) (*DatasetRecord, error) {
	if err := catalogue.ValidateDataset(d); err != nil {
		return nil, fmt.Errorf("invalid dataset %s: %w", d.ID, err)
	}

	definition, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}
	sum := sha256.Sum256(definition)
	now := time.Now().UTC()

	query := `
		INSERT INTO datasets (id, title, definition, checksum, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			definition = excluded.definition,
			checksum = excluded.checksum,
			source = excluded.source,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		d.ID,
		d.Title,
		string(definition),
		hex.EncodeToString(sum[:]),
		d.Source,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert dataset: %w", err)
	}

	return s.GetDatasetRecord(ctx, d.ID)
}

// GetDatasetRecord retrieves a stored dataset by ID
func (s *SQLiteStore) GetDatasetRecord(ctx context.Context, id string) (*DatasetRecord, error) {
	query := `
		SELECT id, title, definition, checksum, source, created_at, updated_at
		FROM datasets
		WHERE id = ?
	`

	rec := &DatasetRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Title,
		&rec.Definition,
		&rec.Checksum,
		&rec.Source,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", catalogue.ErrDatasetNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	return rec, nil
}

// GetDataset decodes a stored dataset definition. It makes the store usable
// as the catalogue of an estimator.
func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*catalogue.Dataset, error) {
	rec, err := s.GetDatasetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	d, err := catalogue.DecodeJSON([]byte(rec.Definition))
	if err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", id, err)
	}
	d.Source = rec.Source
	return d, nil
}

// ListDatasets lists stored datasets by id with pagination
func (s *SQLiteStore) ListDatasets(ctx context.Context, limit, offset int) ([]*DatasetRecord, error) {
	query := `
		SELECT id, title, definition, checksum, source, created_at, updated_at
		FROM datasets
		ORDER BY id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	records := []*DatasetRecord{}
	for rows.Next() {
		rec := &DatasetRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.Title,
			&rec.Definition,
			&rec.Checksum,
			&rec.Source,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}

	return records, nil
}

// DeleteDataset deletes a dataset by ID. Its audited estimates are kept.
func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	query := `DELETE FROM datasets WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", catalogue.ErrDatasetNotFound, id)
	}

	return nil
}

// RecordEstimate appends an estimate to the audit log
func (s *SQLiteStore) RecordEstimate(ctx context.Context, e *EstimateRecord) error {
	if e.ID == "" {
		return fmt.Errorf("estimate id is required")
	}
	if e.Request == "" {
		e.Request = "{}"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO estimates (id, dataset_id, origin, granules, cost_id, cost, cost_limit, allowed, reason, request, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.DatasetID,
		e.Origin,
		e.Granules,
		e.CostID,
		e.Cost,
		e.CostLimit,
		e.Allowed,
		e.Reason,
		e.Request,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record estimate: %w", err)
	}

	return nil
}

// GetEstimate retrieves an audited estimate by ID
func (s *SQLiteStore) GetEstimate(ctx context.Context, id string) (*EstimateRecord, error) {
	query := `
		SELECT id, dataset_id, origin, granules, cost_id, cost, cost_limit, allowed, reason, request, created_at
		FROM estimates
		WHERE id = ?
	`

	rec, err := scanEstimate(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEstimateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get estimate: %w", err)
	}
	return rec, nil
}

// ListEstimates lists audited estimates, newest first.
func (s *SQLiteStore) ListEstimates(ctx context.Context, filter EstimateFilter) ([]*EstimateRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	query := `
		SELECT id, dataset_id, origin, granules, cost_id, cost, cost_limit, allowed, reason, request, created_at
		FROM estimates
		WHERE (? IS NULL OR dataset_id = ?)
		  AND (? IS NULL OR allowed = ?)
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.DatasetID, filter.DatasetID,
		filter.Allowed, filter.Allowed,
		filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list estimates: %w", err)
	}
	defer rows.Close()

	records := []*EstimateRecord{}
	for rows.Next() {
		rec, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating estimates: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEstimate(row rowScanner) (*EstimateRecord, error) {
	rec := &EstimateRecord{}
	err := row.Scan(
		&rec.ID,
		&rec.DatasetID,
		&rec.Origin,
		&rec.Granules,
		&rec.CostID,
		&rec.Cost,
		&rec.CostLimit,
		&rec.Allowed,
		&rec.Reason,
		&rec.Request,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// Package metastore is the schema/metadata collaborator (spec.md §6):
// dataset lifecycle plus the append-only column log that internal/schema's
// fold rule reduces into an effective schema.
package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vaultds/segmentstore/internal/schema"
	"github.com/vaultds/segmentstore/internal/segerr"
	"github.com/vaultds/segmentstore/pkg/types"
)

// Store is the schema/metadata store collaborator. A single writer
// connection serializes dataset/column mutations; a pooled reader
// connection serves concurrent getSchema/getDataset calls.
type Store struct {
	db     *sql.DB // single writer
	readDB *sql.DB // concurrent readers
	mu     sync.Mutex
}

// Open creates or attaches to a SQLite-backed metadata store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("metastore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, readDB: readDB}
	if err := s.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			name TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS columns (
			dataset TEXT NOT NULL,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			column_type TEXT NOT NULL,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (dataset, name, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_columns_dataset_version ON columns(dataset, version)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("metastore: failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// NewDataset registers a dataset. Returns segerr with CategoryConflict if
// the dataset already exists.
func (s *Store) NewDataset(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM datasets WHERE name = ?`, name)
	if err := row.Scan(&exists); err != nil {
		return segerr.StoreError("metastore: failed to check dataset existence", err)
	}
	if exists > 0 {
		return segerr.AlreadyExists(fmt.Sprintf("metastore: dataset %q already exists", name))
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO datasets (name, created_at) VALUES (?, ?)`, name, nowUnixNano()); err != nil {
		return segerr.StoreError("metastore: failed to insert dataset", err)
	}
	return nil
}

// GetDataset returns whether a dataset exists.
func (s *Store) GetDataset(ctx context.Context, name string) (bool, error) {
	var exists int
	row := s.readDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM datasets WHERE name = ?`, name)
	if err := row.Scan(&exists); err != nil {
		return false, segerr.StoreError("metastore: failed to query dataset", err)
	}
	return exists > 0, nil
}

// DeleteDataset removes a dataset and its column history.
//
// Open question: the behavior on deleting an already-absent dataset is
// unspecified upstream. This store pins Success (not NotFound): deletion
// is idempotent, matching the delete semantics used elsewhere in this
// codebase's object store layer.
func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM columns WHERE dataset = ?`, name); err != nil {
		return segerr.StoreError("metastore: failed to delete dataset columns", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return segerr.StoreError("metastore: failed to delete dataset", err)
	}
	return nil
}

// InsertColumn appends a column record to the dataset's history. Columns
// are append-only: this never mutates or removes a prior version's row.
// col.IsDeleted is persisted as-is; a caller wanting a tombstone should set
// it directly or use DeleteColumn.
func (s *Store) InsertColumn(ctx context.Context, col types.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO columns (dataset, name, version, column_type, is_deleted) VALUES (?, ?, ?, ?, ?)`,
		col.Dataset, col.Name, col.Version, types.ColumnTypeTag(col.ColumnType), boolToInt(col.IsDeleted),
	)
	if err != nil {
		return segerr.StoreError("metastore: failed to insert column", err)
	}
	return nil
}

// DeleteColumn appends a tombstone record for name at version: the fold
// rule (internal/schema.Fold) removes name from the effective schema from
// this version onward. The tombstone row records the columnType argument as
// its type, so the row remains self-describing.
func (s *Store) DeleteColumn(ctx context.Context, dataset, name string, version int, columnType types.ColumnType) error {
	col := types.NewColumn(name, dataset, version, columnType)
	col.IsDeleted = true
	return s.InsertColumn(ctx, col)
}

// GetSchema returns the effective schema for dataset at the given version
// horizon: the Schema Engine's fold rule applied to every stored column
// with version <= asked version, in insertion (version) order.
func (s *Store) GetSchema(ctx context.Context, dataset string, version int) (types.Schema, error) {
	rows, err := s.readDB.QueryContext(ctx,
		`SELECT name, version, column_type, is_deleted FROM columns WHERE dataset = ? AND version <= ? ORDER BY version ASC, rowid ASC`,
		dataset, version,
	)
	if err != nil {
		return nil, segerr.StoreError("metastore: failed to query columns", err)
	}
	defer rows.Close()

	result := make(types.Schema)
	for rows.Next() {
		var name string
		var colVersion int
		var tag string
		var isDeleted int
		if err := rows.Scan(&name, &colVersion, &tag, &isDeleted); err != nil {
			return nil, segerr.StoreError("metastore: failed to scan column row", err)
		}

		colType, ok := types.ColumnTypeFromTag(tag)
		if !ok {
			return nil, segerr.MetadataException(fmt.Sprintf("metastore: unknown column type tag %q", tag))
		}

		col := types.NewColumn(name, dataset, colVersion, colType)
		col.IsDeleted = isDeleted != 0
		schema.FoldInto(result, col)
	}
	if err := rows.Err(); err != nil {
		return nil, segerr.StoreError("metastore: failed to iterate column rows", err)
	}

	return result, nil
}

// Close closes both connections.
func (s *Store) Close() error {
	if err := s.readDB.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

func nowUnixNano() int64 {
	return time.Now().UnixNano()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gb-go/internal/database/migrations"
	"gb-go/internal/gb"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase is the run catalog, implementing gb.RunStore on SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the catalog at path and applies pending migrations.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is its own database; a single
	// connection also serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

func (s *SQLiteDatabase) CreateRun(run *gb.Run) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO runs (id, operation_id, device, generation, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.OperationID, run.Device, run.Generation, run.StartedAt.UTC(), string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FinishRun(run *gb.Run) error {
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	res, err := s.db.ExecContext(context.Background(), `
		UPDATE runs
		SET finished_at = ?, status = ?, copied = ?, skipped = ?, ignored = ?, bytes_copied = ?, error = ?
		WHERE id = ?`,
		finished, string(run.Status), run.Copied, run.Skipped, run.Ignored, run.BytesCopied, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*gb.Run, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, operation_id, device, generation, started_at, finished_at, status,
		       copied, skipped, ignored, bytes_copied, error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*gb.Run
	for rows.Next() {
		var (
			r        gb.Run
			status   string
			started  time.Time
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.OperationID, &r.Device, &r.Generation, &started, &finished, &status,
			&r.Copied, &r.Skipped, &r.Ignored, &r.BytesCopied, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Status = gb.RunStatus(status)
		r.StartedAt = started
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// Compile-time check that SQLiteDatabase implements gb.RunStore interface
var _ gb.RunStore = (*SQLiteDatabase)(nil)

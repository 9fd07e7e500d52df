// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/visibility-engine/internal/state"
)

// SQLiteStore is the durable Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the checkpoint database at path, creating the
// parent directory and schema if they do not exist.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serialises writers; lease checks rely on it.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			epoch INTEGER NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0,
			company TEXT,
			cursor TEXT,
			last_node TEXT,
			status TEXT,
			error TEXT,
			state TEXT,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			seq INTEGER NOT NULL,
			epoch INTEGER NOT NULL,
			cursor TEXT,
			last_node TEXT,
			status TEXT NOT NULL,
			error TEXT,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_updated_at ON runs(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Acquire starts a new lease for runID.
func (s *SQLiteStore) Acquire(ctx context.Context, runID string) (int64, error) {
	var epoch int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO runs (run_id, epoch) VALUES (?, 1)
		 ON CONFLICT(run_id) DO UPDATE SET epoch = epoch + 1
		 RETURNING epoch`, runID,
	).Scan(&epoch)
	if err != nil {
		return 0, fmt.Errorf("acquiring lease for %s: %w", runID, err)
	}
	return epoch, nil
}

// Revoke ends the current lease for runID and records a cancelled checkpoint
// unless the run already completed.
func (s *SQLiteStore) Revoke(ctx context.Context, runID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var epoch, seq int64
	var status sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT epoch, seq, status FROM runs WHERE run_id = ?`, runID,
	).Scan(&epoch, &seq, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return 0, fmt.Errorf("reading run %s: %w", runID, err)
	}

	next := epoch + 1
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET epoch = ? WHERE run_id = ?`, next, runID); err != nil {
		return 0, fmt.Errorf("revoking lease: %w", err)
	}

	if seq > 0 && Status(status.String) != StatusCompleted {
		now := time.Now().UTC().Format(timeLayout)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoints (run_id, seq, epoch, cursor, last_node, status, error, state, created_at)
			 SELECT run_id, seq + 1, ?, cursor, last_node, ?, error, state, ? FROM runs WHERE run_id = ?`,
			next, string(StatusCancelled), now, runID,
		)
		if err != nil {
			return 0, fmt.Errorf("recording cancellation: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE runs SET seq = seq + 1, status = ?, updated_at = ? WHERE run_id = ?`,
			string(StatusCancelled), now, runID,
		)
		if err != nil {
			return 0, fmt.Errorf("recording cancellation: %w", err)
		}
	}

	return epoch, tx.Commit()
}

// Save persists cp if its epoch is the run's current lease.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) (Checkpoint, error) {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("marshaling state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current, seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT epoch, seq FROM runs WHERE run_id = ?`, cp.RunID,
	).Scan(&current, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("%w: run %s has no lease", ErrStaleEpoch, cp.RunID)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("reading run %s: %w", cp.RunID, err)
	}
	if cp.Epoch != current {
		return Checkpoint{}, fmt.Errorf("%w: run %s epoch %d, current %d", ErrStaleEpoch, cp.RunID, cp.Epoch, current)
	}

	cp.Seq = seq + 1
	cp.UpdatedAt = time.Now().UTC()
	updated := cp.UpdatedAt.Format(timeLayout)

	company := ""
	if cp.State != nil {
		company = cp.State.BrandInfo.CompanyName
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, seq, epoch, cursor, last_node, status, error, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.RunID, cp.Seq, cp.Epoch, cp.Cursor, cp.LastNode, string(cp.Status), cp.Error, string(stateJSON), updated,
	)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("inserting checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET seq = ?, company = ?, cursor = ?, last_node = ?, status = ?, error = ?, state = ?, updated_at = ?
		 WHERE run_id = ?`,
		cp.Seq, company, cp.Cursor, cp.LastNode, string(cp.Status), cp.Error, string(stateJSON), updated, cp.RunID,
	)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("updating run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Checkpoint{}, fmt.Errorf("committing checkpoint: %w", err)
	}
	return cp, nil
}

// Load returns the latest checkpoint for runID.
func (s *SQLiteStore) Load(ctx context.Context, runID string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, epoch, seq, cursor, last_node, status, error, state, updated_at
		 FROM runs WHERE run_id = ? AND seq > 0`, runID)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return cp, nil
}

// History returns every checkpoint for runID in sequence order.
func (s *SQLiteStore) History(ctx context.Context, runID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, epoch, seq, cursor, last_node, status, error, state, created_at
		 FROM checkpoints WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// List returns every run that has at least one checkpoint.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, company, status, cursor, last_node, seq, error, updated_at
		 FROM runs WHERE seq > 0 ORDER BY updated_at DESC, run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var company, status, cursor, lastNode, errMsg, updated sql.NullString
		if err := rows.Scan(&sum.RunID, &company, &status, &cursor, &lastNode, &sum.Seq, &errMsg, &updated); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		sum.Company = company.String
		sum.Status = Status(status.String)
		sum.Cursor = cursor.String
		sum.LastNode = lastNode.String
		sum.Error = errMsg.String
		sum.UpdatedAt = parseTime(updated.String)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (Checkpoint, error) {
	var cp Checkpoint
	var cursor, lastNode, status, errMsg, stateJSON, updated sql.NullString
	if err := row.Scan(&cp.RunID, &cp.Epoch, &cp.Seq, &cursor, &lastNode, &status, &errMsg, &stateJSON, &updated); err != nil {
		return Checkpoint{}, err
	}
	cp.Cursor = cursor.String
	cp.LastNode = lastNode.String
	cp.Status = Status(status.String)
	cp.Error = errMsg.String
	cp.UpdatedAt = parseTime(updated.String)

	if stateJSON.Valid && stateJSON.String != "" && stateJSON.String != "null" {
		var st state.State
		if err := json.Unmarshal([]byte(stateJSON.String), &st); err != nil {
			return Checkpoint{}, fmt.Errorf("decoding state: %w", err)
		}
		cp.State = &st
	}
	return cp, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

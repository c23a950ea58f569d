// Package ledger keeps an SQLite audit trail of runs. It is written, never
// consulted: a run always processes the full subject list.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nsafar1/vbmgrid/internal/matrix"
	"github.com/nsafar1/vbmgrid/internal/model"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run describes one CLI invocation.
type Run struct {
	ID         string
	ConfigPath string
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Error      string
}

// Ledger is a handle on the ledger database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// Workers never write the ledger; a single connection avoids lock
	// contention between the app's own statements.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, SchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun records a run in the running state.
func (l *Ledger) StartRun(ctx context.Context, run Run) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, config_path, command, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.ConfigPath, run.Command, run.StartedAt.UTC(), RunRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// FinishRun marks a run as finished. A nil runErr means success.
func (l *Ledger) FinishRun(ctx context.Context, id string, finishedAt time.Time, runErr error) error {
	status, msg := RunSucceeded, sql.NullString{}
	if runErr != nil {
		status = RunFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		finishedAt.UTC(), status, msg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found in ledger", id)
	}
	return nil
}

// RecordOutcomes stores the outcomes of a run in one transaction.
func (l *Ledger) RecordOutcomes(ctx context.Context, runID string, outcomes []model.Outcome) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO outcomes
			(run_id, position, subject, stage, status, output_path, missing_role, missing_path, detail, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, o := range outcomes {
			if _, err := stmt.ExecContext(ctx,
				runID, o.Position, string(o.Subject), o.Stage, o.Status.String(),
				nullable(o.OutputPath), nullable(o.MissingRole), nullable(o.MissingPath), nullable(o.Detail),
				o.Duration.Milliseconds(),
			); err != nil {
				return fmt.Errorf("outcome %s/%s: %w", o.Subject, o.Stage, err)
			}
		}
		return nil
	})
}

// RecordRejections stores the matrices excluded from the tensor.
func (l *Ledger) RecordRejections(ctx context.Context, runID string, rejections []matrix.Rejection) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO rejections
			(run_id, position, subject, path, kind, reason, rows, cols)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rejections {
			if _, err := stmt.ExecContext(ctx, runID, r.Index, string(r.Subject), r.Path, string(r.Kind), r.Reason, r.Rows, r.Cols); err != nil {
				return fmt.Errorf("rejection %s: %w", r.Subject, err)
			}
		}
		return nil
	})
}

// GetRun loads one run.
func (l *Ledger) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	var finished sql.NullTime
	var msg sql.NullString
	err := l.db.QueryRowContext(ctx,
		`SELECT id, config_path, command, started_at, finished_at, status, error FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.ConfigPath, &run.Command, &run.StartedAt, &finished, &run.Status, &msg)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	run.FinishedAt = finished.Time
	run.Error = msg.String
	return &run, nil
}

// Outcomes loads the outcomes of a run in report order.
func (l *Ledger) Outcomes(ctx context.Context, runID string) ([]model.Outcome, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT position, subject, stage, status, output_path, missing_role, missing_path, detail, duration_ms
		FROM outcomes WHERE run_id = ? ORDER BY position, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var subject, status string
		var output, role, path, detail sql.NullString
		var ms int64
		if err := rows.Scan(&o.Position, &subject, &o.Stage, &status, &output, &role, &path, &detail, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Subject = model.SubjectID(subject)
		if o.Status, err = model.ParseStatus(status); err != nil {
			return nil, err
		}
		o.OutputPath, o.MissingRole, o.MissingPath, o.Detail = output.String, role.String, path.String, detail.String
		o.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

func (l *Ledger) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("ledger write failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger write: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

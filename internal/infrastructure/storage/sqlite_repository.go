package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    work_dir    TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT,
    started_at  TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS downloads (
    run_id TEXT NOT NULL REFERENCES runs(id),
    stage  TEXT NOT NULL,
    name   TEXT NOT NULL,
    path   TEXT NOT NULL,
    status TEXT NOT NULL,
    error  TEXT
);
CREATE TABLE IF NOT EXISTS hits (
    run_id      TEXT NOT NULL REFERENCES runs(id),
    accession   TEXT NOT NULL,
    query_name  TEXT NOT NULL,
    target_name TEXT NOT NULL,
    evalue      REAL NOT NULL,
    score       REAL NOT NULL,
    group_key   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS hits_run ON hits(run_id);
`

// hitBatch keeps multi-row inserts under SQLite's variable limit.
const hitBatch = 100

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SQLiteRepository records pipeline runs in an embedded SQLite database.
type SQLiteRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.RunRepository = (*SQLiteRepository)(nil)

// Open connects to path and ensures the schema exists.
func Open(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return NewSQLiteRepository(db), nil
}

// NewSQLiteRepository wires an existing sql.DB.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// StartRun inserts a running run.
func (r *SQLiteRepository) StartRun(ctx context.Context, runID, workDir string) error {
	query, args, err := r.sb.Insert("runs").
		Columns("id", "work_dir", "status", "started_at").
		Values(runID, workDir, StatusRunning, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert run: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordDownload stores the outcome of one download or fetch.
func (r *SQLiteRepository) RecordDownload(ctx context.Context, runID string, stage domain.Stage, name, path string, failure error) error {
	status, errText := StatusCompleted, sql.NullString{}
	if failure != nil {
		status = StatusFailed
		errText = sql.NullString{String: failure.Error(), Valid: true}
	}

	query, args, err := r.sb.Insert("downloads").
		Columns("run_id", "stage", "name", "path", "status", "error").
		Values(runID, string(stage), name, path, status, errText).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert download: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert download: %w", err)
	}
	return nil
}

// SaveHits appends the aggregate rows of a run in one transaction.
func (r *SQLiteRepository) SaveHits(ctx context.Context, runID string, rows []domain.SummaryRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	for start := 0; start < len(rows); start += hitBatch {
		end := min(start+hitBatch, len(rows))

		insert := r.sb.Insert("hits").
			Columns("run_id", "accession", "query_name", "target_name", "evalue", "score", "group_key")
		for _, row := range rows[start:end] {
			insert = insert.Values(runID, row.Accession, row.QueryName, row.TargetName, row.EValue, row.Score, row.GroupKey)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("build insert hits: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert hits: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hits: %w", err)
	}
	return nil
}

// FinishRun marks the run completed, or failed when runErr is set.
func (r *SQLiteRepository) FinishRun(ctx context.Context, runID string, runErr error) error {
	update := r.sb.Update("runs").
		Set("finished_at", time.Now().UTC()).
		Where(sq.Eq{"id": runID})
	if runErr != nil {
		update = update.Set("status", StatusFailed).Set("error", runErr.Error())
	} else {
		update = update.Set("status", StatusCompleted)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build update run: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// RunStatus returns the stored status of a run.
func (r *SQLiteRepository) RunStatus(ctx context.Context, runID string) (string, error) {
	query, args, err := r.sb.Select("status").From("runs").Where(sq.Eq{"id": runID}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build select run: %w", err)
	}

	var status string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&status); err != nil {
		return "", fmt.Errorf("select run: %w", err)
	}
	return status, nil
}

// HitsForRun returns the rows stored for a run in insertion order.
func (r *SQLiteRepository) HitsForRun(ctx context.Context, runID string) ([]domain.SummaryRow, error) {
	query, args, err := r.sb.
		Select("accession", "query_name", "target_name", "evalue", "score", "group_key").
		From("hits").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("rowid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select hits: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hits: %w", err)
	}

	var result []domain.SummaryRow
	for rows.Next() {
		var row domain.SummaryRow
		if err := rows.Scan(&row.Accession, &row.QueryName, &row.TargetName, &row.EValue, &row.Score, &row.GroupKey); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		result = append(result, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// DownloadCount returns how many downloads of a stage were recorded with the given status.
func (r *SQLiteRepository) DownloadCount(ctx context.Context, runID string, stage domain.Stage, status string) (int, error) {
	query, args, err := r.sb.Select("COUNT(*)").From("downloads").
		Where(sq.Eq{"run_id": runID, "stage": string(stage), "status": status}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count downloads: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count downloads: %w", err)
	}
	return n, nil
}

// Package sqlite provides the SQLite run ledger.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ochairo/tagship/internal/domain/entities"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Ledger records phase transitions and terminal outcomes of runs.
// It implements repositories.RunRepository.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the ledger database at path and bootstraps the schema
func Open(path string) (*Ledger, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// RecordPhase appends one phase transition
func (l *Ledger) RecordPhase(ctx context.Context, record entities.PhaseRecord) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO phases (run_id, tag, platform, phase, status, started_at, duration_ms, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID,
		record.Tag,
		string(record.Platform),
		string(record.Phase),
		string(record.Status),
		record.StartedAt.UTC().UnixNano(),
		record.Duration.Milliseconds(),
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("record phase %s for run %s: %w", record.Phase, record.RunID, err)
	}
	return nil
}

// RecordResult stores the terminal outcome of a platform run
func (l *Ledger) RecordResult(ctx context.Context, result *entities.PipelineResult) error {
	if result == nil {
		return fmt.Errorf("record result: nil result")
	}

	var key, digest, errText string
	if result.Published != nil {
		key = result.Published.Key.String()
		digest = result.Published.SHA256
	}
	if result.Err != nil {
		errText = result.Err.Error()
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO runs (run_id, tag, platform, status, release_key, sha256, error, duration_ms, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Tag,
		string(result.Platform),
		result.Status(),
		key,
		digest,
		errText,
		result.TotalDuration.Milliseconds(),
		l.now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record result for run %s: %w", result.RunID, err)
	}
	return nil
}

// LatestRuns returns the most recent run per platform for tag, ordered by platform
func (l *Ledger) LatestRuns(ctx context.Context, tag string) ([]entities.RunSummary, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT run_id, tag, platform, status, release_key, sha256, error, finished_at
FROM runs
WHERE id IN (SELECT MAX(id) FROM runs WHERE tag = ? GROUP BY platform)
ORDER BY platform`, tag)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", tag, err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []entities.RunSummary
	for rows.Next() {
		var (
			summary  entities.RunSummary
			platform string
			finished int64
		)
		if err := rows.Scan(&summary.RunID, &summary.Tag, &platform, &summary.Status,
			&summary.Key, &summary.SHA256, &summary.Error, &finished); err != nil {
			return nil, err
		}
		summary.Platform = entities.Platform(platform)
		summary.FinishedAt = time.Unix(0, finished).UTC()
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Phases returns the recorded phase transitions of a run in insertion order
func (l *Ledger) Phases(ctx context.Context, runID string) ([]entities.PhaseRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT run_id, tag, platform, phase, status, started_at, duration_ms, error
FROM phases
WHERE run_id = ?
ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query phases for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []entities.PhaseRecord
	for rows.Next() {
		var (
			record                  entities.PhaseRecord
			platform, phase, status string
			started, durationMS     int64
		)
		if err := rows.Scan(&record.RunID, &record.Tag, &platform, &phase, &status,
			&started, &durationMS, &record.Error); err != nil {
			return nil, err
		}
		record.Platform = entities.Platform(platform)
		record.Phase = entities.Phase(phase)
		record.Status = entities.JobStatus(status)
		record.StartedAt = time.Unix(0, started).UTC()
		record.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, record)
	}
	return records, rows.Err()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Both platforms write concurrently; a single connection serializes them.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("ledger path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

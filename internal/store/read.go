package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

const runColumns = `id, seq, function_name, reference_id, target_ids, passed, errors, started_at`

// ReadRun returns a single run by ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first. A limit <= 0 returns
// every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadTraces returns the traces of a run, reference first, then targets by
// backend ID.
func (s *Store) ReadTraces(ctx context.Context, runID string) ([]TraceRecord, error) {
	return s.queryTraces(ctx, `
		SELECT run_id, backend_id, role, dir, digest, content_digest, call_count, passed
		FROM traces
		WHERE run_id = ?
		ORDER BY role = 'target' ASC, backend_id COLLATE BINARY ASC
	`, runID)
}

// FindByContentDigest returns every trace with the given content digest,
// across runs, ordered by run sequence.
func (s *Store) FindByContentDigest(ctx context.Context, digest string) ([]TraceRecord, error) {
	return s.queryTraces(ctx, `
		SELECT t.run_id, t.backend_id, t.role, t.dir, t.digest, t.content_digest, t.call_count, t.passed
		FROM traces t
		JOIN runs r ON t.run_id = r.id
		WHERE t.content_digest = ?
		ORDER BY r.seq ASC, t.backend_id COLLATE BINARY ASC
	`, digest)
}

func (s *Store) queryTraces(ctx context.Context, query string, args ...any) ([]TraceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	records := []TraceRecord{}
	for rows.Next() {
		var rec TraceRecord
		var passed int
		if err := rows.Scan(&rec.RunID, &rec.BackendID, &rec.Role, &rec.Dir, &rec.Digest, &rec.ContentDigest, &rec.Calls, &passed); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		rec.Passed = passed == 1
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate traces: %w", err)
	}
	return records, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var targets, errs, started string
	var passed int
	if err := row.Scan(&run.ID, &run.Seq, &run.FunctionName, &run.ReferenceID, &targets, &passed, &errs, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Passed = passed == 1

	var err error
	if run.TargetIDs, err = unmarshalStrings(targets); err != nil {
		return Run{}, err
	}
	if run.Errors, err = unmarshalStrings(errs); err != nil {
		return Run{}, err
	}
	if run.StartedAt, err = unmarshalTime(started); err != nil {
		return Run{}, err
	}
	return run, nil
}

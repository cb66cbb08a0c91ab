package store

import (
	"context"
	"fmt"
	"time"
)

// Trace roles.
const (
	RoleReference = "reference"
	RoleTarget    = "target"
)

// Run is one CompareBackends invocation.
type Run struct {
	ID           string    `json:"id"`
	Seq          int64     `json:"seq"`
	FunctionName string    `json:"function_name"`
	ReferenceID  string    `json:"reference_id"`
	TargetIDs    []string  `json:"target_ids"`
	Passed       bool      `json:"passed"`
	Errors       []string  `json:"errors"`
	StartedAt    time.Time `json:"started_at"`
}

// TraceRecord locates one persisted trace of a run.
type TraceRecord struct {
	RunID         string `json:"run_id"`
	BackendID     string `json:"backend_id"`
	Role          string `json:"role"`
	Dir           string `json:"dir"`
	Digest        string `json:"digest"`
	ContentDigest string `json:"content_digest"`
	Calls         int    `json:"calls"`
	Passed        bool   `json:"passed"`
}

// WriteRun inserts a run and returns its assigned sequence number.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing the same run ID
// twice keeps the first row and returns its seq.
func (s *Store) WriteRun(ctx context.Context, run Run) (int64, error) {
	targets, err := marshalStrings(run.TargetIDs)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}
	errs, err := marshalStrings(run.Errors)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, function_name, reference_id, target_ids, passed, errors, started_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?
		FROM runs
		WHERE true
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.FunctionName,
		run.ReferenceID,
		targets,
		boolToInt(run.Passed),
		errs,
		marshalTime(run.StartedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}

	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT seq FROM runs WHERE id = ?`, run.ID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("write run: read seq: %w", err)
	}
	return seq, nil
}

// WriteTrace inserts a trace record. The run must already exist (foreign key
// constraint). A second write for the same (run, backend) replaces the first.
func (s *Store) WriteTrace(ctx context.Context, rec TraceRecord) error {
	if rec.Role != RoleReference && rec.Role != RoleTarget {
		return fmt.Errorf("write trace: invalid role %q", rec.Role)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traces
		(run_id, backend_id, role, dir, digest, content_digest, call_count, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, backend_id) DO UPDATE SET
			role = excluded.role,
			dir = excluded.dir,
			digest = excluded.digest,
			content_digest = excluded.content_digest,
			call_count = excluded.call_count,
			passed = excluded.passed
	`,
		rec.RunID,
		rec.BackendID,
		rec.Role,
		rec.Dir,
		rec.Digest,
		rec.ContentDigest,
		rec.Calls,
		boolToInt(rec.Passed),
	)
	if err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

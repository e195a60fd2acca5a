package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amosunov/ellgrowth/internal/aggregate"
	"github.com/amosunov/ellgrowth/internal/reduce"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// ListRuns returns all persisted runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, folder, ell, d_max, files, mode, total
		FROM runs
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
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

// GetRun reloads one run and reconstructs its result for re-rendering.
func (s *Store) GetRun(ctx context.Context, id string) (Run, *reduce.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, folder, ell, d_max, files, mode, total
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}

	res := &reduce.Result{Grand: aggregate.NewCounters()}
	res.Grand.Total = run.Total

	if err := s.readClassTotals(ctx, id, res); err != nil {
		return Run{}, nil, err
	}
	if err := s.readCounters(ctx, id, res); err != nil {
		return Run{}, nil, err
	}
	if err := s.readFailures(ctx, id, res); err != nil {
		return Run{}, nil, err
	}
	return run, res, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var createdAt string
	if err := sc.Scan(&run.ID, &createdAt, &run.Folder, &run.Ell, &run.DMax, &run.Files, &run.Mode, &run.Total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse run timestamp: %w", err)
	}
	run.CreatedAt = ts
	return run, nil
}

// readClassTotals restores the per-class results in stored order, which
// follows reduce.Classes at save time.
func (s *Store) readClassTotals(ctx context.Context, id string, res *reduce.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT residue, modulus, total, desyncs
		FROM class_totals
		WHERE run_id = ?
		ORDER BY rowid
	`, id)
	if err != nil {
		return fmt.Errorf("read class totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cr reduce.ClassResult
		cr.Counters = aggregate.NewCounters()
		if err := rows.Scan(&cr.Class.Residue, &cr.Class.Modulus, &cr.Counters.Total, &cr.Desyncs); err != nil {
			return fmt.Errorf("scan class totals: %w", err)
		}
		res.ByClass = append(res.ByClass, cr)
	}
	return rows.Err()
}

func (s *Store) readCounters(ctx context.Context, id string, res *reduce.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, residue, modulus, n, kron, with_factor, with_growth
		FROM counters
		WHERE run_id = ?
		ORDER BY rowid
	`, id)
	if err != nil {
		return fmt.Errorf("read counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scope string
		var residue, modulus, kron sql.NullInt64
		var n uint32
		var counts aggregate.Counts
		if err := rows.Scan(&scope, &residue, &modulus, &n, &kron, &counts.WithFactor, &counts.WithGrowth); err != nil {
			return fmt.Errorf("scan counters: %w", err)
		}

		target := res.Grand
		if scope == "class" {
			class := reduce.CongruenceClass{Residue: int(residue.Int64), Modulus: int(modulus.Int64)}
			for i := range res.ByClass {
				if res.ByClass[i].Class == class {
					target = res.ByClass[i].Counters
					break
				}
			}
		}

		if kron.Valid {
			target.ByExponentKron[aggregate.KronKey{N: n, Kron: int8(kron.Int64)}] = counts
		} else {
			target.ByExponent[n] = counts
		}
	}
	return rows.Err()
}

func (s *Store) readFailures(ctx context.Context, id string, res *reduce.Result) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT residue, modulus, idx, cause
		FROM failures
		WHERE run_id = ?
		ORDER BY rowid
	`, id)
	if err != nil {
		return fmt.Errorf("read failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f reduce.UnitFailure
		var cause string
		if err := rows.Scan(&f.Class.Residue, &f.Class.Modulus, &f.Index, &cause); err != nil {
			return fmt.Errorf("scan failures: %w", err)
		}
		f.Err = errors.New(cause)
		res.Failures = append(res.Failures, f)
	}
	return rows.Err()
}

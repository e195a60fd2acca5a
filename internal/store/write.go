package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amosunov/ellgrowth/internal/aggregate"
	"github.com/amosunov/ellgrowth/internal/reduce"
)

// Run describes one persisted analyzer run.
type Run struct {
	ID        string
	CreatedAt time.Time
	Folder    string
	Ell       uint64
	DMax      int64
	Files     int64
	Mode      string
	Total     uint64
}

// SaveRun persists a finished run and returns its generated ID. The whole
// run is written in one transaction so a partially saved run can never be
// listed.
func (s *Store) SaveRun(ctx context.Context, meta Run, res *reduce.Result) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, folder, ell, d_max, files, mode, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), createdAt.Format(time.RFC3339), meta.Folder, meta.Ell, meta.DMax, meta.Files, meta.Mode, res.Grand.Total)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}

	if err := insertCounters(ctx, tx, id.String(), "grand", nil, res.Grand); err != nil {
		return "", err
	}
	for _, cr := range res.ByClass {
		class := cr.Class
		_, err = tx.ExecContext(ctx, `
			INSERT INTO class_totals (run_id, residue, modulus, total, desyncs)
			VALUES (?, ?, ?, ?, ?)
		`, id.String(), class.Residue, class.Modulus, cr.Counters.Total, cr.Desyncs)
		if err != nil {
			return "", fmt.Errorf("save class totals: %w", err)
		}
		if err := insertCounters(ctx, tx, id.String(), "class", &class, cr.Counters); err != nil {
			return "", err
		}
	}

	for _, f := range res.Failures {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO failures (run_id, residue, modulus, idx, cause)
			VALUES (?, ?, ?, ?, ?)
		`, id.String(), f.Class.Residue, f.Class.Modulus, f.Index, f.Err.Error())
		if err != nil {
			return "", fmt.Errorf("save failures: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return id.String(), nil
}

// insertCounters writes one scope's counter rows. Unstratified rows carry
// a NULL kron; grand-scope rows carry NULL residue and modulus.
func insertCounters(ctx context.Context, tx *sql.Tx, runID, scope string, class *reduce.CongruenceClass, c *aggregate.Counters) error {
	var residue, modulus any
	if class != nil {
		residue, modulus = class.Residue, class.Modulus
	}

	for _, n := range c.Exponents() {
		counts := c.ByExponent[n]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO counters (run_id, scope, residue, modulus, n, kron, with_factor, with_growth)
			VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
		`, runID, scope, residue, modulus, n, counts.WithFactor, counts.WithGrowth)
		if err != nil {
			return fmt.Errorf("save counters: %w", err)
		}

		for _, kron := range []int8{-1, 0, 1} {
			kc, ok := c.ByExponentKron[aggregate.KronKey{N: n, Kron: kron}]
			if !ok {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO counters (run_id, scope, residue, modulus, n, kron, with_factor, with_growth)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, runID, scope, residue, modulus, n, kron, kc.WithFactor, kc.WithGrowth)
			if err != nil {
				return fmt.Errorf("save counters: %w", err)
			}
		}
	}
	return nil
}

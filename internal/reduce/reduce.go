// Package reduce fans the per-unit fold out over every tabulation unit
// and merges the results into class-level and grand totals.
//
// Work is partitioned into 4 congruence classes × files units. The four
// classes run sequentially; units within a class run concurrently on a
// bounded pool. Units share no mutable state: each owns its file handles,
// its discriminant tracker and its counters, and the only synchronization
// point is the collect-then-fold merge after the pool drains. A unit whose
// files cannot be opened or decoded contributes an all-zero aggregate and
// is recorded as a failure; it never aborts its siblings.
package reduce

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/amosunov/ellgrowth/internal/aggregate"
	"github.com/amosunov/ellgrowth/internal/classify"
	"github.com/amosunov/ellgrowth/internal/datafile"
	"github.com/amosunov/ellgrowth/internal/stream"
)

// CongruenceClass identifies one (residue, modulus) family of fundamental
// discriminants.
type CongruenceClass struct {
	Residue int
	Modulus int
}

func (c CongruenceClass) String() string {
	return fmt.Sprintf("%d mod %d", c.Residue, c.Modulus)
}

// Classes are the four congruence classes covering all fundamental
// discriminants of imaginary quadratic fields, by absolute value:
// |D| ≡ 8 (16), 4 (16), 3 (8), 7 (8).
var Classes = [4]CongruenceClass{{8, 16}, {4, 16}, {3, 8}, {7, 8}}

// UnitOpener opens one unit's decoded stream pair. Production runs use
// the gzip layout under Options.Folder; tests substitute in-memory pairs.
type UnitOpener func(class CongruenceClass, index int64) (*datafile.Pair, error)

// Options configures one full run.
type Options struct {
	// Folder holds the cl{a}mod{m} directory tree. Unused when Open is
	// set.
	Folder string

	// Ell is the prime under analysis. Must be at least 2.
	Ell uint64

	// DMax bounds |D| across the whole tabulation; together with Files
	// and the class modulus it determines each unit's starting
	// discriminant.
	DMax int64

	// Files is the number of file pairs per congruence class.
	Files int64

	// Mode selects the growth-detection policy.
	Mode classify.Policy

	// Workers bounds concurrent units within a class. Zero or negative
	// selects one worker per CPU.
	Workers int

	// Open overrides the unit opener.
	Open UnitOpener

	// Observer receives growth events for verbose diagnostics. It is
	// called from concurrent units and must be safe for concurrent use.
	// May be nil.
	Observer aggregate.Observer

	// Logger receives unit failures and desync warnings. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// UnitFailure records a unit whose files could not be opened or decoded.
type UnitFailure struct {
	Class CongruenceClass
	Index int64
	Err   error
}

func (f UnitFailure) String() string {
	return fmt.Sprintf("unit %s #%d: %v", f.Class, f.Index, f.Err)
}

// ClassResult is the merged result of all units in one congruence class.
type ClassResult struct {
	Class    CongruenceClass
	Counters *aggregate.Counters

	// Desyncs counts distance mismatches observed across the class's
	// units. Nonzero desyncs mean the counters past the mismatch points
	// are suspect.
	Desyncs int
}

// Result is one full run's output.
type Result struct {
	Grand    *aggregate.Counters
	ByClass  []ClassResult
	Failures []UnitFailure
}

// Run validates the options and processes every unit. Validation errors
// are the only fatal outcome; they are returned before any unit is
// scheduled. Unit-level I/O failures degrade to empty aggregates.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := opts.Open
	if open == nil {
		open = func(class CongruenceClass, index int64) (*datafile.Pair, error) {
			return datafile.OpenPair(opts.Folder, class.Residue, class.Modulus, opts.Ell, index)
		}
	}
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	res := &Result{Grand: aggregate.NewCounters()}
	var mu sync.Mutex // guards res.Failures

	for _, class := range Classes {
		dTotal := opts.DMax / (opts.Files * int64(class.Modulus))
		logger.Info("processing congruence class", "class", class.String(), "files", opts.Files)

		units := make([]*aggregate.Counters, opts.Files)
		desyncs := make([]int, opts.Files)

		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(workers)
		for index := int64(0); index < opts.Files; index++ {
			index := index
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				counters, d, err := runUnit(opts, open, class, index, dTotal, logger)
				if err != nil {
					logger.Warn("unit failed, contributing empty aggregate",
						"class", class.String(), "index", index, "error", err)
					mu.Lock()
					res.Failures = append(res.Failures, UnitFailure{Class: class, Index: index, Err: err})
					mu.Unlock()
					units[index] = aggregate.NewCounters()
					return nil
				}
				units[index] = counters
				desyncs[index] = d
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		classCounters := aggregate.NewCounters()
		classDesyncs := 0
		for i, u := range units {
			classCounters.Merge(u)
			classDesyncs += desyncs[i]
		}
		res.Grand.Merge(classCounters)
		res.ByClass = append(res.ByClass, ClassResult{
			Class:    class,
			Counters: classCounters,
			Desyncs:  classDesyncs,
		})
	}

	return res, nil
}

// runUnit opens, matches and folds one file pair. The pair's handles are
// released on every exit path.
func runUnit(opts Options, open UnitOpener, class CongruenceClass, index, dTotal int64, logger *slog.Logger) (*aggregate.Counters, int, error) {
	pair, err := open(class, index)
	if err != nil {
		return nil, 0, err
	}
	defer pair.Close()

	start := index*dTotal*int64(class.Modulus) + int64(class.Residue)
	warn := func(w stream.DesyncWarning) {
		logger.Warn("distance mismatch between sides",
			"class", class.String(), "index", index,
			"d", w.D, "fund_distance", w.FundDistance, "ell_distance", w.EllDistance)
	}

	m := stream.NewMatcher(pair.Fund, pair.Ell, start, int64(class.Modulus), warn)
	counters := aggregate.FoldUnit(m, opts.Ell, opts.Mode, opts.Observer)
	return counters, m.Desyncs(), nil
}

// validate rejects configurations that would invalidate every unit's
// result. These are the run's only fatal errors.
func validate(opts Options) error {
	if opts.Ell < 2 {
		return fmt.Errorf("ell must be a prime of at least 2, got %d", opts.Ell)
	}
	if opts.Files <= 0 {
		return fmt.Errorf("files must be positive, got %d", opts.Files)
	}
	if opts.DMax <= 0 {
		return fmt.Errorf("d_max must be positive, got %d", opts.DMax)
	}
	return nil
}

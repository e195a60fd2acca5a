// Package aggregate accumulates growth statistics for tabulation units
// and merges them up the reduction tree.
//
// Counters are created empty per unit, folded locally with no shared
// state, and combined by Merge. Merge is associative and commutative
// (union of keys, pairwise sums), so reduction order never affects the
// totals.
package aggregate

import (
	"sort"

	"github.com/amosunov/ellgrowth/internal/classify"
	"github.com/amosunov/ellgrowth/internal/profile"
	"github.com/amosunov/ellgrowth/internal/stream"
)

// Counts pairs the number of discriminants carrying an ℓ^n factor with
// the number of those judged to have grown to ℓ^(n+1).
type Counts struct {
	WithFactor uint64
	WithGrowth uint64
}

// KronKey keys the Kronecker-stratified counters.
type KronKey struct {
	N    uint32
	Kron int8
}

// Counters holds one scope's statistics: a single unit, a congruence
// class, or the grand total. Values only ever increment.
type Counters struct {
	// Total counts matched records, including those with empty profiles.
	Total uint64

	// ByExponent maps each exponent n to its counts.
	ByExponent map[uint32]Counts

	// ByExponentKron stratifies ByExponent by the Kronecker symbol of ℓ
	// in the field.
	ByExponentKron map[KronKey]Counts
}

// NewCounters returns an empty, all-zero counter set.
func NewCounters() *Counters {
	return &Counters{
		ByExponent:     make(map[uint32]Counts),
		ByExponentKron: make(map[KronKey]Counts),
	}
}

// Merge adds other into c: union of keys, pairwise sums. other is left
// untouched.
func (c *Counters) Merge(other *Counters) {
	c.Total += other.Total
	for n, counts := range other.ByExponent {
		cur := c.ByExponent[n]
		cur.WithFactor += counts.WithFactor
		cur.WithGrowth += counts.WithGrowth
		c.ByExponent[n] = cur
	}
	for key, counts := range other.ByExponentKron {
		cur := c.ByExponentKron[key]
		cur.WithFactor += counts.WithFactor
		cur.WithGrowth += counts.WithGrowth
		c.ByExponentKron[key] = cur
	}
}

// Exponents returns the keys of ByExponent in ascending order, the order
// reports present them in.
func (c *Counters) Exponents() []uint32 {
	ns := make([]uint32, 0, len(c.ByExponent))
	for n := range c.ByExponent {
		ns = append(ns, n)
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
	return ns
}

// GrowthEvent describes one growth detection. Events exist only for
// verbose diagnostics; they are folded into counters and never retained.
type GrowthEvent struct {
	D           int64
	N           uint32
	Kron        int8
	FundProfile []uint32
	EllProfile  []uint32
}

// Observer receives growth events when verbose diagnostics are enabled.
// Units run concurrently, so an Observer must be safe for concurrent use.
type Observer func(GrowthEvent)

// FoldUnit drains the matcher and folds every matched record into a fresh
// counter set. For each record it evaluates every exponent n from 1 up to
// the largest valuation on either side independently: a single
// discriminant can register growth at several exponents at once. obs may
// be nil.
func FoldUnit(m *stream.Matcher, ell uint64, mode classify.Policy, obs Observer) *Counters {
	c := NewCounters()
	for {
		rec, ok := m.Next()
		if !ok {
			break
		}
		c.Total++

		fund := profile.Profile(rec.FundInvariants, ell)
		side := profile.Profile(rec.EllInvariants, ell)

		maxN := profile.MaxExponent(fund, side)
		for n := uint32(1); n <= maxN; n++ {
			if profile.CountFactor(fund, n) == 0 {
				continue
			}

			key := KronKey{N: n, Kron: rec.Kronecker}
			byN := c.ByExponent[n]
			byNK := c.ByExponentKron[key]
			byN.WithFactor++
			byNK.WithFactor++

			if classify.Growth(fund, side, n, mode) {
				byN.WithGrowth++
				byNK.WithGrowth++
				if obs != nil {
					obs(GrowthEvent{
						D:           rec.D,
						N:           n,
						Kron:        rec.Kronecker,
						FundProfile: fund,
						EllProfile:  side,
					})
				}
			}

			c.ByExponent[n] = byN
			c.ByExponentKron[key] = byNK
		}
	}
	return c
}

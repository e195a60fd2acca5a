package aggregate

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosunov/ellgrowth/internal/classify"
	"github.com/amosunov/ellgrowth/internal/stream"
)

func foldLines(t *testing.T, fund, ell string, mode classify.Policy, obs Observer) *Counters {
	t.Helper()
	m := stream.NewMatcher(strings.NewReader(fund), strings.NewReader(ell), 3, 8, nil)
	return FoldUnit(m, 2, mode, obs)
}

// The canonical promotion [2] -> [4] registers growth at n=1 under every
// policy.
func TestFoldUnit_Promotion(t *testing.T) {
	for _, mode := range []classify.Policy{classify.Strict, classify.Any, classify.Net} {
		c := foldLines(t, "1 2 2\n", "1 1 4\n", mode, nil)

		assert.Equal(t, uint64(1), c.Total)
		assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 1}, c.ByExponent[1], "mode %s", mode)
		assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 1}, c.ByExponentKron[KronKey{N: 1, Kron: 1}])
	}
}

// [4, 2] -> [8] carries ℓ^1 and ℓ^2 factors on the fundamental side but no
// promotion: both exponents count WithFactor and neither counts growth.
func TestFoldUnit_FactorWithoutGrowth(t *testing.T) {
	c := foldLines(t, "1 8 4 2\n", "1 0 8\n", classify.Strict, nil)

	assert.Equal(t, uint64(1), c.Total)
	assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 0}, c.ByExponent[1])
	assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 0}, c.ByExponent[2])
	assert.NotContains(t, c.ByExponent, uint32(3), "ell-side-only exponents have no fundamental factor")
}

// Invariants coprime to ℓ yield empty profiles: the record still counts
// toward Total but no exponent is touched.
func TestFoldUnit_EmptyProfiles(t *testing.T) {
	c := foldLines(t, "1 105 3 5 7\n", "1 0 105\n", classify.Strict, nil)

	assert.Equal(t, uint64(1), c.Total)
	assert.Empty(t, c.ByExponent)
	assert.Empty(t, c.ByExponentKron)
}

// A malformed fundamental line contributes nothing, not even to Total.
func TestFoldUnit_MalformedLineSkipped(t *testing.T) {
	c := foldLines(t, "1\n1 2 2\n", "1 1 4\n1 1 4\n", classify.Strict, nil)

	assert.Equal(t, uint64(1), c.Total)
	assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 1}, c.ByExponent[1])
}

// One discriminant can register growth at several exponents at once.
func TestFoldUnit_MultipleExponents(t *testing.T) {
	// Fundamental [4, 2] gives profile [2, 1]; ell side [8, 4] gives
	// [3, 2]. The ℓ^2 count is unchanged (no growth at n=1) while the
	// ℓ^3 count rises from 0 to 1 (net growth at n=2).
	c := foldLines(t, "1 8 4 2\n", "1 1 8 4\n", classify.Net, nil)

	assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 0}, c.ByExponent[1])
	assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 1}, c.ByExponent[2])
}

func TestFoldUnit_ObserverSeesGrowthEvents(t *testing.T) {
	var events []GrowthEvent
	c := foldLines(t, "1 2 2\n", "1 -1 4\n", classify.Strict,
		func(ev GrowthEvent) { events = append(events, ev) })

	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].D)
	assert.Equal(t, uint32(1), events[0].N)
	assert.Equal(t, int8(-1), events[0].Kron)
	assert.Equal(t, []uint32{1}, events[0].FundProfile)
	assert.Equal(t, []uint32{2}, events[0].EllProfile)

	// Observation is side-effect only.
	assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 1}, c.ByExponent[1])
}

func TestMerge_SumsPerKey(t *testing.T) {
	a := NewCounters()
	a.Total = 2
	a.ByExponent[1] = Counts{WithFactor: 2, WithGrowth: 1}
	a.ByExponentKron[KronKey{N: 1, Kron: 1}] = Counts{WithFactor: 2, WithGrowth: 1}

	b := NewCounters()
	b.Total = 3
	b.ByExponent[1] = Counts{WithFactor: 1, WithGrowth: 1}
	b.ByExponent[2] = Counts{WithFactor: 1}
	b.ByExponentKron[KronKey{N: 1, Kron: -1}] = Counts{WithFactor: 1, WithGrowth: 1}

	a.Merge(b)

	assert.Equal(t, uint64(5), a.Total)
	assert.Equal(t, Counts{WithFactor: 3, WithGrowth: 2}, a.ByExponent[1])
	assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 0}, a.ByExponent[2])
	assert.Equal(t, Counts{WithFactor: 2, WithGrowth: 1}, a.ByExponentKron[KronKey{N: 1, Kron: 1}])
	assert.Equal(t, Counts{WithFactor: 1, WithGrowth: 1}, a.ByExponentKron[KronKey{N: 1, Kron: -1}])
}

// Merging the same parts in any order yields identical totals.
func TestMerge_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	parts := make([]*Counters, 8)
	for i := range parts {
		c := NewCounters()
		c.Total = uint64(rng.Intn(50))
		for n := uint32(1); n <= 3; n++ {
			f := uint64(rng.Intn(20))
			g := uint64(rng.Intn(int(f + 1)))
			c.ByExponent[n] = Counts{WithFactor: f, WithGrowth: g}
			for _, kron := range []int8{-1, 0, 1} {
				c.ByExponentKron[KronKey{N: n, Kron: kron}] = Counts{
					WithFactor: uint64(rng.Intn(10)),
					WithGrowth: uint64(rng.Intn(5)),
				}
			}
		}
		parts[i] = c
	}

	merged := func(order []int) *Counters {
		total := NewCounters()
		for _, i := range order {
			total.Merge(parts[i])
		}
		return total
	}

	base := merged([]int{0, 1, 2, 3, 4, 5, 6, 7})
	for trial := 0; trial < 20; trial++ {
		order := rng.Perm(len(parts))
		got := merged(order)
		require.Equal(t, base.Total, got.Total)
		require.Equal(t, base.ByExponent, got.ByExponent, "order %v", order)
		require.Equal(t, base.ByExponentKron, got.ByExponentKron, "order %v", order)
	}
}

func TestExponents_Sorted(t *testing.T) {
	c := NewCounters()
	c.ByExponent[3] = Counts{WithFactor: 1}
	c.ByExponent[1] = Counts{WithFactor: 1}
	c.ByExponent[2] = Counts{WithFactor: 1}

	assert.Equal(t, []uint32{1, 2, 3}, c.Exponents())
	assert.Empty(t, NewCounters().Exponents())
}

// Package profile extracts ℓ-adic structure from invariant-factor
// decompositions of finite abelian groups.
//
// A class group tabulation reports each group as an ordered list of cyclic
// factor orders (its invariant factors). The ℓ-profile of such a list is
// the descending sequence of ℓ-adic valuations of the factors divisible by
// ℓ: [4, 2] at ℓ=2 yields [2, 1], while [3, 5, 7] at ℓ=2 yields the empty
// profile.
package profile

import "sort"

// Valuation returns the exponent of ell in n, the largest k with ell^k
// dividing n. Returns 0 when n is 0 or ell is below 2; the ell guard keeps
// a degenerate modulus from looping forever. Callers are expected to
// reject ell < 2 up front.
func Valuation(n, ell uint64) uint32 {
	if n == 0 || ell < 2 {
		return 0
	}
	var k uint32
	for n%ell == 0 {
		n /= ell
		k++
	}
	return k
}

// Profile returns the descending ℓ-adic valuations of the invariant
// factors divisible by ell. Factors coprime to ell are dropped, so the
// result may be empty. Relative order among equal valuations carries no
// meaning; only the multiplicity of each value does.
func Profile(invariants []uint64, ell uint64) []uint32 {
	var p []uint32
	for _, c := range invariants {
		if v := Valuation(c, ell); v > 0 {
			p = append(p, v)
		}
	}
	sort.Slice(p, func(i, j int) bool { return p[i] > p[j] })
	return p
}

// CountFactor returns the number of entries in p equal to n.
func CountFactor(p []uint32, n uint32) int {
	count := 0
	for _, v := range p {
		if v == n {
			count++
		}
	}
	return count
}

// MaxExponent returns the largest valuation present in either profile, or
// 0 when both are empty.
func MaxExponent(a, b []uint32) uint32 {
	var max uint32
	for _, v := range a {
		if v > max {
			max = v
		}
	}
	for _, v := range b {
		if v > max {
			max = v
		}
	}
	return max
}

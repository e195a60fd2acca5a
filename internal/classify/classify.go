// Package classify decides whether a matched pair of ℓ-profiles exhibits
// growth from an ℓ^n factor to an ℓ^(n+1) factor.
//
// Three policies are supported. Strict is the scientifically meaningful
// test for an individual cyclic factor promoting by one power of ℓ; Any
// and Net are looser diagnostics used for sensitivity analysis.
package classify

import "github.com/amosunov/ellgrowth/internal/profile"

// Policy selects the growth-detection predicate.
type Policy string

const (
	// Strict requires a single cyclic factor to promote by one power of
	// ℓ: one ℓ^n factor disappears and one ℓ^(n+1) factor appears.
	Strict Policy = "strict"

	// Any requires only co-occurrence: the fundamental side carries an
	// ℓ^n factor and the index-ℓ² side carries any ℓ^(n+1) factor,
	// regardless of what happened to the other factors.
	Any Policy = "any"

	// Net requires the total count of ℓ^(n+1) factors to increase,
	// regardless of mechanism.
	Net Policy = "net"
)

// ParsePolicy maps a mode string to a Policy. Unrecognized strings fall
// back to Strict; published result sets depend on that fallback, so it is
// deliberately not an error.
func ParsePolicy(s string) Policy {
	switch Policy(s) {
	case Strict, Any, Net:
		return Policy(s)
	}
	return Strict
}

// Growth reports whether the profile pair exhibits growth at exponent n
// under the given policy. It is a pure function of its inputs. Callers
// invoke it only once the fundamental profile is known to carry at least
// one ℓ^n factor.
func Growth(fund, ell []uint32, n uint32, mode Policy) bool {
	fn := profile.CountFactor(fund, n)
	fn1 := profile.CountFactor(fund, n+1)
	en := profile.CountFactor(ell, n)
	en1 := profile.CountFactor(ell, n+1)

	switch mode {
	case Any:
		return fn > 0 && en1 > 0
	case Net:
		return en1 > fn1
	default:
		// Strict, and any unrecognized Policy value.
		return en1 > fn1 && en < fn
	}
}

// Package stream pairs records from the two sides of one tabulation unit.
//
// Each unit consists of two parallel line-oriented streams: the
// fundamental file ("dist h c1 ... ck") and the index-ℓ² file
// ("dist kron c1 ... ck"). Records at the same line position describe the
// same discriminant. The discriminant is never stored in the files; it is
// reconstructed by accumulating the per-record distances, scaled by the
// congruence modulus, from the unit's starting value.
package stream

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// scanBufSize bounds a single record line. Tabulated groups carry at most
// a few dozen invariant factors, so 1 MiB is generous.
const scanBufSize = 1 << 20

// FundamentalRecord is one line of the fundamental-side file.
type FundamentalRecord struct {
	Distance int64
	// ClassNumber is carried by the file format for compatibility with
	// the tabulation stage; nothing here consumes it.
	ClassNumber uint64
	Invariants  []uint64
}

// EllRecord is one line of the index-ℓ² side file.
type EllRecord struct {
	Distance   int64
	Kronecker  int8
	Invariants []uint64
}

// ParseFundamental parses a fundamental-side record. It reports ok=false
// for lines with fewer than two fields or a non-numeric distance or class
// number; such lines are skipped by the matcher without advancing the
// discriminant.
func ParseFundamental(line string) (FundamentalRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return FundamentalRecord{}, false
	}
	dist, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return FundamentalRecord{}, false
	}
	h, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return FundamentalRecord{}, false
	}
	return FundamentalRecord{
		Distance:    dist,
		ClassNumber: h,
		Invariants:  parseInvariants(fields[2:]),
	}, true
}

// ParseEll parses an index-ℓ² side record.
func ParseEll(line string) (EllRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return EllRecord{}, false
	}
	dist, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return EllRecord{}, false
	}
	kron, err := strconv.ParseInt(fields[1], 10, 8)
	if err != nil {
		return EllRecord{}, false
	}
	return EllRecord{
		Distance:   dist,
		Kronecker:  int8(kron),
		Invariants: parseInvariants(fields[2:]),
	}, true
}

// parseInvariants drops tokens that fail to parse rather than rejecting
// the whole record; malformed trailing fields are a known artifact of the
// tabulation stage.
func parseInvariants(fields []string) []uint64 {
	var inv []uint64
	for _, f := range fields {
		c, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		inv = append(inv, c)
	}
	return inv
}

// DesyncWarning reports a distance disagreement between the two sides at
// one line position. Processing continues from the fundamental distance;
// counts past a desync point should be treated with suspicion.
type DesyncWarning struct {
	// D is the discriminant tracked before either distance is applied.
	D            int64
	FundDistance int64
	EllDistance  int64
}

// Match is one paired record with its reconstructed discriminant.
type Match struct {
	D              int64
	FundInvariants []uint64
	Kronecker      int8
	EllInvariants  []uint64
}

// Matcher walks the two sides of a unit in lockstep. The end of either
// side ends the unit; a longer opposite side is silently truncated.
type Matcher struct {
	fund    *bufio.Scanner
	ell     *bufio.Scanner
	d       int64
	modulus int64
	warn    func(DesyncWarning)
	desyncs int
}

// NewMatcher pairs the two decoded sides of one unit. start is the unit's
// starting discriminant (index*dTotal*modulus + residue) and modulus
// scales the per-record distances. warn receives distance-mismatch
// warnings and may be nil.
func NewMatcher(fund, ell io.Reader, start, modulus int64, warn func(DesyncWarning)) *Matcher {
	fs := bufio.NewScanner(fund)
	fs.Buffer(make([]byte, 0, 64*1024), scanBufSize)
	es := bufio.NewScanner(ell)
	es.Buffer(make([]byte, 0, 64*1024), scanBufSize)
	return &Matcher{
		fund:    fs,
		ell:     es,
		d:       start,
		modulus: modulus,
		warn:    warn,
	}
}

// Next returns the next matched record. ok is false once either side is
// exhausted. A line position where either side fails to parse is skipped
// without advancing the discriminant. The fundamental-side distance alone
// drives discriminant tracking and is applied before the record is
// emitted.
func (m *Matcher) Next() (Match, bool) {
	for m.fund.Scan() && m.ell.Scan() {
		fr, ok := ParseFundamental(m.fund.Text())
		if !ok {
			continue
		}
		er, ok := ParseEll(m.ell.Text())
		if !ok {
			continue
		}
		if fr.Distance != er.Distance {
			m.desyncs++
			if m.warn != nil {
				m.warn(DesyncWarning{
					D:            m.d,
					FundDistance: fr.Distance,
					EllDistance:  er.Distance,
				})
			}
		}
		m.d += fr.Distance * m.modulus
		return Match{
			D:              m.d,
			FundInvariants: fr.Invariants,
			Kronecker:      er.Kronecker,
			EllInvariants:  er.Invariants,
		}, true
	}
	return Match{}, false
}

// Desyncs returns the number of distance mismatches seen so far.
func (m *Matcher) Desyncs() int { return m.desyncs }

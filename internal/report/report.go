// Package report renders analyzer results for human and machine readers.
//
// The text form follows the layout number theorists have been reading off
// this analysis for years: run header, per-congruence-class sections, a
// grand-total summary table and an N × Kronecker breakdown, followed by
// any unit-failure notices. The machine form is a plain document struct
// the CLI serializes as JSON.
package report

import (
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/amosunov/ellgrowth/internal/aggregate"
	"github.com/amosunov/ellgrowth/internal/classify"
	"github.com/amosunov/ellgrowth/internal/reduce"
)

// Params echoes the run parameters in the report header.
type Params struct {
	Folder string          `json:"folder"`
	Ell    uint64          `json:"ell"`
	DMax   int64           `json:"d_max"`
	Files  int64           `json:"files"`
	Mode   classify.Policy `json:"mode"`
}

// kronOrder fixes the presentation order of the Kronecker breakdown.
var kronOrder = []int8{-1, 0, 1}

// KronName names a Kronecker symbol value.
func KronName(kron int8) string {
	switch kron {
	case -1:
		return "inert"
	case 0:
		return "ramified"
	case 1:
		return "split"
	}
	return "unknown"
}

// Rate returns the growth rate as a percentage, 0 when no discriminant
// carried the factor.
func Rate(factor, growth uint64) float64 {
	if factor == 0 {
		return 0
	}
	return 100 * float64(growth) / float64(factor)
}

// printer accumulates the first write error so the rendering code can
// stay linear.
type printer struct {
	w   io.Writer
	p   *message.Printer
	err error
}

func (pr *printer) printf(format string, args ...any) {
	if pr.err != nil {
		return
	}
	_, pr.err = pr.p.Fprintf(pr.w, format, args...)
}

// Write renders the full text report.
func Write(w io.Writer, res *reduce.Result, p Params) error {
	pr := &printer{w: w, p: message.NewPrinter(language.English)}

	pr.printf("ℓ-adic growth analysis\n")
	pr.printf("======================\n")
	pr.printf("folder: %s\n", p.Folder)
	pr.printf("ℓ=%d\n", p.Ell)
	pr.printf("D_max=%d, files=%d\n", p.DMax, p.Files)
	pr.printf("Detection mode: %s\n", string(p.Mode))

	pr.printf("\nResults by congruence class\n")
	pr.printf("===========================\n")
	for _, cr := range res.ByClass {
		pr.printf("\n%s:\n", cr.Class.String())
		pr.printf("  Total discriminants: %d\n", cr.Counters.Total)
		if cr.Desyncs > 0 {
			pr.printf("  Distance mismatches: %d (counts past the first mismatch are suspect)\n", cr.Desyncs)
		}
		writeExponents(pr, cr.Counters)
	}

	pr.printf("\nGrand Total (all congruence classes)\n")
	pr.printf("====================================\n")
	pr.printf("Total discriminants: %d\n", res.Grand.Total)

	pr.printf("\nSummary table:\n")
	pr.printf("%4s %12s %12s %10s\n", "N", "with_factor", "with_growth", "rate")
	pr.printf("%s\n", strings.Repeat("-", 42))
	for _, n := range res.Grand.Exponents() {
		counts := res.Grand.ByExponent[n]
		pr.printf("%4d %12d %12d %9.4f%%\n",
			n, counts.WithFactor, counts.WithGrowth, Rate(counts.WithFactor, counts.WithGrowth))
	}

	pr.printf("\nDetailed breakdown by N and Kronecker symbol:\n")
	for _, n := range res.Grand.Exponents() {
		counts := res.Grand.ByExponent[n]
		pr.printf("\nN=%d: ℤ/%d^%dℤ → ℤ/%d^%dℤ\n", n, p.Ell, n, p.Ell, n+1)
		pr.printf("  Total: with_factor=%d, with_growth=%d (%.4f%%)\n",
			counts.WithFactor, counts.WithGrowth, Rate(counts.WithFactor, counts.WithGrowth))
		for _, kron := range kronOrder {
			kc, ok := res.Grand.ByExponentKron[aggregate.KronKey{N: n, Kron: kron}]
			if !ok {
				continue
			}
			pr.printf("  kron=%2d (%s): factor=%d, growth=%d (%.2f%%)\n",
				kron, KronName(kron), kc.WithFactor, kc.WithGrowth, Rate(kc.WithFactor, kc.WithGrowth))
		}
	}

	if len(res.Failures) > 0 {
		pr.printf("\nUnit failures: %d\n", len(res.Failures))
		for _, f := range res.Failures {
			pr.printf("  %s\n", f.String())
		}
	}

	return pr.err
}

// writeExponents renders one class's per-exponent rows with their
// Kronecker breakdowns.
func writeExponents(pr *printer, c *aggregate.Counters) {
	for _, n := range c.Exponents() {
		counts := c.ByExponent[n]
		pr.printf("  N=%d: with ℓ^%d factor: %d, with growth to ℓ^%d: %d (%.2f%%)\n",
			n, n, counts.WithFactor, n+1, counts.WithGrowth, Rate(counts.WithFactor, counts.WithGrowth))
		for _, kron := range kronOrder {
			kc, ok := c.ByExponentKron[aggregate.KronKey{N: n, Kron: kron}]
			if !ok {
				continue
			}
			pr.printf("      kron=%2d (%s): factor=%d, growth=%d (%.2f%%)\n",
				kron, KronName(kron), kc.WithFactor, kc.WithGrowth, Rate(kc.WithFactor, kc.WithGrowth))
		}
	}
}

// KronRow is one Kronecker stratum of an exponent row.
type KronRow struct {
	Kron        int8    `json:"kron"`
	Name        string  `json:"name"`
	WithFactor  uint64  `json:"with_factor"`
	WithGrowth  uint64  `json:"with_growth"`
	RatePercent float64 `json:"rate_percent"`
}

// ExponentRow is one exponent's counts within a scope.
type ExponentRow struct {
	N           uint32    `json:"n"`
	WithFactor  uint64    `json:"with_factor"`
	WithGrowth  uint64    `json:"with_growth"`
	RatePercent float64   `json:"rate_percent"`
	Kronecker   []KronRow `json:"kronecker,omitempty"`
}

// Scope is the machine form of one counter set.
type Scope struct {
	Total      uint64        `json:"total"`
	ByExponent []ExponentRow `json:"by_exponent"`
}

// ClassScope is one congruence class's scope.
type ClassScope struct {
	Residue int `json:"residue"`
	Modulus int `json:"modulus"`
	Desyncs int `json:"desyncs,omitempty"`
	Scope
}

// Document is the machine-readable report.
type Document struct {
	Params     Params       `json:"params"`
	GrandTotal Scope        `json:"grand_total"`
	ByClass    []ClassScope `json:"by_class"`
	Failures   []string     `json:"failures,omitempty"`
}

// Build assembles the machine-readable report.
func Build(res *reduce.Result, p Params) Document {
	doc := Document{
		Params:     p,
		GrandTotal: buildScope(res.Grand),
	}
	for _, cr := range res.ByClass {
		doc.ByClass = append(doc.ByClass, ClassScope{
			Residue: cr.Class.Residue,
			Modulus: cr.Class.Modulus,
			Desyncs: cr.Desyncs,
			Scope:   buildScope(cr.Counters),
		})
	}
	for _, f := range res.Failures {
		doc.Failures = append(doc.Failures, f.String())
	}
	return doc
}

func buildScope(c *aggregate.Counters) Scope {
	s := Scope{Total: c.Total}
	for _, n := range c.Exponents() {
		counts := c.ByExponent[n]
		row := ExponentRow{
			N:           n,
			WithFactor:  counts.WithFactor,
			WithGrowth:  counts.WithGrowth,
			RatePercent: Rate(counts.WithFactor, counts.WithGrowth),
		}
		for _, kron := range kronOrder {
			kc, ok := c.ByExponentKron[aggregate.KronKey{N: n, Kron: kron}]
			if !ok {
				continue
			}
			row.Kronecker = append(row.Kronecker, KronRow{
				Kron:        kron,
				Name:        KronName(kron),
				WithFactor:  kc.WithFactor,
				WithGrowth:  kc.WithGrowth,
				RatePercent: Rate(kc.WithFactor, kc.WithGrowth),
			})
		}
		s.ByExponent = append(s.ByExponent, row)
	}
	return s
}

// Package datafile resolves and opens the gzip tabulation files for one
// congruence class.
//
// The tabulation stage lays files out as
//
//	{folder}/cl{a}mod{m}/cl{a}mod{m}.{index}.gz            fundamental side
//	{folder}/cl{a}mod{m}l{ell}/cl{a}mod{m}l{ell}.{index}.gz index-ℓ² side
//
// where a and m are the congruence residue and modulus.
package datafile

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FundamentalPath returns the fundamental-side file for one unit.
func FundamentalPath(folder string, a, m int, index int64) string {
	dir := fmt.Sprintf("cl%dmod%d", a, m)
	return filepath.Join(folder, dir, fmt.Sprintf("%s.%d.gz", dir, index))
}

// EllPath returns the index-ℓ² side file for one unit.
func EllPath(folder string, a, m int, ell uint64, index int64) string {
	dir := fmt.Sprintf("cl%dmod%dl%d", a, m, ell)
	return filepath.Join(folder, dir, fmt.Sprintf("%s.%d.gz", dir, index))
}

// Pair is one unit's opened, decoded stream pair. The handles are owned
// by the unit that opened them; Close releases every one of them
// regardless of which side failed first.
type Pair struct {
	Fund io.Reader
	Ell  io.Reader

	closers []io.Closer
}

// Close releases all underlying handles, returning the first error.
func (p *Pair) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// OpenPair opens and decodes both sides of one unit. On any failure it
// closes whatever it had already opened and returns the cause; the caller
// treats the whole unit as failed.
func OpenPair(folder string, a, m int, ell uint64, index int64) (*Pair, error) {
	fundFile, err := os.Open(FundamentalPath(folder, a, m, index))
	if err != nil {
		return nil, fmt.Errorf("open fundamental side: %w", err)
	}
	fundGz, err := gzip.NewReader(fundFile)
	if err != nil {
		fundFile.Close()
		return nil, fmt.Errorf("decode fundamental side: %w", err)
	}
	ellFile, err := os.Open(EllPath(folder, a, m, ell, index))
	if err != nil {
		fundGz.Close()
		fundFile.Close()
		return nil, fmt.Errorf("open ell side: %w", err)
	}
	ellGz, err := gzip.NewReader(ellFile)
	if err != nil {
		ellFile.Close()
		fundGz.Close()
		fundFile.Close()
		return nil, fmt.Errorf("decode ell side: %w", err)
	}
	return &Pair{
		Fund:    fundGz,
		Ell:     ellGz,
		closers: []io.Closer{fundGz, ellGz, fundFile, ellFile},
	}, nil
}

// VerifyInputs checks that every input file for one congruence class
// exists, both sides, and returns the first missing path. It mirrors the
// pre-flight check the tabulation stage runs before committing to a long
// computation.
func VerifyInputs(folder string, a, m int, ell uint64, files int64) error {
	for i := int64(0); i < files; i++ {
		for _, path := range []string{
			FundamentalPath(folder, a, m, i),
			EllPath(folder, a, m, ell, i),
		} {
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("missing input file: %s", path)
				}
				return fmt.Errorf("stat %s: %w", path, err)
			}
		}
	}
	return nil
}

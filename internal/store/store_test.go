package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosunov/ellgrowth/internal/aggregate"
	"github.com/amosunov/ellgrowth/internal/reduce"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult() *reduce.Result {
	grand := aggregate.NewCounters()
	grand.Total = 5
	grand.ByExponent[1] = aggregate.Counts{WithFactor: 4, WithGrowth: 2}
	grand.ByExponent[2] = aggregate.Counts{WithFactor: 1, WithGrowth: 1}
	grand.ByExponentKron[aggregate.KronKey{N: 1, Kron: -1}] = aggregate.Counts{WithFactor: 2, WithGrowth: 1}
	grand.ByExponentKron[aggregate.KronKey{N: 1, Kron: 1}] = aggregate.Counts{WithFactor: 2, WithGrowth: 1}
	grand.ByExponentKron[aggregate.KronKey{N: 2, Kron: 0}] = aggregate.Counts{WithFactor: 1, WithGrowth: 1}

	class := aggregate.NewCounters()
	class.Total = 5
	class.ByExponent[1] = grand.ByExponent[1]
	class.ByExponent[2] = grand.ByExponent[2]
	class.ByExponentKron[aggregate.KronKey{N: 1, Kron: -1}] = grand.ByExponentKron[aggregate.KronKey{N: 1, Kron: -1}]
	class.ByExponentKron[aggregate.KronKey{N: 1, Kron: 1}] = grand.ByExponentKron[aggregate.KronKey{N: 1, Kron: 1}]
	class.ByExponentKron[aggregate.KronKey{N: 2, Kron: 0}] = grand.ByExponentKron[aggregate.KronKey{N: 2, Kron: 0}]

	return &reduce.Result{
		Grand: grand,
		ByClass: []reduce.ClassResult{
			{Class: reduce.CongruenceClass{Residue: 8, Modulus: 16}, Counters: class, Desyncs: 2},
			{Class: reduce.CongruenceClass{Residue: 4, Modulus: 16}, Counters: aggregate.NewCounters()},
			{Class: reduce.CongruenceClass{Residue: 3, Modulus: 8}, Counters: aggregate.NewCounters()},
			{Class: reduce.CongruenceClass{Residue: 7, Modulus: 8}, Counters: aggregate.NewCounters()},
		},
		Failures: []reduce.UnitFailure{
			{Class: reduce.CongruenceClass{Residue: 3, Modulus: 8}, Index: 4, Err: errors.New("decode ell side: gzip: invalid header")},
		},
	}
}

func sampleMeta() Run {
	return Run{
		Folder: "/data/clgrp",
		Ell:    2,
		DMax:   1 << 30,
		Files:  100,
		Mode:   "strict",
	}
}

func TestSaveRun_GetRun_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.SaveRun(ctx, sampleMeta(), sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, res, err := s.GetRun(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, id, run.ID)
	assert.Equal(t, "/data/clgrp", run.Folder)
	assert.Equal(t, uint64(2), run.Ell)
	assert.Equal(t, int64(100), run.Files)
	assert.Equal(t, "strict", run.Mode)
	assert.Equal(t, uint64(5), run.Total)
	assert.WithinDuration(t, time.Now().UTC(), run.CreatedAt, time.Minute)

	want := sampleResult()
	assert.Equal(t, want.Grand.Total, res.Grand.Total)
	assert.Equal(t, want.Grand.ByExponent, res.Grand.ByExponent)
	assert.Equal(t, want.Grand.ByExponentKron, res.Grand.ByExponentKron)

	require.Len(t, res.ByClass, 4)
	assert.Equal(t, reduce.CongruenceClass{Residue: 8, Modulus: 16}, res.ByClass[0].Class)
	assert.Equal(t, 2, res.ByClass[0].Desyncs)
	assert.Equal(t, want.ByClass[0].Counters.ByExponent, res.ByClass[0].Counters.ByExponent)
	assert.Equal(t, want.ByClass[0].Counters.ByExponentKron, res.ByClass[0].Counters.ByExponentKron)
	assert.Zero(t, res.ByClass[1].Counters.Total)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, int64(4), res.Failures[0].Index)
	assert.EqualError(t, res.Failures[0].Err, "decode ell side: gzip: invalid header")
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.SaveRun(ctx, Run{Folder: "/a", Ell: 2, DMax: 10, Files: 1, Mode: "strict", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, sampleResult())
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, Run{Folder: "/b", Ell: 3, DMax: 10, Files: 1, Mode: "net", CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}, sampleResult())
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)
	assert.Equal(t, "/b", runs[0].Folder)
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.GetRun(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s1, err := Open(path)
	require.NoError(t, err)
	id, err := s1.SaveRun(context.Background(), sampleMeta(), sampleResult())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	runs, err := s2.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

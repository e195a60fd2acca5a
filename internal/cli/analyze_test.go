package cli

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosunov/ellgrowth/internal/datafile"
	"github.com/amosunov/ellgrowth/internal/reduce"
	"github.com/amosunov/ellgrowth/internal/report"
	"github.com/amosunov/ellgrowth/internal/store"
)

// writeGzip writes one gzip-compressed data file, creating its directory.
func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// writeTabulation lays out a complete 4-class tabulation tree in which
// every unit holds a single matched record: class group [3] on the
// fundamental side and [9] on the index-ℓ² side, a clean 3^1 → 3^2
// promotion under every detection mode.
func writeTabulation(t *testing.T, folder string, ell uint64, files int64) {
	t.Helper()
	for _, class := range reduce.Classes {
		for index := int64(0); index < files; index++ {
			writeGzip(t, datafile.FundamentalPath(folder, class.Residue, class.Modulus, index),
				"0 3 3\n")
			writeGzip(t, datafile.EllPath(folder, class.Residue, class.Modulus, ell, index),
				"0 1 9\n")
		}
	}
}

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	folder := t.TempDir()
	writeTabulation(t, folder, 3, 2)

	out, _, err := runCommand(t,
		"analyze", "--ell", "3", "--d-max", "320", "--files", "2", folder)
	require.NoError(t, err)

	assert.Contains(t, out, "ℓ-adic growth analysis")
	assert.Contains(t, out, "ℓ=3")
	assert.Contains(t, out, "Detection mode: strict")
	// 4 classes × 2 units × 1 record, every one a growth event.
	assert.Contains(t, out, "N=1: with ℓ^1 factor: 2, with growth to ℓ^2: 2 (100.00%)")
	assert.NotContains(t, out, "Unit failures")
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	folder := t.TempDir()
	writeTabulation(t, folder, 3, 2)

	out, _, err := runCommand(t,
		"--format", "json",
		"analyze", "--ell", "3", "--d-max", "320", "--files", "2", folder)
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   report.Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint64(8), resp.Data.GrandTotal.Total)
	require.Len(t, resp.Data.ByClass, 4)
	require.Len(t, resp.Data.GrandTotal.ByExponent, 1)
	assert.Equal(t, uint64(8), resp.Data.GrandTotal.ByExponent[0].WithFactor)
	assert.Equal(t, uint64(8), resp.Data.GrandTotal.ByExponent[0].WithGrowth)
	assert.Empty(t, resp.Data.Failures)
}

func TestAnalyzeCommand_PersistsRun(t *testing.T) {
	folder := t.TempDir()
	writeTabulation(t, folder, 3, 1)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	_, _, err := runCommand(t,
		"analyze", "--ell", "3", "--d-max", "320", "--files", "1",
		"--db", dbPath, folder)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, folder, runs[0].Folder)
	assert.Equal(t, uint64(3), runs[0].Ell)
	assert.Equal(t, uint64(4), runs[0].Total)
}

func TestAnalyzeCommand_InvalidConfig(t *testing.T) {
	_, _, err := runCommand(t, "analyze", "--ell", "3", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAnalyzeCommand_MissingFilesDegrade(t *testing.T) {
	// No input files at all: every unit fails, the run still completes
	// with zero totals and one failure per unit.
	out, _, err := runCommand(t,
		"analyze", "--ell", "3", "--d-max", "320", "--files", "1", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "Unit failures: 4")
}

func TestAnalyzeCommand_ConfigFile(t *testing.T) {
	folder := t.TempDir()
	writeTabulation(t, folder, 3, 1)

	cfgPath := filepath.Join(t.TempDir(), "run.yaml")
	cfg := "folder: " + folder + "\nell: 3\nd_max: 320\nfiles: 1\nmode: any\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, _, err := runCommand(t, "analyze", "--config", cfgPath, "--mode", "net")
	require.NoError(t, err)
	// The explicitly set flag wins over the file value.
	assert.Contains(t, out, "Detection mode: net")
}

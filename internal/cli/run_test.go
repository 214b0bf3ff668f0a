package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qic/internal/store"
)

func TestRunStoresArtifacts(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"}, &Config{})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ run rabi stored as")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "rabi", runs[0].Name)
	assert.Equal(t, 16, runs[0].Shots)
	assert.Equal(t, "average", runs[0].Mode)
	assert.Contains(t, runs[0].Config, "name: rabi")

	programs, err := st.Programs(ctx, runs[0].Token)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.NotEmpty(t, programs[0].Words)
	assert.Contains(t, programs[0].Listing, "end")

	res, err := st.Result(ctx, runs[0].Token, "iq")
	require.NoError(t, err)
	require.NotNil(t, res.Data)
	// One recording averaged over zeroed buffers.
	assert.Equal(t, []int{2, 1}, res.Data.Shape)
	assert.Equal(t, []float64{0, 0}, res.Data.Values)
}

func TestRunJSON(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json"}, &Config{})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, path})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["token"])
	assert.Equal(t, "rabi", data["name"])
}

func TestRunShotsOverride(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	cmd := NewRunCommand(&RootOptions{Format: "text"}, &Config{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--shots", "64", path})

	require.NoError(t, cmd.Execute())

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 64, runs[0].Shots)
}

func TestRunCountsMode(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	cmd := NewRunCommand(&RootOptions{Format: "text"}, &Config{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--mode", "counts", path})

	require.NoError(t, cmd.Execute())

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()
	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "counts", runs[0].Mode)

	res, err := st.Result(ctx, runs[0].Token, "iq")
	require.NoError(t, err)
	// One recorded cell gives single-digit state keys.
	assert.Contains(t, res.Counts, "0")
	assert.Contains(t, res.Counts, "1")
}

func TestRunBadMode(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"}, &Config{})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "runs.db"), "--mode", "everything", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunBadPolicy(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)

	cmd := NewRunCommand(&RootOptions{Format: "text"}, &Config{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "runs.db"), "--partial", "maybe", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunDatabaseFromConfig(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)
	dbPath := filepath.Join(t.TempDir(), "from-config.db")

	cmd := NewRunCommand(&RootOptions{Format: "text"}, &Config{Database: dbPath})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

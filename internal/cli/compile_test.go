package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileExperiment(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "cell 0:")
	assert.Contains(t, output, "end")
	// The readout trigger carries the recording module.
	assert.Contains(t, output, "tr ")
}

func TestCompileExperimentJSON(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Cells, 1)
	assert.NotEmpty(t, result.Cells[0].Words)
	assert.Contains(t, result.Cells[0].Listing, "end")
}

func TestCompileWritesArtifact(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)
	artifact := filepath.Join(t.TempDir(), "rabi.json")

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"-o", artifact, path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Wrote artifact to")

	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "rabi", result.Name)
	require.Len(t, result.Cells, 1)
}

func TestCompileSweepMatchesLoopBounds(t *testing.T) {
	path := writeExperiment(t, sweepExperiment)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--skip-nco-sync", path})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "addi r2, r0, 0x5")
	assert.Contains(t, output, "bge r1, r2")
}

func TestCompileInvalidExperiment(t *testing.T) {
	path := writeExperiment(t, `
experiment: {
	name: "x"
	cells: [{frequency: 1.0e8}]
	program: [{play: {cell: 0, length: 4.8e-8, shape: "triangle"}}]
}
`)

	buf := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "E104")
}

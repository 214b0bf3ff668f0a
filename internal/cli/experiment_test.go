package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeExperiment drops a CUE experiment file into a temp dir.
func writeExperiment(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const rabiExperiment = `
experiment: {
	name:  "rabi"
	shots: 16
	mode:  "average"
	cells: [{frequency: 1.0e8, readout_frequency: 6.0e7}]
	program: [
		{play: {cell: 0, length: 4.8e-8, shape: "gauss", frequency: 1.0e8}},
		{play_readout: {cell: 0, length: 4.0e-7}},
		{record: {cell: 0, length: 4.0e-7, save_to: "iq"}},
		{wait: {cell: 0, duration: 1.0e-6}},
	]
}
`

const sweepExperiment = `
experiment: {
	name:  "t1"
	shots: 8
	mode:  "average"
	cells: [{frequency: 1.0e8, readout_frequency: 6.0e7}]
	variables: [{name: "i", type: "normal"}]
	program: [
		{for_range: {var: "i", start: 0, end: 5, body: [
			{play_readout: {cell: 0, length: 4.0e-7}},
			{record: {cell: 0, length: 4.0e-7, save_to: "decay"}},
			{wait: {cell: 0, duration: 1.0e-6}},
		]}},
	]
}
`

func loadErrorCode(t *testing.T, errs []error) string {
	t.Helper()
	require.NotEmpty(t, errs)
	var le *LoadError
	require.True(t, errors.As(errs[0], &le), "want LoadError, got %v", errs[0])
	return le.Code
}

func TestLoadExperiment(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)

	exp, errs := LoadExperiment(path, LoadModeFailFast)
	require.Empty(t, errs)

	assert.Equal(t, "rabi", exp.Name)
	assert.Equal(t, 16, exp.Shots)
	assert.Equal(t, "average", exp.Mode)
	require.Len(t, exp.Job.AllCells(), 1)
	assert.Len(t, exp.Job.Commands(), 4)

	cell := exp.Job.AllCells()[0]
	assert.Equal(t, 1, cell.Recordings())
	require.NotNil(t, cell.ResultBox("iq"))
}

func TestLoadExperimentFromDirectory(t *testing.T) {
	path := writeExperiment(t, rabiExperiment)

	exp, errs := LoadExperiment(filepath.Dir(path), LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, "rabi", exp.Name)
}

func TestLoadExperimentSweep(t *testing.T) {
	path := writeExperiment(t, sweepExperiment)

	exp, errs := LoadExperiment(path, LoadModeFailFast)
	require.Empty(t, errs)
	require.Len(t, exp.Job.Commands(), 1)
	// The recording inside the five point sweep runs once per point.
	assert.Equal(t, 5, exp.Job.AllCells()[0].Recordings())
}

func TestLoadExperimentMissingFile(t *testing.T) {
	_, errs := LoadExperiment(filepath.Join(t.TempDir(), "absent.cue"), LoadModeFailFast)
	assert.Equal(t, ErrCodeNotFound, loadErrorCode(t, errs))
}

func TestLoadExperimentEmptyDirectory(t *testing.T) {
	_, errs := LoadExperiment(t.TempDir(), LoadModeFailFast)
	assert.Equal(t, ErrCodeNoFiles, loadErrorCode(t, errs))
}

func TestLoadExperimentNoExperimentStruct(t *testing.T) {
	path := writeExperiment(t, `other: {name: "x"}`)
	_, errs := LoadExperiment(path, LoadModeFailFast)
	assert.Equal(t, ErrCodeNoExperiment, loadErrorCode(t, errs))
}

func TestLoadExperimentNoCells(t *testing.T) {
	path := writeExperiment(t, `experiment: {name: "x", program: []}`)
	_, errs := LoadExperiment(path, LoadModeFailFast)
	assert.Equal(t, ErrCodeNoCells, loadErrorCode(t, errs))
}

func TestLoadExperimentUnknownVariable(t *testing.T) {
	path := writeExperiment(t, `
experiment: {
	name: "x"
	cells: [{frequency: 1.0e8}]
	program: [{wait: {cell: 0, var: "nope"}}]
}
`)
	_, errs := LoadExperiment(path, LoadModeFailFast)
	assert.Equal(t, ErrCodeBadVariable, loadErrorCode(t, errs))
}

func TestLoadExperimentBadCellIndex(t *testing.T) {
	path := writeExperiment(t, `
experiment: {
	name: "x"
	cells: [{frequency: 1.0e8}]
	program: [{wait: {cell: 3, duration: 1.0e-6}}]
}
`)
	_, errs := LoadExperiment(path, LoadModeFailFast)
	assert.Equal(t, ErrCodeBadCell, loadErrorCode(t, errs))
}

func TestLoadExperimentUnknownShape(t *testing.T) {
	path := writeExperiment(t, `
experiment: {
	name: "x"
	cells: [{frequency: 1.0e8}]
	program: [{play: {cell: 0, length: 4.8e-8, shape: "triangle"}}]
}
`)
	_, errs := LoadExperiment(path, LoadModeFailFast)
	assert.Equal(t, ErrCodeBadPulse, loadErrorCode(t, errs))
}

func TestLoadExperimentTypeError(t *testing.T) {
	// A normal variable cannot drive a wait, which needs a time value.
	path := writeExperiment(t, `
experiment: {
	name: "x"
	cells: [{frequency: 1.0e8}]
	variables: [{name: "n", type: "normal"}]
	program: [
		{assign: {var: "n", value: 3}},
		{wait: {cell: 0, var: "n"}},
	]
}
`)
	_, errs := LoadExperiment(path, LoadModeFailFast)
	assert.Equal(t, ErrCodeBadProgram, loadErrorCode(t, errs))
}

func TestLoadExperimentCollectAll(t *testing.T) {
	path := writeExperiment(t, `
experiment: {
	name: "x"
	cells: [{frequency: 1.0e8}]
	program: [
		{wait: {cell: 3, duration: 1.0e-6}},
		{wait: {cell: 0, var: "nope"}},
	]
}
`)
	_, failFast := LoadExperiment(path, LoadModeFailFast)
	assert.Len(t, failFast, 1)

	_, all := LoadExperiment(path, LoadModeCollectAll)
	assert.GreaterOrEqual(t, len(all), 2)
}

func TestLoadExperimentEmptyProgramEntry(t *testing.T) {
	path := writeExperiment(t, `
experiment: {
	name: "x"
	cells: [{frequency: 1.0e8}]
	program: [{}]
}
`)
	_, errs := LoadExperiment(path, LoadModeFailFast)
	assert.Equal(t, ErrCodeBadCommand, loadErrorCode(t, errs))
}

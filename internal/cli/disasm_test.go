package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qic/internal/isa"
)

func writeWordsFile(t *testing.T, words []uint32) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("# test program\n\n")
	for _, w := range words {
		fmt.Fprintf(&buf, "%#x\n", w)
	}
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestDisasm(t *testing.T) {
	words := []uint32{
		isa.RegImm{Op: isa.AluAdd, Rd: 1, Rs: 0, Imm: 5}.Encode(),
		isa.WaitImm{Cycles: 3}.Encode(),
		isa.End{}.Encode(),
	}
	path := writeWordsFile(t, words)

	buf := &bytes.Buffer{}
	cmd := NewDisasmCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "addi r1, r0, 0x5")
	assert.Contains(t, output, "wti 0x3")
	assert.Contains(t, output, "end")
}

func TestDisasmMissingFile(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewDisasmCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "absent.txt")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDisasmBadWord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("0x1\nnot-a-word\n"), 0644))

	buf := &bytes.Buffer{}
	cmd := NewDisasmCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad word")
}

func TestDisasmEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# nothing here\n"), 0644))

	buf := &bytes.Buffer{}
	cmd := NewDisasmCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{path})

	require.Error(t, cmd.Execute())
}

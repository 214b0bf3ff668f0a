package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qic/internal/isa"
)

// NewDisasmCommand creates the disasm command.
func NewDisasmCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <words-file>",
		Short: "Disassemble instruction words",
		Long: `Read instruction words from a text file (one word per line, hex with
0x prefix or decimal) and print the assembly listing.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDisasm(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	words, err := readWords(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading words", err)
	}
	if len(words) == 0 {
		_ = formatter.Error(ErrCodeGeneric, "no instruction words in "+path, nil)
		return NewExitError(ExitCommandError, "no instruction words")
	}

	listing := isa.Disassemble(words)
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"words":   words,
			"listing": listing,
		})
	}
	fmt.Fprint(formatter.Writer, listing)
	return nil
}

// readWords parses one instruction word per line. Blank lines and
// lines starting with # are skipped.
func readWords(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []uint32
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		w, err := strconv.ParseUint(text, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad word %q: %w", path, line, text, err)
		}
		words = append(words, uint32(w))
	}
	return words, scanner.Err()
}

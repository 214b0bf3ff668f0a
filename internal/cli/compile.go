package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/qic/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output      string // output file path
	SkipNCOSync bool
}

// CompiledCell is the per-cell compile artifact in JSON output.
type CompiledCell struct {
	Cell         int      `json:"cell"`
	Words        []uint32 `json:"words"`
	StaticRegion []int32  `json:"static_region,omitempty"`
	Listing      string   `json:"listing"`
}

// CompilationResult holds the compiled programs of all cells.
type CompilationResult struct {
	Name  string         `json:"name"`
	Cells []CompiledCell `json:"cells"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <experiment>",
		Short: "Compile an experiment to sequencer programs",
		Long: `Compile a CUE experiment to per-cell sequencer programs and print
the instruction words and assembly listings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompileCmd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the JSON artifact to a file")
	cmd.Flags().BoolVar(&opts.SkipNCOSync, "skip-nco-sync", false, "omit the oscillator sync prelude")

	return cmd
}

func runCompileCmd(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	exp, errs := LoadExperiment(path, LoadModeFailFast)
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}
	formatter.VerboseLog("Loaded %s: %d cell(s)", exp.Name, len(exp.Job.AllCells()))

	prog, err := compiler.Compile(exp.Job, compiler.Options{SkipNCOSync: opts.SkipNCOSync})
	if err != nil {
		_ = formatter.Error(ErrCodeBadProgram, err.Error(), nil)
		return WrapExitError(ExitFailure, "compilation failed", err)
	}

	result := &CompilationResult{Name: exp.Name}
	for _, cp := range prog.Cells {
		result.Cells = append(result.Cells, CompiledCell{
			Cell:         cp.CellIndex,
			Words:        cp.Words,
			StaticRegion: cp.StaticRegion,
			Listing:      cp.Listing(),
		})
	}

	if opts.Output != "" {
		if err := writeArtifact(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing artifact", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, cc := range result.Cells {
		fmt.Fprintf(formatter.Writer, "cell %d: %d word(s)\n", cc.Cell, len(cc.Words))
		fmt.Fprint(formatter.Writer, cc.Listing)
		if len(cc.StaticRegion) > 0 {
			fmt.Fprintf(formatter.Writer, "static region: %v\n", cc.StaticRegion)
		}
		fmt.Fprintln(formatter.Writer)
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote artifact to %s\n", opts.Output)
	}
	return nil
}

// writeArtifact writes the compilation result to a file as indented JSON.
func writeArtifact(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

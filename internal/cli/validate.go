package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	All bool // collect all errors instead of stopping at the first
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <experiment>",
		Short: "Check an experiment description",
		Long: `Load a CUE experiment file or directory, build the program graph
and run type checking without generating code.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "collect all errors instead of stopping at the first")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	mode := LoadModeFailFast
	if opts.All {
		mode = LoadModeCollectAll
	}

	exp, errs := LoadExperiment(path, mode)
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}

	cells := exp.Job.AllCells()
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"name":     exp.Name,
			"cells":    len(cells),
			"commands": len(exp.Job.Commands()),
			"shots":    exp.Shots,
			"mode":     exp.Mode,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ %s: %d cell(s), %d command(s)\n",
		exp.Name, len(cells), len(exp.Job.Commands()))
	for _, cell := range cells {
		formatter.VerboseLog("  cell %d: %d pulse(s), %d recording(s)",
			cell.ID, len(cell.Pulses()), cell.Recordings())
	}
	return nil
}

// outputLoadErrors prints loader errors and picks the exit code: a
// missing path is a command error, everything else a validation
// failure.
func outputLoadErrors(formatter *OutputFormatter, errs []error) error {
	exit := ExitFailure
	var first *LoadError
	if errors.As(errs[0], &first) && (first.Code == ErrCodeNotFound || first.Code == ErrCodeNoFiles) {
		exit = ExitCommandError
	}

	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for n, err := range errs {
			code, message := ErrCodeGeneric, err.Error()
			var le *LoadError
			if errors.As(err, &le) {
				code, message = le.Code, le.Message
			}
			cliErrors[n] = CLIError{Code: code, Message: message}
		}
		_ = formatter.Error(cliErrors[0].Code, cliErrors[0].Message, cliErrors)
		return NewExitError(exit, fmt.Sprintf("experiment failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Experiment rejected")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %v\n", err)
	}
	return NewExitError(exit, fmt.Sprintf("experiment failed with %d error(s)", len(errs)))
}

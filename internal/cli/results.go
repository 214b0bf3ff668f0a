package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qic/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	DB       string
	Box      string
	Listings bool
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results [token]",
		Short: "Inspect stored runs",
		Long: `Without a token, list all stored runs. With a token, show the run's
result boxes; --box prints one box in full and --listings adds the
compiled programs.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) > 0 {
				token = args[0]
			}
			return runResults(opts, token, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "qic.db", "run database path")
	cmd.Flags().StringVar(&opts.Box, "box", "", "show one result box in full")
	cmd.Flags().BoolVar(&opts.Listings, "listings", false, "include the compiled program listings")

	return cmd
}

func runResults(opts *ResultsOptions, token string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening run database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if token == "" {
		return listRuns(ctx, st, formatter)
	}
	return showRun(ctx, st, formatter, token, opts)
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	runs, err := st.Runs(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "listing runs", err)
	}

	if formatter.Format == "json" {
		type runInfo struct {
			Token     string `json:"token"`
			Name      string `json:"name"`
			Shots     int    `json:"shots"`
			Mode      string `json:"mode"`
			CreatedAt string `json:"created_at"`
		}
		infos := make([]runInfo, len(runs))
		for n, run := range runs {
			infos[n] = runInfo{
				Token:     run.Token,
				Name:      run.Name,
				Shots:     run.Shots,
				Mode:      run.Mode,
				CreatedAt: run.CreatedAt.Format("2006-01-02 15:04:05"),
			}
		}
		return formatter.Success(infos)
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "no stored runs")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(formatter.Writer, "%s  %-20s %6d shots  %-12s %s\n",
			run.Token, run.Name, run.Shots, run.Mode,
			run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func showRun(ctx context.Context, st *store.Store, formatter *OutputFormatter, token string, opts *ResultsOptions) error {
	run, err := st.Run(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown run", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading run", err)
	}

	if opts.Box != "" {
		res, err := st.Result(ctx, token, opts.Box)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "unknown result box", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(resultPayload(res))
		}
		printResult(formatter, res, true)
		return nil
	}

	resultsList, err := st.Results(ctx, token)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading results", err)
	}

	if formatter.Format == "json" {
		payloads := make([]map[string]any, len(resultsList))
		for n, res := range resultsList {
			payloads[n] = resultPayload(res)
		}
		return formatter.Success(map[string]any{
			"token":   run.Token,
			"name":    run.Name,
			"shots":   run.Shots,
			"mode":    run.Mode,
			"results": payloads,
		})
	}

	fmt.Fprintf(formatter.Writer, "%s  %s  %d shots  %s\n", run.Token, run.Name, run.Shots, run.Mode)
	for _, res := range resultsList {
		printResult(formatter, res, false)
	}

	if opts.Listings {
		programs, err := st.Programs(ctx, token)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "reading programs", err)
		}
		for _, prog := range programs {
			fmt.Fprintf(formatter.Writer, "\ncell %d: %d word(s)\n", prog.Cell, len(prog.Words))
			fmt.Fprint(formatter.Writer, prog.Listing)
		}
	}
	return nil
}

func resultPayload(res *store.Result) map[string]any {
	payload := map[string]any{"box": res.Box, "cell": res.Cell}
	if res.Data != nil {
		payload["shape"] = res.Data.Shape
		payload["values"] = res.Data.Values
	}
	if res.Counts != nil {
		payload["counts"] = res.Counts
	}
	return payload
}

func printResult(formatter *OutputFormatter, res *store.Result, full bool) {
	switch {
	case res.Data != nil && full:
		fmt.Fprintf(formatter.Writer, "%s (cell %d) shape %v\n%v\n", res.Box, res.Cell, res.Data.Shape, res.Data.Values)
	case res.Data != nil:
		fmt.Fprintf(formatter.Writer, "  %s (cell %d): shape %v, %d value(s)\n", res.Box, res.Cell, res.Data.Shape, len(res.Data.Values))
	case res.Counts != nil:
		fmt.Fprintf(formatter.Writer, "  %s (cell %d): %d state(s)\n", res.Box, res.Cell, len(res.Counts))
	default:
		fmt.Fprintf(formatter.Writer, "  %s (cell %d): empty\n", res.Box, res.Cell)
	}
}

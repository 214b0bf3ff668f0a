package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qic/internal/compiler"
	"github.com/roach88/qic/internal/platform"
	"github.com/roach88/qic/internal/qicode"
	"github.com/roach88/qic/internal/results"
	"github.com/roach88/qic/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	cfg    *Config
	DB     string
	Shots  int
	Mode   string
	Policy string
}

// runRecord is the YAML run configuration stored alongside the run.
type runRecord struct {
	Name  string `yaml:"name"`
	Shots int    `yaml:"shots"`
	Mode  string `yaml:"mode"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions, cfg *Config) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts, cfg: cfg}

	cmd := &cobra.Command{
		Use:   "run <experiment>",
		Short: "Compile and execute an experiment",
		Long: `Compile a CUE experiment, execute it on the in-process device,
process the returned buffers and store run, programs and results.

Without hardware attached the device plays the programs against a
simulator that returns zeroed buffers of the correct shape.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "run database path (default qic.db)")
	cmd.Flags().IntVar(&opts.Shots, "shots", 0, "override the experiment's shot count")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "override the experiment's result mode")
	cmd.Flags().StringVar(&opts.Policy, "partial", "warn", "partial data policy (warn|accept|reject)")

	return cmd
}

func runRun(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := commandLogger(opts.RootOptions, cmd)

	exp, errs := LoadExperiment(path, LoadModeFailFast)
	if len(errs) > 0 {
		return outputLoadErrors(formatter, errs)
	}

	modeName := exp.Mode
	if opts.Mode != "" {
		modeName = opts.Mode
	}
	if modeName == "" {
		modeName = "average"
	}
	mode, err := results.ParseMode(modeName)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "bad result mode", err)
	}

	policy, err := parsePolicy(opts.Policy)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "bad partial policy", err)
	}

	shots := exp.Shots
	if opts.Shots > 0 {
		shots = opts.Shots
	}

	prog, err := compiler.Compile(exp.Job, compiler.Options{})
	if err != nil {
		_ = formatter.Error(ErrCodeBadProgram, err.Error(), nil)
		return WrapExitError(ExitFailure, "compilation failed", err)
	}
	formatter.VerboseLog("Compiled %d cell program(s)", len(prog.Cells))

	dbPath := opts.DB
	if dbPath == "" {
		dbPath = opts.cfg.Database
	}
	if dbPath == "" {
		dbPath = "qic.db"
	}
	st, err := store.Open(dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening run database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	device := newSimDevice(exp.Job, mode, shots)
	client := platform.WithRetry(device, logger)
	if err := client.Connect(ctx); err != nil {
		return deviceError(formatter, "connecting", err)
	}
	defer client.Close()

	for _, cp := range prog.Cells {
		err := client.LoadProgram(ctx, platform.CellProgram{
			Cell:         cp.CellIndex,
			Words:        cp.Words,
			StaticRegion: cp.StaticRegion,
		})
		if err != nil {
			return deviceError(formatter, "loading program", err)
		}
	}
	if err := client.Start(ctx, shots); err != nil {
		return deviceError(formatter, "starting run", err)
	}
	state, err := client.State(ctx)
	if err != nil {
		return deviceError(formatter, "polling state", err)
	}
	if state != platform.StateDone {
		_ = client.Stop(ctx)
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("device ended in state %d", state), nil)
		return NewExitError(ExitFailure, "run did not finish")
	}

	boxes, err := client.Databoxes(ctx, dataModeFor(mode))
	if err != nil {
		return deviceError(formatter, "fetching databoxes", err)
	}

	processor := results.NewProcessor(
		results.WithPartialPolicy(policy),
		results.WithLogger(logger),
	)
	run := results.Run{Shots: shots, Shape: prog.SweepShape()}
	if err := processor.Process(mode, providerFrom(mode, boxes), exp.Job.AllCells(), run); err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "processing results", err)
	}

	token, err := persistRun(ctx, st, exp, prog, mode, shots)
	if err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "storing run", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"token": token,
			"name":  exp.Name,
			"shots": shots,
			"mode":  mode.String(),
		})
	}
	fmt.Fprintf(formatter.Writer, "✓ run %s stored as %s\n", exp.Name, token)
	for _, cell := range exp.Job.AllCells() {
		for _, box := range cell.ResultBoxes() {
			if box.Data != nil {
				fmt.Fprintf(formatter.Writer, "  %s: shape %v\n", box.Name, box.Data.Shape)
			}
			if box.Counts != nil {
				fmt.Fprintf(formatter.Writer, "  %s: %d state(s)\n", box.Name, len(box.Counts))
			}
		}
	}
	return nil
}

// commandLogger builds the slog logger for device and processing
// warnings; verbose mode lowers the level to debug.
func commandLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func parsePolicy(name string) (results.PartialPolicy, error) {
	switch name {
	case "", "warn":
		return results.WarnAccept, nil
	case "accept":
		return results.Accept, nil
	case "reject":
		return results.Reject, nil
	}
	return 0, fmt.Errorf("unknown partial data policy %q", name)
}

func deviceError(formatter *OutputFormatter, what string, err error) error {
	_ = formatter.Error(string(platform.Code(err)), err.Error(), nil)
	return WrapExitError(ExitFailure, what, err)
}

// dataModeFor picks the device buffer type a result mode expects.
func dataModeFor(mode results.Mode) platform.DataMode {
	switch mode {
	case results.ModeStates, results.ModeCounts, results.ModeQuantumJumps:
		return platform.Uint32
	default:
		return platform.Int32
	}
}

// recordedCells lists cells with at least one recording, in order.
func recordedCells(job *qicode.Job) []*qicode.Cell {
	var cells []*qicode.Cell
	for _, cell := range job.AllCells() {
		if cell.Recordings() > 0 {
			cells = append(cells, cell)
		}
	}
	return cells
}

// newSimDevice seeds a fake device with zeroed buffers shaped the way
// the chosen result mode expects them.
func newSimDevice(job *qicode.Job, mode results.Mode, shots int) *platform.Fake {
	device := platform.NewFake()
	device.Features = platform.Capabilities{"qicode", mode.String()}

	cells := recordedCells(job)
	stateWords := (shots + 9) / 10
	for _, cell := range cells {
		switch mode {
		case results.ModeAverage, results.ModeAmplitudePhase:
			n := cell.Recordings()
			device.Boxes = append(device.Boxes,
				platform.Databox{Mode: platform.Int32, Words: make([]uint64, n)},
				platform.Databox{Mode: platform.Int32, Words: make([]uint64, n)})
		case results.ModeRaw:
			device.Boxes = append(device.Boxes,
				platform.Databox{Mode: platform.Int32, Words: make([]uint64, shots)},
				platform.Databox{Mode: platform.Int32, Words: make([]uint64, shots)})
		case results.ModeIQCloud:
			for rec := 0; rec < cell.Recordings(); rec++ {
				device.Boxes = append(device.Boxes,
					platform.Databox{Mode: platform.Int32, Words: make([]uint64, 2*shots)})
			}
		case results.ModeStates, results.ModeQuantumJumps:
			device.Boxes = append(device.Boxes,
				platform.Databox{Mode: platform.Uint32, Words: make([]uint64, stateWords)})
		case results.ModeCounts:
			device.Boxes = append(device.Boxes,
				platform.Databox{Mode: platform.Uint32, Words: make([]uint64, 1<<len(cells))})
		}
	}
	return device
}

// providerFrom adapts device buffers to the result pipeline.
func providerFrom(mode results.Mode, boxes []platform.Databox) results.DataProvider {
	switch mode {
	case results.ModeStates, results.ModeCounts, results.ModeQuantumJumps:
		words := make([][]uint32, len(boxes))
		for n, box := range boxes {
			words[n] = make([]uint32, len(box.Words))
			for i, w := range box.Words {
				words[n][i] = uint32(w)
			}
		}
		return &results.TaskRunnerProvider{StateWords: words}
	default:
		rows := make([][]float64, len(boxes))
		for n, box := range boxes {
			rows[n] = box.Float64s()
		}
		return &results.TaskRunnerProvider{Rows: rows}
	}
}

// persistRun writes run, programs and result boxes to the store.
func persistRun(ctx context.Context, st *store.Store, exp *Experiment, prog *compiler.Program, mode results.Mode, shots int) (string, error) {
	config, err := yaml.Marshal(runRecord{Name: exp.Name, Shots: shots, Mode: mode.String()})
	if err != nil {
		return "", fmt.Errorf("marshal run config: %w", err)
	}

	token, err := st.CreateRun(ctx, &store.Run{
		Name:   exp.Name,
		Shots:  shots,
		Mode:   mode.String(),
		Config: string(config),
	})
	if err != nil {
		return "", err
	}

	for _, cp := range prog.Cells {
		err := st.SaveProgram(ctx, token, store.Program{
			Cell:         cp.CellIndex,
			Words:        cp.Words,
			StaticRegion: cp.StaticRegion,
			Listing:      cp.Listing(),
		})
		if err != nil {
			return "", err
		}
	}

	for _, cell := range exp.Job.AllCells() {
		for _, box := range cell.ResultBoxes() {
			if box.Data == nil && box.Counts == nil {
				continue
			}
			err := st.SaveResult(ctx, token, store.Result{
				Box:    box.Name,
				Cell:   cell.ID,
				Data:   box.Data,
				Counts: box.Counts,
			})
			if err != nil {
				return "", err
			}
		}
	}
	return token, nil
}

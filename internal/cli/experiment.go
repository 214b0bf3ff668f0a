package cli

import (
	"fmt"
	"math"

	"github.com/roach88/qic/internal/qicode"
)

// Experiment is a loaded and checked experiment description.
type Experiment struct {
	Name  string
	Shots int
	Mode  string
	Job   *qicode.Job
}

// experimentSpec mirrors the CUE experiment struct. Program entries are
// one-of structs: exactly one command field may be set per entry.
type experimentSpec struct {
	Name      string         `json:"name"`
	Shots     int            `json:"shots"`
	Mode      string         `json:"mode"`
	Cells     []cellSpec     `json:"cells"`
	Variables []variableSpec `json:"variables"`
	Program   []commandSpec  `json:"program"`
}

type cellSpec struct {
	Frequency        float64 `json:"frequency"`
	ReadoutFrequency float64 `json:"readout_frequency"`
}

type variableSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type commandSpec struct {
	Play           *pulseSpec    `json:"play"`
	PlayReadout    *pulseSpec    `json:"play_readout"`
	RotateFrame    *rotateSpec   `json:"rotate_frame"`
	Record         *recordSpec   `json:"record"`
	Wait           *waitSpec     `json:"wait"`
	DigitalTrigger *triggerSpec  `json:"digital_trigger"`
	Assign         *assignSpec   `json:"assign"`
	Store          *storeSpec    `json:"store"`
	ForRange       *forRangeSpec `json:"for_range"`
	Sync           *syncSpec     `json:"sync"`
	Parallel       *parallelSpec `json:"parallel"`
}

type pulseSpec struct {
	Cell      int     `json:"cell"`
	Length    float64 `json:"length"`
	LengthVar string  `json:"length_var"`
	Shape     string  `json:"shape"`
	Amplitude float64 `json:"amplitude"`
	Phase     float64 `json:"phase"`
	Frequency float64 `json:"frequency"`
}

type rotateSpec struct {
	Cell  int     `json:"cell"`
	Phase float64 `json:"phase"`
}

type recordSpec struct {
	Cell    int     `json:"cell"`
	Length  float64 `json:"length"`
	SaveTo  string  `json:"save_to"`
	StateTo string  `json:"state_to"`
}

type waitSpec struct {
	Cell     int     `json:"cell"`
	Duration float64 `json:"duration"`
	Var      string  `json:"var"`
}

type triggerSpec struct {
	Cell    int     `json:"cell"`
	Length  float64 `json:"length"`
	Outputs []int   `json:"outputs"`
}

type assignSpec struct {
	Var   string   `json:"var"`
	Value *float64 `json:"value"`
	From  string   `json:"from"`
	Op    string   `json:"op"` // "+", "-", "*" applied as from op value
}

type storeSpec struct {
	Cell   int    `json:"cell"`
	Var    string `json:"var"`
	SaveTo string `json:"save_to"`
}

type forRangeSpec struct {
	Var      string        `json:"var"`
	Start    float64       `json:"start"`
	StartVar string        `json:"start_var"`
	End      float64       `json:"end"`
	EndVar   string        `json:"end_var"`
	Step     float64       `json:"step"`
	Body     []commandSpec `json:"body"`
}

type syncSpec struct {
	Cells []int `json:"cells"`
}

type parallelSpec struct {
	Branches [][]commandSpec `json:"branches"`
}

var pulseShapes = map[string]qicode.Shape{
	"":             qicode.ShapeRect,
	"rect":         qicode.ShapeRect,
	"gauss":        qicode.ShapeGauss,
	"ramp":         qicode.ShapeRamp,
	"square_fn":    qicode.ShapeSquareFn,
	"left_sphere":  qicode.ShapeLeftSphere,
	"right_sphere": qicode.ShapeRightSphere,
	"gauss_up":     qicode.ShapeGaussUp,
	"gauss_down":   qicode.ShapeGaussDown,
}

// jobBuilder turns an experimentSpec into a qicode program graph.
type jobBuilder struct {
	job   *qicode.Job
	cells []*qicode.Cell
	vars  map[string]*qicode.Variable
	mode  LoadMode
	errs  []error
}

// buildExperiment constructs the program graph and runs type checking.
func buildExperiment(spec *experimentSpec, mode LoadMode) (*Experiment, []error) {
	if len(spec.Cells) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoCells, Message: "experiment declares no cells"}}
	}

	b := &jobBuilder{
		job:  qicode.NewJob(),
		vars: make(map[string]*qicode.Variable),
		mode: mode,
	}
	b.cells = b.job.Cells(len(spec.Cells))
	for n, cs := range spec.Cells {
		b.cells[n].InitialFrequency = cs.Frequency
		b.cells[n].InitialReadoutFrequency = cs.ReadoutFrequency
	}

	for _, vs := range spec.Variables {
		b.declareVariable(vs)
	}
	b.lower(&b.job.Block, spec.Program)

	if len(b.errs) == 0 {
		if err := b.job.Check(); err != nil {
			b.errs = append(b.errs, &LoadError{Code: ErrCodeBadProgram, Message: err.Error()})
		}
	}
	if len(b.errs) > 0 {
		return nil, b.errs
	}

	shots := spec.Shots
	if shots <= 0 {
		shots = 1
	}
	return &Experiment{
		Name:  spec.Name,
		Shots: shots,
		Mode:  spec.Mode,
		Job:   b.job,
	}, nil
}

// fail records an error; in fail-fast mode later lowering is skipped.
func (b *jobBuilder) fail(code, format string, args ...any) {
	b.errs = append(b.errs, &LoadError{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (b *jobBuilder) stopped() bool {
	return b.mode == LoadModeFailFast && len(b.errs) > 0
}

func (b *jobBuilder) declareVariable(vs variableSpec) {
	if vs.Name == "" {
		b.fail(ErrCodeBadVariable, "variable without a name")
		return
	}
	if _, ok := b.vars[vs.Name]; ok {
		b.fail(ErrCodeBadVariable, "variable %q declared twice", vs.Name)
		return
	}
	switch vs.Type {
	case "", "normal":
		b.vars[vs.Name] = b.job.NormalVariable(vs.Name)
	case "time":
		b.vars[vs.Name] = b.job.TimeVariable(vs.Name)
	case "frequency":
		b.vars[vs.Name] = b.job.FrequencyVariable(vs.Name)
	case "state":
		b.vars[vs.Name] = b.job.StateVariable(vs.Name)
	default:
		b.fail(ErrCodeBadVariable, "variable %q has unknown type %q", vs.Name, vs.Type)
	}
}

func (b *jobBuilder) cell(index int) *qicode.Cell {
	if index < 0 || index >= len(b.cells) {
		b.fail(ErrCodeBadCell, "cell %d out of range, experiment has %d cell(s)", index, len(b.cells))
		return nil
	}
	return b.cells[index]
}

func (b *jobBuilder) variable(name string) *qicode.Variable {
	v, ok := b.vars[name]
	if !ok {
		b.fail(ErrCodeBadVariable, "unknown variable %q", name)
		return nil
	}
	return v
}

// constantFor builds a constant matching the variable's unit.
func constantFor(v *qicode.Variable, value float64) *qicode.Constant {
	switch v.Type() {
	case qicode.TypeTime:
		return qicode.Time(value)
	case qicode.TypeFrequency:
		return qicode.Frequency(value)
	default:
		if value == math.Trunc(value) {
			return qicode.Normal(int(value))
		}
		return qicode.Float(value)
	}
}

func (b *jobBuilder) lower(block *qicode.Block, cmds []commandSpec) {
	for n, cmd := range cmds {
		if b.stopped() {
			return
		}
		b.lowerCommand(block, n, cmd)
	}
}

func (b *jobBuilder) lowerCommand(block *qicode.Block, n int, cmd commandSpec) {
	switch {
	case cmd.Play != nil:
		b.lowerPlay(block, cmd.Play, false)
	case cmd.PlayReadout != nil:
		b.lowerPlay(block, cmd.PlayReadout, true)
	case cmd.RotateFrame != nil:
		if cell := b.cell(cmd.RotateFrame.Cell); cell != nil {
			block.RotateFrame(cell, cmd.RotateFrame.Phase)
		}
	case cmd.Record != nil:
		b.lowerRecord(block, cmd.Record)
	case cmd.Wait != nil:
		b.lowerWait(block, cmd.Wait)
	case cmd.DigitalTrigger != nil:
		if cell := b.cell(cmd.DigitalTrigger.Cell); cell != nil {
			block.DigitalTrigger(cell, cmd.DigitalTrigger.Length, cmd.DigitalTrigger.Outputs...)
		}
	case cmd.Assign != nil:
		b.lowerAssign(block, cmd.Assign)
	case cmd.Store != nil:
		if cell := b.cell(cmd.Store.Cell); cell != nil {
			if v := b.variable(cmd.Store.Var); v != nil {
				block.Store(cell, v, cmd.Store.SaveTo)
			}
		}
	case cmd.ForRange != nil:
		b.lowerForRange(block, cmd.ForRange)
	case cmd.Sync != nil:
		b.lowerSync(block, cmd.Sync)
	case cmd.Parallel != nil:
		b.lowerParallel(block, cmd.Parallel)
	default:
		b.fail(ErrCodeBadCommand, "program entry %d names no command", n)
	}
}

func (b *jobBuilder) lowerPlay(block *qicode.Block, ps *pulseSpec, readout bool) {
	cell := b.cell(ps.Cell)
	if cell == nil {
		return
	}
	shape, ok := pulseShapes[ps.Shape]
	if !ok {
		b.fail(ErrCodeBadPulse, "unknown pulse shape %q", ps.Shape)
		return
	}
	amplitude := ps.Amplitude
	if amplitude == 0 {
		amplitude = 1
	}

	var pulse *qicode.Pulse
	var err error
	if ps.LengthVar != "" {
		v := b.variable(ps.LengthVar)
		if v == nil {
			return
		}
		pulse, err = qicode.NewVariablePulse(v, shape, amplitude, ps.Phase)
	} else {
		pulse, err = qicode.NewPulse(ps.Length, shape, amplitude, ps.Phase)
	}
	if err != nil {
		b.fail(ErrCodeBadPulse, "%v", err)
		return
	}
	if ps.Frequency != 0 {
		pulse = pulse.WithFrequency(ps.Frequency)
	}

	if readout {
		block.PlayReadout(cell, pulse)
	} else {
		block.Play(cell, pulse)
	}
}

func (b *jobBuilder) lowerRecord(block *qicode.Block, rs *recordSpec) {
	cell := b.cell(rs.Cell)
	if cell == nil {
		return
	}
	var stateTo *qicode.Variable
	if rs.StateTo != "" {
		if stateTo = b.variable(rs.StateTo); stateTo == nil {
			return
		}
	}
	block.Record(cell, rs.Length, rs.SaveTo, stateTo)
}

func (b *jobBuilder) lowerWait(block *qicode.Block, ws *waitSpec) {
	cell := b.cell(ws.Cell)
	if cell == nil {
		return
	}
	if ws.Var != "" {
		if v := b.variable(ws.Var); v != nil {
			block.Wait(cell, v)
		}
		return
	}
	block.WaitSeconds(cell, ws.Duration)
}

func (b *jobBuilder) lowerAssign(block *qicode.Block, as *assignSpec) {
	v := b.variable(as.Var)
	if v == nil {
		return
	}
	var value qicode.Expr
	switch {
	case as.From != "" && as.Op != "":
		from := b.variable(as.From)
		if from == nil {
			return
		}
		if as.Value == nil {
			b.fail(ErrCodeBadCommand, "assign to %q: op %q needs a value", as.Var, as.Op)
			return
		}
		op, ok := map[string]qicode.Op{"+": qicode.OpAdd, "-": qicode.OpSub, "*": qicode.OpMul}[as.Op]
		if !ok {
			b.fail(ErrCodeBadCommand, "assign to %q: unknown op %q", as.Var, as.Op)
			return
		}
		calc, err := qicode.NewCalc(op, from, constantFor(from, *as.Value))
		if err != nil {
			b.fail(ErrCodeBadProgram, "%v", err)
			return
		}
		value = calc
	case as.From != "":
		from := b.variable(as.From)
		if from == nil {
			return
		}
		value = from
	case as.Value != nil:
		value = constantFor(v, *as.Value)
	default:
		b.fail(ErrCodeBadCommand, "assign to %q has no value", as.Var)
		return
	}
	block.Assign(v, value)
}

func (b *jobBuilder) lowerForRange(block *qicode.Block, fs *forRangeSpec) {
	v := b.variable(fs.Var)
	if v == nil {
		return
	}
	var start, end qicode.Expr
	if fs.StartVar != "" {
		start = b.variable(fs.StartVar)
	} else {
		start = constantFor(v, fs.Start)
	}
	if fs.EndVar != "" {
		end = b.variable(fs.EndVar)
	} else {
		end = constantFor(v, fs.End)
	}
	if start == nil || end == nil {
		return
	}
	step := 1.0
	if fs.Step != 0 {
		step = fs.Step
	}
	block.ForRange(v, start, end, constantFor(v, step), func(body *qicode.Block) {
		b.lower(body, fs.Body)
	})
}

func (b *jobBuilder) lowerSync(block *qicode.Block, ss *syncSpec) {
	var cells []*qicode.Cell
	for _, n := range ss.Cells {
		cell := b.cell(n)
		if cell == nil {
			return
		}
		cells = append(cells, cell)
	}
	block.Sync(cells...)
}

func (b *jobBuilder) lowerParallel(block *qicode.Block, ps *parallelSpec) {
	var branches []func(*qicode.Block)
	for _, branch := range ps.Branches {
		cmds := branch
		branches = append(branches, func(body *qicode.Block) {
			b.lower(body, cmds)
		})
	}
	block.Parallel(branches...)
}

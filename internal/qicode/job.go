package qicode

import (
	"fmt"
)

// Job is one experiment description: the cells it runs on, the
// variables it uses, and the command graph. All state lives on the job
// itself; nothing is shared between jobs.
//
// Construction errors stick to the job and surface from Check, so a
// program can be written fluently and validated once.
type Job struct {
	Block

	cells []*Cell
	vars  []*Variable
	err   error
}

// NewJob creates an empty job.
func NewJob() *Job {
	j := &Job{}
	j.Block.job = j
	return j
}

// Cells creates n cells owned by the job.
func (j *Job) Cells(n int) []*Cell {
	start := len(j.cells)
	for i := 0; i < n; i++ {
		j.cells = append(j.cells, newCell(start+i))
	}
	return j.cells[start:]
}

// AllCells returns every cell of the job.
func (j *Job) AllCells() []*Cell { return j.cells }

// Variables returns the job's variable arena in creation order.
func (j *Job) Variables() []*Variable { return j.vars }

// Variable creates an untyped variable; its type is inferred from use.
func (j *Job) Variable(name string) *Variable {
	v := &Variable{ID: len(j.vars), Name: name}
	v.ti.owner = v
	j.vars = append(j.vars, v)
	return v
}

func (j *Job) typedVariable(name string, typ VarType) *Variable {
	v := j.Variable(name)
	j.fail(v.ti.setType(typ, "variable definition"))
	return v
}

// StaticVariable creates an integer variable backed by the cell's
// static data region. Its value survives the end of a program run.
func (j *Job) StaticVariable(name string, init int32) *Variable {
	v := j.typedVariable(name, TypeNormal)
	v.Static = true
	v.Init = init
	return v
}

// NormalVariable creates an integer variable.
func (j *Job) NormalVariable(name string) *Variable {
	return j.typedVariable(name, TypeNormal)
}

// TimeVariable creates a duration variable.
func (j *Job) TimeVariable(name string) *Variable {
	return j.typedVariable(name, TypeTime)
}

// StateVariable creates a qubit state variable.
func (j *Job) StateVariable(name string) *Variable {
	return j.typedVariable(name, TypeState)
}

// FrequencyVariable creates an NCO frequency variable.
func (j *Job) FrequencyVariable(name string) *Variable {
	return j.typedVariable(name, TypeFrequency)
}

// Commands returns the root command list.
func (j *Job) Commands() []Command { return j.Block.cmds }

// Err returns the first construction error, if any.
func (j *Job) Err() error { return j.err }

func (j *Job) fail(err error) {
	if err != nil && j.err == nil {
		j.err = err
	}
}

// Check finalizes type inference and validates the program: constants
// without an inferred type fall back to normal respectively time,
// every type must be known afterwards, and loop ranges must be
// executable on the hardware.
func (j *Job) Check() error {
	if j.err != nil {
		return j.err
	}
	return check(j)
}

// Block is a sequence of commands under construction. The root block
// belongs to the job; nested blocks are the bodies of control flow
// commands.
type Block struct {
	job  *Job
	cmds []Command
}

func (b *Block) add(cmd Command) {
	b.cmds = append(b.cmds, cmd)
}

// Play starts a pulse on the cell's signal generator.
func (b *Block) Play(cell *Cell, pulse *Pulse) {
	idx, err := cell.AddPulse(pulse)
	if err != nil {
		b.job.fail(err)
		return
	}
	b.add(&PlayCommand{Cell: cell, Pulse: pulse, TriggerIndex: idx})
}

// PlayReadout starts a pulse on the cell's readout generator.
func (b *Block) PlayReadout(cell *Cell, pulse *Pulse) {
	if !pulse.HasFrequency && cell.InitialReadoutFrequency == 0 && pulse.Mode == PulseNormal {
		// A readout without any frequency records plain noise; this is
		// almost always a mistake in the experiment description.
		b.job.fail(&ProgramError{
			Code:    ErrCodeInvalidPulse,
			Subject: cell.String(),
			Message: "readout pulse without a frequency",
		})
		return
	}
	idx, err := cell.AddReadoutPulse(pulse)
	if err != nil {
		b.job.fail(err)
		return
	}
	b.add(&PlayReadoutCommand{Cell: cell, Pulse: pulse, TriggerIndex: idx})
}

// DigitalTrigger raises the given digital outputs for length seconds.
func (b *Block) DigitalTrigger(cell *Cell, length float64, outputs ...int) {
	b.add(&DigitalTriggerCommand{Cell: cell, Outputs: outputs, Length: length})
}

// RotateFrame offsets the cell's manipulation NCO phase.
func (b *Block) RotateFrame(cell *Cell, phase float64) {
	pulse := &Pulse{Length: Time(0), Shape: ShapeRect, Phase: phase}
	idx, err := cell.AddPulse(pulse)
	if err != nil {
		b.job.fail(err)
		return
	}
	b.add(&RotateFrameCommand{Cell: cell, Phase: phase, TriggerIndex: idx})
}

// Record captures the cell's input into the named result box. When
// stateTo is non-nil the discriminated state lands in that variable.
// The recording order is provisional until Check simulates loop
// execution and expands it to the real recording count.
func (b *Block) Record(cell *Cell, length float64, saveTo string, stateTo *Variable) {
	var box *ResultBox
	if saveTo != "" {
		box = cell.ResultBox(saveTo)
	}
	if stateTo != nil {
		b.job.fail(stateTo.ti.setType(TypeState, "recording state target"))
	}
	cell.recordings++
	cell.recordingOrder = append(cell.recordingOrder, box)
	if cell.RecordingLength == 0 {
		cell.RecordingLength = length
	} else if length != 0 && cell.RecordingLength != length {
		b.job.fail(fmt.Errorf("cell %d: conflicting recording lengths %g and %g",
			cell.ID, cell.RecordingLength, length))
		return
	}
	b.add(&RecordingCommand{Cell: cell, SaveTo: box, StateTo: stateTo, Length: length})
}

// Wait idles the cell for a duration expression.
func (b *Block) Wait(cell *Cell, duration Expr) {
	b.job.fail(duration.info().setType(TypeTime, "wait duration"))
	b.add(&WaitCommand{Cell: cell, Duration: duration})
}

// WaitSeconds idles the cell for a constant number of seconds.
func (b *Block) WaitSeconds(cell *Cell, seconds float64) {
	b.Wait(cell, Time(seconds))
}

// Assign evaluates an expression into a variable.
func (b *Block) Assign(v *Variable, value Expr) {
	for _, typ := range []VarType{TypeNormal, TypeTime, TypeFrequency, TypeState} {
		b.job.fail(addEqualConstraints(typ, fmt.Sprintf("assignment to %s", v), v, value))
	}
	b.add(&AssignCommand{Var: v, Value: value})
}

// Store persists a variable into the cell's static data region under
// the named result box.
func (b *Block) Store(cell *Cell, v *Variable, saveTo string) {
	b.add(&StoreCommand{Cell: cell, Var: v, Box: cell.ResultBox(saveTo)})
}

// If branches on a condition.
func (b *Block) If(cond *Condition, then func(*Block)) {
	b.IfElse(cond, then, nil)
}

// IfElse branches on a condition with an else body.
func (b *Block) IfElse(cond *Condition, then, els func(*Block)) {
	cmd := &IfCommand{Cond: cond}
	thenBlock := &Block{job: b.job}
	then(thenBlock)
	cmd.Then = thenBlock.cmds
	if els != nil {
		elseBlock := &Block{job: b.job}
		els(elseBlock)
		cmd.Else = elseBlock.cmds
	}
	b.add(cmd)
}

// ForRange iterates v over the half-open range [start, end) in step
// increments. Start, end and step share the variable's type.
func (b *Block) ForRange(v *Variable, start, end Expr, step *Constant, body func(*Block)) {
	reason := fmt.Sprintf("loop over %s", v)
	for _, e := range []Expr{v, start, end, step} {
		b.job.fail(e.info().addIllegal(TypeState, "states cannot drive a loop"))
	}
	for _, typ := range []VarType{TypeNormal, TypeTime, TypeFrequency, TypePhase, TypeAmplitude} {
		b.job.fail(addEqualConstraints(typ, reason, v, start, end, step))
	}
	if step.Float64() == 0 {
		b.job.fail(&ProgramError{
			Code:    ErrCodeInvalidRange,
			Subject: v.String(),
			Message: "step must not be zero",
		})
		return
	}
	startConst, startOk := start.(*Constant)
	endConst, endOk := end.(*Constant)
	if startOk && endOk {
		if startConst.Float64() > endConst.Float64() && step.Float64() > 0 {
			b.job.fail(&ProgramError{
				Code:    ErrCodeInvalidRange,
				Subject: v.String(),
				Message: fmt.Sprintf("start %g is greater than end %g with a positive step", startConst.Float64(), endConst.Float64()),
			})
			return
		}
		if startConst.Float64() < endConst.Float64() && step.Float64() < 0 {
			b.job.fail(&ProgramError{
				Code:    ErrCodeInvalidRange,
				Subject: v.String(),
				Message: fmt.Sprintf("start %g is less than end %g with a negative step", startConst.Float64(), endConst.Float64()),
			})
			return
		}
	}
	cmd := &ForRangeCommand{Var: v, Start: start, End: end, Step: step}
	bodyBlock := &Block{job: b.job}
	body(bodyBlock)
	cmd.Body = bodyBlock.cmds
	b.add(cmd)
}

// Parallel runs several pulse sequences at the same time. Each branch
// function fills one parallel branch; only play, readout, trigger and
// wait commands are allowed inside.
func (b *Block) Parallel(branches ...func(*Block)) {
	cmd := &ParallelCommand{}
	for _, fill := range branches {
		branch := &Block{job: b.job}
		fill(branch)
		for _, c := range branch.cmds {
			switch c.(type) {
			case *PlayCommand, *PlayReadoutCommand, *WaitCommand, *RecordingCommand, *DigitalTriggerCommand:
			default:
				b.job.fail(fmt.Errorf("parallel blocks only allow pulses, recordings and waits, got %T", c))
				return
			}
		}
		cmd.Branches = append(cmd.Branches, branch.cmds)
	}
	b.add(cmd)
}

// Sync aligns the cycle counters of the given cells. With no arguments
// every cell of the job synchronizes.
func (b *Block) Sync(cells ...*Cell) {
	if len(cells) == 0 {
		cells = b.job.cells
	}
	b.add(&SyncCommand{SyncCells: cells})
}

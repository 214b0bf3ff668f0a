package qicode

// Command is one node of the program graph. Commands either act on a
// single cell or span several, like synchronization and control flow.
type Command interface {
	// Cells returns the cells the command involves.
	Cells() []*Cell

	// Variables adds every variable the command references to the set.
	Variables(set *VarSet)
}

// PlayCommand starts a pulse on the cell's signal generator.
type PlayCommand struct {
	Cell  *Cell
	Pulse *Pulse

	// TriggerIndex is assigned when the pulse is registered with the
	// cell.
	TriggerIndex int
}

func (c *PlayCommand) Cells() []*Cell { return []*Cell{c.Cell} }

func (c *PlayCommand) Variables(set *VarSet) {
	c.Pulse.Length.Variables(set)
}

// PlayReadoutCommand starts a pulse on the cell's readout generator.
type PlayReadoutCommand struct {
	Cell  *Cell
	Pulse *Pulse

	TriggerIndex int
}

func (c *PlayReadoutCommand) Cells() []*Cell { return []*Cell{c.Cell} }

func (c *PlayReadoutCommand) Variables(set *VarSet) {
	c.Pulse.Length.Variables(set)
}

// DigitalTriggerCommand raises digital output markers for a duration.
type DigitalTriggerCommand struct {
	Cell    *Cell
	Outputs []int
	Length  float64
}

func (c *DigitalTriggerCommand) Cells() []*Cell    { return []*Cell{c.Cell} }
func (c *DigitalTriggerCommand) Variables(*VarSet) {}

// RotateFrameCommand adds a phase offset to the cell's manipulation
// NCO. The rotation is carried by a zero length pulse, so it occupies a
// trigger index like any other pulse.
type RotateFrameCommand struct {
	Cell  *Cell
	Phase float64

	TriggerIndex int
}

func (c *RotateFrameCommand) Cells() []*Cell    { return []*Cell{c.Cell} }
func (c *RotateFrameCommand) Variables(*VarSet) {}

// RecordingCommand captures the cell's input signal. SaveTo names the
// result box the data lands in after processing; StateTo, when set,
// receives the discriminated qubit state at runtime.
type RecordingCommand struct {
	Cell    *Cell
	SaveTo  *ResultBox
	StateTo *Variable
	Length  float64
	Offset  float64
}

func (c *RecordingCommand) Cells() []*Cell { return []*Cell{c.Cell} }

func (c *RecordingCommand) Variables(set *VarSet) {
	if c.StateTo != nil {
		set.Add(c.StateTo)
	}
}

// WaitCommand lets the cell idle for a duration, constant or variable.
type WaitCommand struct {
	Cell     *Cell
	Duration Expr
}

func (c *WaitCommand) Cells() []*Cell { return []*Cell{c.Cell} }

func (c *WaitCommand) Variables(set *VarSet) {
	c.Duration.Variables(set)
}

// AssignCommand evaluates an expression into a variable. The assignment
// runs on every cell that uses the variable.
type AssignCommand struct {
	Var   *Variable
	Value Expr
}

func (c *AssignCommand) Cells() []*Cell { return nil }

func (c *AssignCommand) Variables(set *VarSet) {
	set.Add(c.Var)
	c.Value.Variables(set)
}

// StoreCommand writes a variable into the cell's static data region so
// the value survives the end of a shot.
type StoreCommand struct {
	Cell *Cell
	Var  *Variable
	Box  *ResultBox
}

func (c *StoreCommand) Cells() []*Cell { return []*Cell{c.Cell} }

func (c *StoreCommand) Variables(set *VarSet) {
	set.Add(c.Var)
}

// IfCommand branches on a runtime condition.
type IfCommand struct {
	Cond *Condition
	Then []Command
	Else []Command
}

func (c *IfCommand) Cells() []*Cell {
	return cellsOf(append(append([]Command{}, c.Then...), c.Else...))
}

func (c *IfCommand) Variables(set *VarSet) {
	c.Cond.Left.Variables(set)
	c.Cond.Right.Variables(set)
	for _, cmd := range c.Then {
		cmd.Variables(set)
	}
	for _, cmd := range c.Else {
		cmd.Variables(set)
	}
}

// ForRangeCommand iterates a variable from Start towards End in Step
// increments, following half-open range semantics: End itself is never
// reached.
type ForRangeCommand struct {
	Var   *Variable
	Start Expr
	End   Expr
	Step  *Constant
	Body  []Command
}

func (c *ForRangeCommand) Cells() []*Cell { return cellsOf(c.Body) }

func (c *ForRangeCommand) Variables(set *VarSet) {
	set.Add(c.Var)
	c.Start.Variables(set)
	c.End.Variables(set)
	for _, cmd := range c.Body {
		cmd.Variables(set)
	}
}

// ParallelCommand plays several pulse sequences simultaneously. Only
// play, readout and wait commands may appear in the branches; their
// triggers merge into combined trigger words.
type ParallelCommand struct {
	Branches [][]Command
}

func (c *ParallelCommand) Cells() []*Cell {
	var all []Command
	for _, b := range c.Branches {
		all = append(all, b...)
	}
	return cellsOf(all)
}

func (c *ParallelCommand) Variables(set *VarSet) {
	for _, b := range c.Branches {
		for _, cmd := range b {
			cmd.Variables(set)
		}
	}
}

// SyncCommand aligns the cycle counters of the given cells.
type SyncCommand struct {
	SyncCells []*Cell
}

func (c *SyncCommand) Cells() []*Cell    { return c.SyncCells }
func (c *SyncCommand) Variables(*VarSet) {}

func cellsOf(cmds []Command) []*Cell {
	seen := make(map[*Cell]bool)
	var cells []*Cell
	for _, cmd := range cmds {
		for _, cell := range cmd.Cells() {
			if !seen[cell] {
				seen[cell] = true
				cells = append(cells, cell)
			}
		}
	}
	return cells
}

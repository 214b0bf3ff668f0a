package compiler

import (
	"github.com/roach88/qic/internal/isa"
	"github.com/roach88/qic/internal/qicode"
)

// Options tweak compilation. The zero value emits a phase sync with the
// default settling delay.
type Options struct {
	// SkipNCOSync drops the oscillator phase reset at program start.
	SkipNCOSync bool

	// NCOSyncDelay is the settling time after the phase reset, in
	// seconds. Zero picks the default.
	NCOSyncDelay float64

	// CellMap assigns a hardware cell index to each job cell, in job
	// order. Nil keeps the job's own numbering.
	CellMap []int
}

// DefaultNCOSyncDelay is the settling time after the oscillator phase
// reset.
const DefaultNCOSyncDelay = 12e-9

// CellProgram is the compiled artifact of one cell.
type CellProgram struct {
	Cell      *qicode.Cell
	CellIndex int

	Instructions []isa.Instruction
	Words        []uint32

	// StaticRegion holds the initial values of the cell's static data
	// slots, in slot order.
	StaticRegion []int32

	// BoxSlots maps result box names to their static data slot, for
	// boxes filled by store commands rather than recordings.
	BoxSlots map[string]int

	// VarRegisters maps the cell's variables to their register number.
	VarRegisters map[*qicode.Variable]int

	ForRanges []*ForRangeEntry
}

// Listing renders the cell's program as assembly text.
func (p *CellProgram) Listing() string { return isa.Listing(p.Instructions) }

// Program is the compiled artifact of a whole job.
type Program struct {
	Job   *qicode.Job
	Cells []*CellProgram
}

// Cell returns the compiled program of a job cell, or nil.
func (p *Program) Cell(c *qicode.Cell) *CellProgram {
	for _, cp := range p.Cells {
		if cp.Cell == c {
			return cp
		}
	}
	return nil
}

// SweepShape returns the iteration counts of the top level loops, outer
// first. Data handlers use it to fold flat result streams back into the
// sweep's dimensions. Loops with data dependent bounds contribute
// nothing and make the shape incomplete.
func (p *Program) SweepShape() []int {
	if len(p.Cells) == 0 {
		return nil
	}
	var shape []int
	for _, e := range p.Cells[0].ForRanges {
		if e.Iterations <= 0 {
			continue
		}
		shape = append(shape, e.Iterations)
	}
	return shape
}

// Compile lowers a job into one sequencer program per cell.
func Compile(job *qicode.Job, opts Options) (*Program, error) {
	if err := job.Check(); err != nil {
		return nil, err
	}
	b := newBuilder(job, opts.CellMap)
	if !opts.SkipNCOSync {
		delay := opts.NCOSyncDelay
		if delay == 0 {
			delay = DefaultNCOSyncDelay
		}
		for _, cell := range b.cells {
			if err := b.seqs[cell].addNcoSync(delay); err != nil {
				return nil, err
			}
		}
	}
	if err := b.declareVariables(); err != nil {
		return nil, err
	}
	if err := b.lowerCommands(job.Commands()); err != nil {
		return nil, err
	}
	prog := &Program{Job: job}
	for _, cell := range b.cells {
		s := b.seqs[cell]
		s.endOfProgram()
		if s.size() > MaxProgramWords {
			return nil, &CompileError{
				Code: ErrCodeCapacityExceeded, Cell: s.CellIndex,
				Message: "program exceeds sequencer memory",
			}
		}
		boxes := make(map[string]int, len(s.staticBoxes))
		for name, slot := range s.staticBoxes {
			boxes[name] = slot
		}
		vars := make(map[*qicode.Variable]int, len(s.varRegs))
		for v, r := range s.varRegs {
			vars[v] = r.addr
		}
		prog.Cells = append(prog.Cells, &CellProgram{
			Cell:         cell,
			CellIndex:    s.CellIndex,
			Instructions: s.Instructions(),
			Words:        s.Words(),
			StaticRegion: s.StaticRegion(),
			BoxSlots:     boxes,
			VarRegisters: vars,
			ForRanges:    s.ForRanges(),
		})
	}
	return prog, nil
}

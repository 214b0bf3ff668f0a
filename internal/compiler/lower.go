package compiler

import (
	"log/slog"

	"github.com/roach88/qic/internal/isa"
	"github.com/roach88/qic/internal/qicode"
	"github.com/roach88/qic/internal/units"
)

// builder walks the command graph of a job and drives one sequencer per
// cell.
type builder struct {
	job      *qicode.Job
	cells    []*qicode.Cell
	seqs     map[*qicode.Cell]*Sequencer
	varCells map[*qicode.Variable]map[*qicode.Cell]bool

	ifDepth  int
	nextSync int

	// excludeVar and singleCycleVar implement the first-iteration
	// unrolling of time loops: commands driven by excludeVar are
	// skipped, pulses driven by singleCycleVar trigger for one cycle.
	excludeVar     *qicode.Variable
	singleCycleVar *qicode.Variable
}

func newBuilder(job *qicode.Job, cellMap []int) *builder {
	b := &builder{
		job:   job,
		cells: job.AllCells(),
		seqs:  make(map[*qicode.Cell]*Sequencer),
	}
	for i, cell := range b.cells {
		idx := cell.ID
		if cellMap != nil {
			idx = cellMap[i]
		}
		b.seqs[cell] = NewSequencer(idx)
	}
	b.varCells = assignVariableCells(job)
	return b
}

// assignVariableCells decides which cells a variable lives on: every
// cell touched by a command that references the variable. Assignments
// carry no cell themselves, so the mapping is iterated until it
// settles.
func assignVariableCells(job *qicode.Job) map[*qicode.Variable]map[*qicode.Cell]bool {
	out := make(map[*qicode.Variable]map[*qicode.Cell]bool)
	for _, v := range job.Variables() {
		out[v] = make(map[*qicode.Cell]bool)
	}
	for changed := true; changed; {
		changed = false
		qicode.WalkCommands(job.Commands(), func(cmd qicode.Command) {
			var set qicode.VarSet
			cmd.Variables(&set)
			if set.Len() == 0 {
				return
			}
			cells := cmd.Cells()
			if len(cells) == 0 {
				// Cell-less commands run wherever their variables
				// already live.
				seen := make(map[*qicode.Cell]bool)
				for _, v := range set.Values() {
					for c := range out[v] {
						seen[c] = true
					}
				}
				for c := range seen {
					cells = append(cells, c)
				}
			}
			for _, v := range set.Values() {
				for _, c := range cells {
					if !out[v][c] {
						out[v][c] = true
						changed = true
					}
				}
			}
		})
	}
	return out
}

// relevantCells returns the cells a command runs on, including the
// cells of the variables it references.
func (b *builder) relevantCells(cmd qicode.Command) []*qicode.Cell {
	seen := make(map[*qicode.Cell]bool)
	var cells []*qicode.Cell
	add := func(c *qicode.Cell) {
		if !seen[c] {
			seen[c] = true
			cells = append(cells, c)
		}
	}
	for _, c := range cmd.Cells() {
		add(c)
	}
	var set qicode.VarSet
	cmd.Variables(&set)
	for _, v := range set.Values() {
		for c := range b.varCells[v] {
			add(c)
		}
	}
	// Keep job cell order deterministic.
	var ordered []*qicode.Cell
	for _, c := range b.cells {
		if seen[c] {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

// declareVariables reserves a register, or a static data slot, for
// every variable on every cell it lives on.
func (b *builder) declareVariables() error {
	for _, v := range b.job.Variables() {
		for _, cell := range b.cells {
			if !b.varCells[v][cell] {
				continue
			}
			s := b.seqs[cell]
			if v.Static {
				if _, err := s.staticVarSlot(v); err != nil {
					return err
				}
				continue
			}
			if err := s.addVariable(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) newSyncToken() int {
	b.nextSync++
	return b.nextSync
}

// syncCells aligns the cycle counters of the given cells: implicitly
// with waits when every counter is still exact, with a hardware barrier
// otherwise.
func (b *builder) syncCells(cells []*qicode.Cell) error {
	if len(cells) <= 1 {
		return nil
	}
	implicit := true
	token := b.seqs[cells[0]].cycles.syncPoint
	for _, c := range cells {
		pc := &b.seqs[c].cycles
		if !pc.valid || pc.syncPoint != token {
			implicit = false
			break
		}
	}
	if !implicit {
		indices := make([]int, len(cells))
		for i, c := range cells {
			indices[i] = b.seqs[c].CellIndex
		}
		barrier, err := isa.NewCellSync(indices)
		if err != nil {
			return err
		}
		newToken := b.newSyncToken()
		for _, c := range cells {
			s := b.seqs[c]
			s.add(barrier, 1, true)
			s.cycles.synchronize(newToken)
		}
		return nil
	}
	longest := int64(0)
	for _, c := range cells {
		if cyc := b.seqs[c].cycles.cycles; cyc > longest {
			longest = cyc
		}
	}
	for _, c := range cells {
		s := b.seqs[c]
		if s.cycles.cycles < longest {
			if err := s.waitCycles(longest - s.cycles.cycles); err != nil {
				return err
			}
		}
	}
	return nil
}

// evaluated is the result of lowering an expression: the register the
// value ended up in and the scratch registers to release once the value
// was consumed.
type evaluated struct {
	reg   *register
	temps []*register
}

func (b *builder) release(s *Sequencer, ev evaluated) {
	for _, r := range ev.temps {
		s.releaseRegister(r)
	}
}

// evalExpr lowers an expression into a register.
func (b *builder) evalExpr(s *Sequencer, e qicode.Expr) (evaluated, error) {
	switch x := e.(type) {
	case *qicode.Constant:
		v, err := x.Value()
		if err != nil {
			return evaluated{}, err
		}
		r, err := s.immediateToRegister(v, nil)
		if err != nil {
			return evaluated{}, err
		}
		ev := evaluated{reg: r}
		if r != s.reg0 {
			ev.temps = []*register{r}
		}
		return ev, nil
	case *qicode.Variable:
		if x.Static {
			slot, err := s.staticVarSlot(x)
			if err != nil {
				return evaluated{}, err
			}
			value, addr, err := s.loadStatic(slot)
			if err != nil {
				return evaluated{}, err
			}
			return evaluated{reg: value, temps: []*register{value, addr}}, nil
		}
		r, err := s.varRegister(x)
		if err != nil {
			return evaluated{}, err
		}
		return evaluated{reg: r}, nil
	case *qicode.Calc:
		return b.evalCalc(s, x)
	}
	return evaluated{}, s.errf(ErrCodeUnsupported, "cannot lower expression %s", e)
}

// calcOperand lowers a calculation leaf. Constants stay immediates so
// the ALU can fold them into the instruction.
func (b *builder) calcOperand(s *Sequencer, e qicode.Expr) (operand, []*register, error) {
	if c, ok := e.(*qicode.Constant); ok {
		v, err := c.Value()
		if err != nil {
			return operand{}, nil, err
		}
		return immOp(v), nil, nil
	}
	ev, err := b.evalExpr(s, e)
	if err != nil {
		return operand{}, nil, err
	}
	return regOp(ev.reg), ev.temps, nil
}

func aluOp(op qicode.Op) isa.AluOp {
	switch op {
	case qicode.OpAdd:
		return isa.AluAdd
	case qicode.OpSub:
		return isa.AluSub
	case qicode.OpMul:
		return isa.AluMul
	case qicode.OpLsh:
		return isa.AluLsh
	case qicode.OpRsh:
		return isa.AluRsh
	case qicode.OpAnd:
		return isa.AluAnd
	case qicode.OpOr:
		return isa.AluOr
	}
	return isa.AluXor
}

func branchCond(c qicode.Cond) isa.Condition {
	switch c {
	case qicode.CondEQ:
		return isa.CondEQ
	case qicode.CondNE:
		return isa.CondNE
	case qicode.CondLT:
		return isa.CondLT
	case qicode.CondLE:
		return isa.CondLE
	case qicode.CondGT:
		return isa.CondGT
	}
	return isa.CondGE
}

func (b *builder) evalCalc(s *Sequencer, c *qicode.Calc) (evaluated, error) {
	left, leftTemps, err := b.calcOperand(s, c.Left)
	if err != nil {
		return evaluated{}, err
	}
	op, right := aluOp(c.Op), immOp(-1)
	var rightTemps []*register
	if c.Op != qicode.OpNot {
		right, rightTemps, err = b.calcOperand(s, c.Right)
		if err != nil {
			return evaluated{}, err
		}
	}
	dst, err := s.requestRegister()
	if err != nil {
		return evaluated{}, err
	}
	if err := s.calc(dst, left, op, right); err != nil {
		return evaluated{}, err
	}
	for _, r := range leftTemps {
		s.releaseRegister(r)
	}
	for _, r := range rightTemps {
		s.releaseRegister(r)
	}
	return evaluated{reg: dst, temps: []*register{dst}}, nil
}

// addCondition lowers a comparison into a branch. If commands branch
// over their body, so the comparison is inverted there.
func (b *builder) addCondition(s *Sequencer, cond *qicode.Condition, invert bool) (*isa.Branch, error) {
	left, err := b.evalExpr(s, cond.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.evalExpr(s, cond.Right)
	if err != nil {
		return nil, err
	}
	op := cond.Op
	if invert {
		op = op.Invert()
	}
	br := s.addBranch(branchCond(op), left.reg, right.reg)
	b.release(s, left)
	b.release(s, right)
	return br, nil
}

// lowerCommands lowers a command list, merging a recording directly
// after a readout pulse on the same cell into a shared trigger word.
func (b *builder) lowerCommands(cmds []qicode.Command) error {
	for i := 0; i < len(cmds); i++ {
		if pr, ok := cmds[i].(*qicode.PlayReadoutCommand); ok && i+1 < len(cmds) {
			if rec, ok := cmds[i+1].(*qicode.RecordingCommand); ok && rec.Cell == pr.Cell {
				if err := b.lowerPlayReadout(pr, rec); err != nil {
					return err
				}
				i++
				continue
			}
		}
		if err := b.lowerCommand(cmds[i]); err != nil {
			return err
		}
	}
	return nil
}

// buildBody lowers a command list and chokes pulses left running at its
// end.
func (b *builder) buildBody(cmds []qicode.Command, relevant []*qicode.Cell) error {
	if err := b.lowerCommands(cmds); err != nil {
		return err
	}
	for _, c := range relevant {
		b.seqs[c].endOfCommandBody()
	}
	return nil
}

func (b *builder) lowerCommand(cmd qicode.Command) error {
	switch c := cmd.(type) {
	case *qicode.PlayCommand:
		return b.lowerPlay(c)
	case *qicode.PlayReadoutCommand:
		return b.lowerPlayReadout(c, nil)
	case *qicode.RotateFrameCommand:
		s := b.seqs[c.Cell]
		return s.addTriggerCmd(&triggerPulse{index: c.TriggerIndex}, nil, nil, nil, true, false)
	case *qicode.DigitalTriggerCommand:
		return b.lowerDigitalTrigger(c)
	case *qicode.RecordingCommand:
		return b.seqs[c.Cell].addTriggerCmd(nil, nil, c, nil, true, false)
	case *qicode.WaitCommand:
		return b.lowerWait(c)
	case *qicode.AssignCommand:
		return b.lowerAssign(c)
	case *qicode.StoreCommand:
		return b.lowerStore(c)
	case *qicode.IfCommand:
		return b.lowerIf(c)
	case *qicode.ForRangeCommand:
		return b.lowerForRange(c)
	case *qicode.ParallelCommand:
		return b.lowerParallel(c)
	case *qicode.SyncCommand:
		return b.syncCells(c.SyncCells)
	}
	return &CompileError{Code: ErrCodeUnsupported, Cell: -1, Message: "unknown command"}
}

// pulseTrigger describes a play command to the sequencer. Pulses whose
// length is the variable currently being unrolled trigger for a single
// cycle instead.
func (b *builder) pulseTrigger(p *qicode.Pulse, index int) (*triggerPulse, bool) {
	tp := &triggerPulse{index: index}
	switch l := p.Length.(type) {
	case *qicode.Variable:
		if l == b.singleCycleVar {
			return tp, true
		}
		tp.varLength = l
	case *qicode.Constant:
		tp.length = l.Float64()
	}
	return tp, false
}

// skipUnrolled reports whether the command is dropped because the loop
// variable driving it is pinned to zero in the current unroll.
func (b *builder) skipUnrolled(length qicode.Expr) bool {
	if b.excludeVar == nil {
		return false
	}
	v, ok := length.(*qicode.Variable)
	return ok && v == b.excludeVar
}

func (b *builder) lowerPlay(c *qicode.PlayCommand) error {
	if b.skipUnrolled(c.Pulse.Length) {
		return nil
	}
	s := b.seqs[c.Cell]
	manip, single := b.pulseTrigger(c.Pulse, c.TriggerIndex)
	if err := s.addTriggerCmd(manip, nil, nil, nil, true, single); err != nil {
		return err
	}
	if c.Pulse.Mode == qicode.PulseCW {
		s.trigger.markActive(modManipulation)
	}
	return nil
}

func (b *builder) lowerPlayReadout(c *qicode.PlayReadoutCommand, rec *qicode.RecordingCommand) error {
	if b.skipUnrolled(c.Pulse.Length) {
		return nil
	}
	s := b.seqs[c.Cell]
	readout, single := b.pulseTrigger(c.Pulse, c.TriggerIndex)
	if err := s.addTriggerCmd(nil, readout, rec, nil, true, single); err != nil {
		return err
	}
	if c.Pulse.Mode == qicode.PulseCW {
		s.trigger.markActive(modReadout)
	}
	return nil
}

func (b *builder) lowerDigitalTrigger(c *qicode.DigitalTriggerCommand) error {
	mask := 0
	for _, out := range c.Outputs {
		mask |= 1 << uint(out)
	}
	ext := &triggerPulse{index: mask & 0x3, length: c.Length}
	return b.seqs[c.Cell].addTriggerCmd(nil, nil, nil, ext, true, false)
}

func (b *builder) lowerWait(c *qicode.WaitCommand) error {
	if b.skipUnrolled(c.Duration) {
		return nil
	}
	s := b.seqs[c.Cell]
	switch d := c.Duration.(type) {
	case *qicode.Constant:
		rounded, err := units.TimeToCycles(d.Float64(), units.Round)
		if err != nil {
			return err
		}
		if rounded == 0 {
			return nil
		}
		cycles, err := units.TimeToCycles(d.Float64(), units.Ceil)
		if err != nil {
			return err
		}
		return s.waitCycles(int64(cycles))
	case *qicode.Variable:
		if d == b.singleCycleVar {
			return s.waitCycles(1)
		}
		r, err := s.varRegister(d)
		if err != nil {
			return err
		}
		return s.waitRegister(r)
	default:
		slog.Warn("calculation inside wait might impede timing")
		ev, err := b.evalExpr(s, c.Duration)
		if err != nil {
			return err
		}
		if err := s.waitRegister(ev.reg); err != nil {
			return err
		}
		b.release(s, ev)
		return nil
	}
}

func (b *builder) lowerAssign(c *qicode.AssignCommand) error {
	for _, cell := range b.cells {
		if !b.varCells[c.Var][cell] {
			continue
		}
		s := b.seqs[cell]
		if c.Var.Static {
			slot, err := s.staticVarSlot(c.Var)
			if err != nil {
				return err
			}
			ev, err := b.evalExpr(s, c.Value)
			if err != nil {
				return err
			}
			if err := s.storeStatic(slot, ev.reg); err != nil {
				return err
			}
			b.release(s, ev)
			continue
		}
		dst, err := s.varRegister(c.Var)
		if err != nil {
			return err
		}
		if konst, ok := c.Value.(*qicode.Constant); ok {
			v, err := konst.Value()
			if err != nil {
				return err
			}
			if _, err := s.immediateToRegister(v, dst); err != nil {
				return err
			}
			dst.valid = b.ifDepth == 0
			continue
		}
		ev, err := b.evalExpr(s, c.Value)
		if err != nil {
			return err
		}
		if err := s.mov(dst, ev.reg); err != nil {
			return err
		}
		dst.valid = ev.reg.valid && b.ifDepth == 0
		b.release(s, ev)
	}
	return nil
}

func (b *builder) lowerStore(c *qicode.StoreCommand) error {
	s := b.seqs[c.Cell]
	slot, err := s.staticBoxSlot(c.Box.Name)
	if err != nil {
		return err
	}
	ev, err := b.evalExpr(s, c.Var)
	if err != nil {
		return err
	}
	if err := s.storeStatic(slot, ev.reg); err != nil {
		return err
	}
	b.release(s, ev)
	return nil
}

func (b *builder) lowerIf(c *qicode.IfCommand) error {
	cells := b.relevantCells(c)
	if err := b.syncCells(cells); err != nil {
		return err
	}
	b.ifDepth++
	defer func() { b.ifDepth-- }()

	branches := make(map[*qicode.Cell]*isa.Branch)
	counters := make(map[*qicode.Cell]int)
	for _, cell := range cells {
		s := b.seqs[cell]
		br, err := b.addCondition(s, c.Cond, true)
		if err != nil {
			return err
		}
		branches[cell] = br
		// Branching makes the cycle count depend on runtime data.
		s.cycles.valid = false
		counters[cell] = s.size() - 1
	}

	if err := b.buildBody(c.Then, cells); err != nil {
		return err
	}

	if len(c.Else) > 0 {
		jumps := make(map[*qicode.Cell]*isa.Jump)
		for _, cell := range cells {
			s := b.seqs[cell]
			jumps[cell] = s.addJump(0)
			branches[cell].SetOffset(int32(s.size() - counters[cell]))
			counters[cell] = s.size() - 1
		}
		if err := b.buildBody(c.Else, cells); err != nil {
			return err
		}
		for _, cell := range cells {
			s := b.seqs[cell]
			jumps[cell].SetOffset(int32(s.size() - counters[cell]))
		}
		return nil
	}
	for _, cell := range cells {
		s := b.seqs[cell]
		branches[cell].SetOffset(int32(s.size() - counters[cell]))
	}
	return nil
}

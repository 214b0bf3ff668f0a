package compiler

import (
	"github.com/roach88/qic/internal/isa"
	"github.com/roach88/qic/internal/qicode"
)

func (b *builder) lowerForRange(c *qicode.ForRangeCommand) error {
	switch c.Var.Type() {
	case qicode.TypeTime:
		return b.lowerTimeForRange(c)
	default:
		return b.lowerPlainForRange(c)
	}
}

// lowerPlainForRange handles loops whose variable never decides a pulse
// length: load start, compare against end, run the body, step, jump
// back.
func (b *builder) lowerPlainForRange(c *qicode.ForRangeCommand) error {
	cells := b.relevantCells(c)
	startVar, startVal, err := loopBound(c.Start)
	if err != nil {
		return err
	}
	endVar, endVal, err := loopBound(c.End)
	if err != nil {
		return err
	}
	return b.implementForRange(c, cells, startVar, startVal, endVar, endVal, false)
}

// lowerTimeForRange handles loops over time variables. Pulses cannot
// play for zero or one cycle through a register, so those iterations
// are peeled off and lowered specially before the remaining loop runs.
func (b *builder) lowerTimeForRange(c *qicode.ForRangeCommand) error {
	cells := b.relevantCells(c)
	startConst, startOk := c.Start.(*qicode.Constant)
	endConst, endOk := c.End.(*qicode.Constant)
	if !startOk || !endOk {
		return &CompileError{
			Code: ErrCodeUnsupported, Cell: -1,
			Message: "time loops need constant bounds",
		}
	}
	start, err := startConst.Value()
	if err != nil {
		return err
	}
	end, err := endConst.Value()
	if err != nil {
		return err
	}
	step, err := c.Step.Value()
	if err != nil {
		return err
	}
	iters := loopIterations(start, end, step)
	if iters == 0 {
		return nil
	}
	exit := start + int32(iters)*step

	cur := start
	if cur == 0 {
		if err := b.unrollLoopZero(c, cells, step); err != nil {
			return err
		}
		cur += step
		if loopIterations(cur, end, step) == 0 {
			return nil
		}
	}
	if cur == 1 {
		if err := b.unrollLoopOne(c, cells, step, true); err != nil {
			return err
		}
		cur += step
		if loopIterations(cur, end, step) == 0 {
			return nil
		}
	}

	// A down counting loop cannot run its one cycle iteration through
	// the register path either; it is peeled off behind the loop.
	unrollLast := step < 0 && exit-step == 1
	mainEnd := exit
	if unrollLast {
		mainEnd = exit - step
	}
	if err := b.implementForRange(c, cells, nil, cur, nil, mainEnd, unrollLast); err != nil {
		return err
	}
	if unrollLast {
		return b.unrollLoopOne(c, cells, step, false)
	}
	return nil
}

func loopBound(e qicode.Expr) (*qicode.Variable, int32, error) {
	switch x := e.(type) {
	case *qicode.Variable:
		return x, 0, nil
	case *qicode.Constant:
		v, err := x.Value()
		return nil, v, err
	}
	return nil, 0, &CompileError{Code: ErrCodeUnsupported, Cell: -1, Message: "loop bounds must be variables or constants"}
}

// unrollLoopZero lowers the iteration where the loop variable is zero.
// Pulses and waits of zero length do nothing, so every command driven
// by the variable is dropped from the body.
func (b *builder) unrollLoopZero(c *qicode.ForRangeCommand, cells []*qicode.Cell, step int32) error {
	if !bodyRemainsWithout(c.Body, c.Var) {
		return nil
	}
	if err := b.syncCells(cells); err != nil {
		return err
	}
	for _, cell := range cells {
		s := b.seqs[cell]
		r, err := s.varRegister(c.Var)
		if err != nil {
			return err
		}
		if _, err := s.immediateToRegister(0, r); err != nil {
			return err
		}
		s.registerForRange(r.addr, 0, step, step, true)
	}
	prev := b.excludeVar
	b.excludeVar = c.Var
	err := b.buildBody(c.Body, cells)
	b.excludeVar = prev
	if err != nil {
		return err
	}
	for _, cell := range cells {
		b.seqs[cell].exitForRange()
	}
	return nil
}

// unrollLoopOne lowers the iteration where the loop variable is one
// cycle. Pulses driven by the variable become plain one cycle triggers
// without a register wait.
func (b *builder) unrollLoopOne(c *qicode.ForRangeCommand, cells []*qicode.Cell, step int32, sync bool) error {
	if sync {
		if err := b.syncCells(cells); err != nil {
			return err
		}
	}
	for _, cell := range cells {
		s := b.seqs[cell]
		r, err := s.varRegister(c.Var)
		if err != nil {
			return err
		}
		if _, err := s.immediateToRegister(1, r); err != nil {
			return err
		}
		s.registerForRange(r.addr, 1, 1+step, step, true)
	}
	prev := b.singleCycleVar
	b.singleCycleVar = c.Var
	err := b.buildBody(c.Body, cells)
	b.singleCycleVar = prev
	if err != nil {
		return err
	}
	for _, cell := range cells {
		b.seqs[cell].exitForRange()
	}
	return nil
}

// bodyRemainsWithout reports whether dropping every command driven by
// the variable leaves anything to execute.
func bodyRemainsWithout(cmds []qicode.Command, v *qicode.Variable) bool {
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case *qicode.PlayCommand:
			if l, ok := c.Pulse.Length.(*qicode.Variable); ok && l == v {
				continue
			}
		case *qicode.PlayReadoutCommand:
			if l, ok := c.Pulse.Length.(*qicode.Variable); ok && l == v {
				continue
			}
		case *qicode.WaitCommand:
			if l, ok := c.Duration.(*qicode.Variable); ok && l == v {
				continue
			}
		case *qicode.IfCommand:
			if !bodyRemainsWithout(c.Then, v) && !bodyRemainsWithout(c.Else, v) {
				continue
			}
		}
		return true
	}
	return false
}

// implementForRange emits the register-driven loop: head, body, step
// and back jump. Bounds are in machine units; a nil variable means the
// constant value applies.
func (b *builder) implementForRange(c *qicode.ForRangeCommand, cells []*qicode.Cell,
	startVar *qicode.Variable, startVal int32,
	endVar *qicode.Variable, endVal int32, exitToUnroll bool) error {

	step, err := c.Step.Value()
	if err != nil {
		return err
	}
	if err := b.syncCells(cells); err != nil {
		return err
	}

	branches := make(map[*qicode.Cell]*isa.Branch)
	counters := make(map[*qicode.Cell]int)
	cyclesBefore := make(map[*qicode.Cell]int64)
	endRegs := make(map[*qicode.Cell]*register)

	for _, cell := range cells {
		s := b.seqs[cell]

		start, startKnown := startVal, startVar == nil
		if startVar != nil {
			if r, err := s.varRegister(startVar); err == nil && r.known {
				start, startKnown = r.value, true
			}
		}
		end := endVal
		endKnown := endVar == nil
		var endReg *register
		if endVar != nil {
			if endReg, err = s.varRegister(endVar); err != nil {
				return err
			}
			if endReg.known {
				end, endKnown = endReg.value, true
			}
		} else {
			if endReg, err = s.immediateToRegister(endVal, nil); err != nil {
				return err
			}
		}
		endRegs[cell] = endReg

		varReg, err := s.varRegister(c.Var)
		if err != nil {
			return err
		}
		s.registerForRange(varReg.addr, start, end, step, startKnown && endKnown)
		if startVar != nil {
			src, err := s.varRegister(startVar)
			if err != nil {
				return err
			}
			if err := s.mov(varReg, src); err != nil {
				return err
			}
		} else {
			if _, err := s.immediateToRegister(startVal, varReg); err != nil {
				return err
			}
		}

		cond := isa.CondGE
		if step < 0 {
			cond = isa.CondLE
		}
		branches[cell] = s.addBranch(cond, varReg, endReg)
		counters[cell] = s.size() - 1
		cyclesBefore[cell] = s.cycles.cycles - 1
	}

	if err := b.buildBody(c.Body, cells); err != nil {
		return err
	}
	if err := b.syncCells(cells); err != nil {
		return err
	}

	for _, cell := range cells {
		s := b.seqs[cell]
		varReg, err := s.varRegister(c.Var)
		if err != nil {
			return err
		}
		if err := s.calc(varReg, regOp(varReg), isa.AluAdd, immOp(step)); err != nil {
			return err
		}

		if exitToUnroll {
			// Leave the loop before the register path would play a one
			// cycle pulse; the peeled iteration behind the loop handles
			// it.
			one, err := s.immediateToRegister(1, nil)
			if err != nil {
				return err
			}
			exit := s.addBranch(isa.CondEQ, varReg, one)
			exit.SetOffset(2)
			s.releaseRegister(one)
		}

		s.addJump(int32(counters[cell] - s.size()))
		branches[cell].SetOffset(int32(s.size() - counters[cell]))

		endReg := endRegs[cell]
		if endReg.known {
			varReg.set(endReg.value)
		} else {
			varReg.known = false
		}
		if endVar == nil {
			s.releaseRegister(endReg)
		}

		entry := s.frStack[len(s.frStack)-1]
		entry.calcIterations()
		if entry.Iterations > 0 && s.cycles.valid {
			perIteration := s.cycles.cycles - cyclesBefore[cell]
			s.cycles.cycles = cyclesBefore[cell] + int64(entry.Iterations)*perIteration + 1
		} else {
			s.cycles.valid = false
		}
		s.exitForRange()
	}
	return nil
}

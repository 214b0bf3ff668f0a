package qicode

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/qic/internal/units"
)

// WalkCommands visits every command in the graph depth first, including
// the bodies of control flow commands.
func WalkCommands(cmds []Command, fn func(Command)) {
	for _, cmd := range cmds {
		fn(cmd)
		switch c := cmd.(type) {
		case *IfCommand:
			WalkCommands(c.Then, fn)
			WalkCommands(c.Else, fn)
		case *ForRangeCommand:
			WalkCommands(c.Body, fn)
		case *ParallelCommand:
			for _, branch := range c.Branches {
				WalkCommands(branch, fn)
			}
		}
	}
}

// commandExprs returns the expressions a command references directly.
func commandExprs(cmd Command) []Expr {
	switch c := cmd.(type) {
	case *PlayCommand:
		return []Expr{c.Pulse.Length}
	case *PlayReadoutCommand:
		return []Expr{c.Pulse.Length}
	case *WaitCommand:
		return []Expr{c.Duration}
	case *AssignCommand:
		return []Expr{c.Var, c.Value}
	case *StoreCommand:
		return []Expr{c.Var}
	case *RecordingCommand:
		if c.StateTo != nil {
			return []Expr{c.StateTo}
		}
	case *IfCommand:
		return []Expr{c.Cond.Left, c.Cond.Right}
	case *ForRangeCommand:
		return []Expr{c.Var, c.Start, c.End, c.Step}
	}
	return nil
}

// walkExpr visits an expression tree depth first.
func walkExpr(e Expr, fn func(Expr)) {
	if c, ok := e.(*Calc); ok {
		walkExpr(c.Left, fn)
		if c.Right != nil {
			walkExpr(c.Right, fn)
		}
	}
	fn(e)
}

// check runs the two type passes over a job: the fallback pass gives
// untyped constants their default interpretation, the post pass rejects
// anything still unknown and validates loop ranges.
func check(j *Job) error {
	var err error
	fail := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}

	// Fallback pass. Constants that no use has typed default to normal
	// integers, or to times when fractional.
	WalkCommands(j.Commands(), func(cmd Command) {
		for _, e := range commandExprs(cmd) {
			walkExpr(e, func(e Expr) {
				c, ok := e.(*Constant)
				if !ok || c.Type() != TypeUnknown {
					return
				}
				if c.isFloat {
					fail(c.ti.setType(TypeTime, "fallback for fractional constant"))
				} else {
					fail(c.ti.setType(TypeNormal, "fallback for integer constant"))
				}
			})
		}
	})
	if err != nil {
		return err
	}

	// Every expression must have a type now.
	WalkCommands(j.Commands(), func(cmd Command) {
		for _, e := range commandExprs(cmd) {
			walkExpr(e, func(e Expr) {
				if e.Type() == TypeUnknown {
					fail(&ProgramError{
						Code:    ErrCodeTypeUnknown,
						Subject: e.String(),
						Message: "could not infer type from any use",
					})
				}
			})
		}
	})
	for _, v := range j.vars {
		if v.Type() == TypeUnknown {
			fail(&ProgramError{
				Code:    ErrCodeTypeUnknown,
				Subject: v.String(),
				Message: "could not infer type from any use",
			})
		}
	}
	if err != nil {
		return err
	}

	WalkCommands(j.Commands(), func(cmd Command) {
		fr, ok := cmd.(*ForRangeCommand)
		if !ok {
			return
		}
		fail(checkForRange(fr))
	})
	if err != nil {
		return err
	}

	return simulateRecordings(j)
}

// checkForRange validates a loop after types are final. Time loops need
// non-negative bounds and a step that lands on whole cycles.
func checkForRange(fr *ForRangeCommand) error {
	startConst, startOk := fr.Start.(*Constant)
	endConst, endOk := fr.End.(*Constant)

	switch fr.Var.Type() {
	case TypeTime:
		if startOk && startConst.Float64() < 0 {
			return &ProgramError{
				Code:    ErrCodeInvalidRange,
				Subject: fr.Var.String(),
				Message: fmt.Sprintf("negative time start value %g", startConst.Float64()),
			}
		}
		if endOk && endConst.Float64() == 0 {
			slog.Warn("loop end value of 0 will not be included", "variable", fr.Var.String())
		}
		rem := math.Mod(fr.Step.Float64(), units.CycleTime)
		if round11(rem) != 0 && round11(rem) != round11(units.CycleTime) {
			return &ProgramError{
				Code:    ErrCodeInvalidRange,
				Subject: fr.Var.String(),
				Message: fmt.Sprintf("time step must be a multiple of %.3gns, off by %.3gns",
					units.CycleTime*1e9, rem*1e9),
			}
		}
	case TypeFrequency:
		if endOk && endConst.Float64() == 0 {
			slog.Warn("loop end value of 0 will not be included", "variable", fr.Var.String())
		}
	}
	return nil
}

// round11 rounds to 11 decimals, absorbing float modulo noise.
func round11(v float64) float64 {
	return math.Round(v*1e11) / 1e11
}

// Iterations returns how many times the loop body executes. Bounds and
// step convert to their machine representation first, so time loops
// count in cycles.
func (c *ForRangeCommand) Iterations() (int, error) {
	startConst, ok := c.Start.(*Constant)
	if !ok {
		return 0, fmt.Errorf("loop over %s has a variable start", c.Var)
	}
	endConst, ok := c.End.(*Constant)
	if !ok {
		return 0, fmt.Errorf("loop over %s has a variable end", c.Var)
	}
	start, err := startConst.Value()
	if err != nil {
		return 0, err
	}
	end, err := endConst.Value()
	if err != nil {
		return 0, err
	}
	step, err := c.Step.Value()
	if err != nil {
		return 0, err
	}
	if step == 0 {
		return 0, &ProgramError{Code: ErrCodeInvalidRange, Subject: c.Var.String(), Message: "step of zero cycles"}
	}
	n := int(math.Ceil(float64(end-start) / float64(step)))
	if n < 0 {
		n = 0
	}
	return n, nil
}

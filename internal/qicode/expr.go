package qicode

import (
	"fmt"
	"math"

	"github.com/roach88/qic/internal/units"
)

// Op is an arithmetic or logic operation in an expression.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpLsh
	OpRsh
	OpAnd
	OpOr
	OpXor
	OpNot
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpLsh:
		return "<<"
	case OpRsh:
		return ">>"
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpXor:
		return "^"
	case OpNot:
		return "~"
	}
	return "?"
}

// Cond is a comparison between two expressions.
type Cond int

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
)

func (c Cond) String() string {
	switch c {
	case CondEQ:
		return "=="
	case CondNE:
		return "!="
	case CondLT:
		return "<"
	case CondLE:
		return "<="
	case CondGT:
		return ">"
	case CondGE:
		return ">="
	}
	return "?"
}

// Invert returns the comparison matching the opposite outcome.
func (c Cond) Invert() Cond {
	switch c {
	case CondEQ:
		return CondNE
	case CondNE:
		return CondEQ
	case CondLT:
		return CondGE
	case CondLE:
		return CondGT
	case CondGT:
		return CondLE
	case CondGE:
		return CondLT
	}
	return c
}

// Expr is a value in the program: a variable, a constant, or a
// calculation over them.
type Expr interface {
	fmt.Stringer

	// Type returns the inferred type of the expression.
	Type() VarType

	// Variables adds every variable contained in the expression to the set.
	Variables(set *VarSet)

	info() *typeInfo
}

// Variable is a runtime value held in a sequencer register. Variables
// belong to the job that created them and are identified by their index
// in the job's arena.
type Variable struct {
	ID   int
	Name string

	// Static marks a variable that lives in the cell's static data
	// region instead of a register. Static variables keep their value
	// across program runs and start out as Init.
	Static bool
	Init   int32

	ti typeInfo
}

func (v *Variable) info() *typeInfo { return &v.ti }

// Type returns the inferred type of the variable.
func (v *Variable) Type() VarType { return v.ti.typ }

// Variables adds the variable itself to the set.
func (v *Variable) Variables(set *VarSet) { set.Add(v) }

func (v *Variable) String() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("v%d", v.ID)
}

// Constant is a compile-time known value. Integers can become normal,
// time or frequency values; the inference decides. Floats cannot be
// normal values, and only 0 and 1 can be states.
type Constant struct {
	given   float64
	isFloat bool
	ti      typeInfo
}

func newConstant(given float64, isFloat bool) *Constant {
	c := &Constant{given: given, isFloat: isFloat}
	c.ti.owner = c
	if isFloat || (given != 0 && given != 1) {
		_ = c.ti.addIllegal(TypeState, "state constants must be 0 or 1")
	}
	if isFloat {
		_ = c.ti.addIllegal(TypeNormal, "normal constants must be integers")
	}
	return c
}

// Int builds an untyped integer constant.
func Int(v int) *Constant {
	return newConstant(float64(v), false)
}

// Float builds an untyped fractional constant.
func Float(v float64) *Constant {
	if v == math.Trunc(v) {
		return newConstant(v, false)
	}
	return newConstant(v, true)
}

// Normal builds a constant that is fixed to the normal type.
func Normal(v int) *Constant {
	c := Int(v)
	_ = c.ti.setType(TypeNormal, "value definition")
	return c
}

// Time builds a constant duration in seconds.
func Time(seconds float64) *Constant {
	c := newConstant(seconds, seconds != math.Trunc(seconds))
	_ = c.ti.setType(TypeTime, "value definition")
	return c
}

// Frequency builds a constant frequency in Hz.
func Frequency(hz float64) *Constant {
	c := newConstant(hz, hz != math.Trunc(hz))
	_ = c.ti.setType(TypeFrequency, "value definition")
	return c
}

func (c *Constant) info() *typeInfo { return &c.ti }

// Type returns the inferred type of the constant.
func (c *Constant) Type() VarType { return c.ti.typ }

// Variables is a no-op for constants.
func (c *Constant) Variables(set *VarSet) {}

// Float64 returns the value as given, before device conversion.
func (c *Constant) Float64() float64 { return c.given }

// Value returns the machine representation of the constant. The
// sequencer has no floating point unit, so times become cycles and
// frequencies become NCO phase increments.
func (c *Constant) Value() (int32, error) {
	switch c.ti.typ {
	case TypeTime:
		return units.TimeToCycles(c.given, units.Ceil)
	case TypeFrequency:
		return units.FrequencyToNCO(c.given), nil
	case TypePhase:
		return int32(units.PhaseToRaw(c.given)), nil
	case TypeAmplitude:
		raw, err := units.AmplitudeToRaw(c.given, nil)
		return int32(raw), err
	default:
		return int32(c.given), nil
	}
}

func (c *Constant) String() string {
	return fmt.Sprintf("%g", c.given)
}

// Calc is a binary or unary calculation over expressions. For OpNot the
// right operand is nil.
type Calc struct {
	Op    Op
	Left  Expr
	Right Expr
	ti    typeInfo
}

func (c *Calc) info() *typeInfo { return &c.ti }

// Type returns the inferred type of the calculation.
func (c *Calc) Type() VarType { return c.ti.typ }

// Variables collects the variables of both operands.
func (c *Calc) Variables(set *VarSet) {
	c.Left.Variables(set)
	if c.Right != nil {
		c.Right.Variables(set)
	}
}

func (c *Calc) String() string {
	if c.Op == OpNot {
		return fmt.Sprintf("~(%s)", c.Left)
	}
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right)
}

// NewCalc builds a calculation and registers the type implications its
// operation carries. A time plus a time is a time; shift amounts are
// always normal; multiplying a time requires a normal scalar on the
// other side.
func NewCalc(op Op, left, right Expr) (*Calc, error) {
	c := &Calc{Op: op, Left: left, Right: right}
	c.ti.owner = c
	reason := fmt.Sprintf("use in %s", c)

	if op == OpNot {
		if err := addEqualConstraints(TypeNormal, reason, left, c); err != nil {
			return nil, err
		}
		if err := addEqualConstraints(TypeState, reason, left, c); err != nil {
			return nil, err
		}
		return c, nil
	}

	switch op {
	case OpAdd, OpSub, OpAnd, OpOr, OpXor:
		if err := addEqualConstraints(TypeNormal, reason, right, left, c); err != nil {
			return nil, err
		}
	}
	switch op {
	case OpAnd, OpOr, OpXor:
		if err := addEqualConstraints(TypeState, reason, right, left, c); err != nil {
			return nil, err
		}
	}
	if op == OpAdd {
		if err := addEqualConstraints(TypeTime, reason, right, left, c); err != nil {
			return nil, err
		}
		if err := addEqualConstraints(TypeFrequency, reason, right, left, c); err != nil {
			return nil, err
		}
	}
	if op == OpMul {
		for _, typ := range []VarType{TypeTime, TypeFrequency} {
			if err := addScalarMultiplication(typ, left, right, c, reason); err != nil {
				return nil, err
			}
		}
	}
	if op == OpLsh || op == OpRsh {
		if err := right.info().setType(TypeNormal, "shift amount"); err != nil {
			return nil, err
		}
		for _, typ := range []VarType{TypeNormal, TypeTime, TypeFrequency} {
			if err := addEqualConstraints(typ, reason, left, c); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// addScalarMultiplication wires the rules for multiplying a dimensioned
// value by a scalar: one side must stay normal and the result carries
// the dimension.
func addScalarMultiplication(typ VarType, lhs, rhs, res Expr, reason string) error {
	rules := []struct {
		premises   []premise
		conclusion premise
	}{
		{[]premise{{lhs, typ}}, premise{rhs, TypeNormal}},
		{[]premise{{lhs, typ}}, premise{res, typ}},
		{[]premise{{rhs, typ}}, premise{lhs, TypeNormal}},
		{[]premise{{rhs, typ}}, premise{res, typ}},
		{[]premise{{rhs, TypeNormal}, {lhs, TypeNormal}}, premise{res, TypeNormal}},
		{[]premise{{res, typ}, {lhs, TypeNormal}}, premise{rhs, typ}},
		{[]premise{{res, typ}, {rhs, TypeNormal}}, premise{lhs, typ}},
		{[]premise{{res, TypeNormal}}, premise{lhs, TypeNormal}},
		{[]premise{{res, TypeNormal}}, premise{rhs, TypeNormal}},
	}
	for _, r := range rules {
		if err := addConstraint(r.premises, r.conclusion, reason); err != nil {
			return err
		}
	}
	return nil
}

// Condition compares two expressions. Used by If commands and loop
// bounds.
type Condition struct {
	Op    Cond
	Left  Expr
	Right Expr
}

// NewCondition builds a comparison and ties the operand types together.
// Only equality comparisons are defined on states.
func NewCondition(op Cond, left, right Expr) (*Condition, error) {
	reason := fmt.Sprintf("use in comparison %s", op)
	if err := addEqualConstraints(TypeNormal, reason, left, right); err != nil {
		return nil, err
	}
	if err := addEqualConstraints(TypeTime, reason, left, right); err != nil {
		return nil, err
	}
	if op == CondEQ || op == CondNE {
		if err := addEqualConstraints(TypeState, reason, left, right); err != nil {
			return nil, err
		}
	}
	return &Condition{Op: op, Left: left, Right: right}, nil
}

func (c *Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

// VarSet is a set of variables keyed by identity.
type VarSet struct {
	vars []*Variable
	seen map[*Variable]bool
}

// Add inserts a variable, ignoring duplicates.
func (s *VarSet) Add(v *Variable) {
	if s.seen == nil {
		s.seen = make(map[*Variable]bool)
	}
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.vars = append(s.vars, v)
}

// Contains reports set membership.
func (s *VarSet) Contains(v *Variable) bool {
	return s.seen[v]
}

// Values returns the variables in insertion order.
func (s *VarSet) Values() []*Variable {
	return s.vars
}

// Len returns the number of variables in the set.
func (s *VarSet) Len() int {
	return len(s.vars)
}

package compiler

import (
	"github.com/roach88/qic/internal/isa"
)

// register is one sequencer register. The compiler simulates register
// contents so constant wait times can be derived from variables; known
// is false when no value was written yet and valid turns false when the
// value depends on a conditional branch.
type register struct {
	addr  int
	value int32
	known bool
	valid bool
}

// operand is either a register or a constant, already converted to its
// machine representation.
type operand struct {
	reg *register
	imm int32
}

func regOp(r *register) operand { return operand{reg: r} }
func immOp(v int32) operand     { return operand{imm: v} }

func (o operand) isReg() bool { return o.reg != nil }

func evalAlu(op isa.AluOp, a, b int32) int32 {
	switch op {
	case isa.AluAdd:
		return a + b
	case isa.AluSub:
		return a - b
	case isa.AluMul:
		return a * b
	case isa.AluLsh:
		return a << uint32(b)
	case isa.AluRsh:
		return a >> uint32(b)
	case isa.AluAnd:
		return a & b
	case isa.AluOr:
		return a | b
	case isa.AluXor:
		return a ^ b
	}
	return 0
}

// update tracks the result of an ALU operation in the destination
// register. Operands read from a register that holds no value poison
// the destination.
func (r *register) update(op isa.AluOp, a, b operand) {
	if r.addr == 0 {
		r.value, r.known = 0, true
		return
	}
	av, ak, avalid := a.imm, true, true
	if a.isReg() {
		av, ak, avalid = a.reg.value, a.reg.known, a.reg.valid
	}
	bv, bk, bvalid := b.imm, true, true
	if b.isReg() {
		bv, bk, bvalid = b.reg.value, b.reg.known, b.reg.valid
	}
	r.known = ak && bk
	r.valid = avalid && bvalid
	if r.known {
		r.value = evalAlu(op, av, bv)
	}
}

// set overwrites the simulated value with a known constant.
func (r *register) set(v int32) {
	if r.addr == 0 {
		v = 0
	}
	r.value, r.known, r.valid = v, true, true
}

// Package isa implements the sequencer's 32-bit instruction set: typed
// instruction values, bit-exact encoding, decoding, and disassembly.
//
// The instruction set is RISC-V shaped but not RISC-V. Branch and jump
// offsets count whole instructions rather than bytes, so their immediate
// scatter differs from the standard layouts, and several opcodes are
// custom extensions for triggering, waiting, and inter-cell signaling.
package isa

// Field widths of the instruction word.
const (
	OpcodeWidth   = 7
	Funct3Width   = 3
	Funct7Width   = 7
	RegisterWidth = 5
	LowerImmWidth = 12
	UpperImmWidth = 20
)

// Lower immediate bounds (12 bits, signed).
const (
	LowerImmMax = (1 << (LowerImmWidth - 1)) - 1
	LowerImmMin = -(1 << (LowerImmWidth - 1))
)

// Opcode identifies the instruction family in the low 7 bits of a word.
type Opcode uint32

const (
	OpJump        Opcode = 0b1101111
	OpBranch      Opcode = 0b1100011
	OpRegImm      Opcode = 0b0010011
	OpLoadUpper   Opcode = 0b0110111
	OpRegReg      Opcode = 0b0110011
	OpLoad        Opcode = 0b0000011
	OpStore       Opcode = 0b0100011
	OpSynch       Opcode = 0b0001000
	OpWaitImm     Opcode = 0b0000100
	OpWaitReg     Opcode = 0b0000110
	OpTrigWaitReg Opcode = 0b0001010
	OpTrigger     Opcode = 0b0000010
	OpCellSync    Opcode = 0b0001100
	OpRegSend     Opcode = 0b0001110
	OpRegReceive  Opcode = 0b0011100
)

// AluOp is an arithmetic or logic operation of the sequencer ALU.
type AluOp int

const (
	AluAdd AluOp = iota
	AluSub
	AluMul
	AluLsh
	AluRsh
	AluAnd
	AluOr
	AluXor
)

// Commutative reports whether operand order is irrelevant for the operation.
func (op AluOp) Commutative() bool {
	switch op {
	case AluAdd, AluMul, AluAnd, AluOr, AluXor:
		return true
	}
	return false
}

func (op AluOp) String() string {
	switch op {
	case AluAdd:
		return "+"
	case AluSub:
		return "-"
	case AluMul:
		return "*"
	case AluLsh:
		return "<<"
	case AluRsh:
		return ">>"
	case AluAnd:
		return "&"
	case AluOr:
		return "|"
	case AluXor:
		return "^"
	}
	return "?"
}

// Condition is a branch comparison. GT and LE have no hardware encoding;
// the branch constructor lowers them by swapping operands.
type Condition int

const (
	CondEQ Condition = iota
	CondNE
	CondLT
	CondGE
	CondGT
	CondLE
	CondLTU
	CondGEU
)

func (c Condition) String() string {
	switch c {
	case CondEQ:
		return "=="
	case CondNE:
		return "!="
	case CondLT:
		return "<"
	case CondGE:
		return ">="
	case CondGT:
		return ">"
	case CondLE:
		return "<="
	case CondLTU:
		return "<u"
	case CondGEU:
		return ">=u"
	}
	return "?"
}

// Invert returns the condition matching the opposite outcome.
func (c Condition) Invert() Condition {
	switch c {
	case CondEQ:
		return CondNE
	case CondNE:
		return CondEQ
	case CondLT:
		return CondGE
	case CondGE:
		return CondLT
	case CondGT:
		return CondLE
	case CondLE:
		return CondGT
	case CondLTU:
		return CondGEU
	case CondGEU:
		return CondLTU
	}
	return c
}

// funct3 values for register-immediate instructions.
const (
	functImmAdd uint32 = 0b000
	functImmSll uint32 = 0b001
	functMemW   uint32 = 0b010
	functImmXor uint32 = 0b100
	functImmSr  uint32 = 0b101
	functImmOr  uint32 = 0b110
	functImmAnd uint32 = 0b111
)

// funct7 values distinguishing the shift-right variants.
const (
	funct7Srl uint32 = 0b0000000
	funct7Sra uint32 = 0b0100000
)

// funct3 values for register-register instructions. ADD, SUB and MUL
// share one funct3 and are told apart by funct7.
const (
	functRegAddSubMul uint32 = 0b000
	functRegSllMulh   uint32 = 0b001
	functRegXor       uint32 = 0b100
	functRegSrlSra    uint32 = 0b101
	functRegOr        uint32 = 0b110
	functRegAnd       uint32 = 0b111
)

// funct7 values for register-register instructions.
const (
	funct7Add  uint32 = 0b0000000
	funct7Sub  uint32 = 0b0100000
	funct7Mul  uint32 = 0b0000001
	funct7Mulh uint32 = 0b0000001
)

// funct3 values for branch instructions.
const (
	functBeq  uint32 = 0b000
	functBne  uint32 = 0b001
	functBlt  uint32 = 0b100
	functBge  uint32 = 0b101
	functBltu uint32 = 0b110
	functBgeu uint32 = 0b111
)

// funct3 values for the SYNCH opcode family.
const (
	functSynchStart      uint32 = 0b000
	functSynchQubitState uint32 = 0b010
)

// funct3 values for register-send instructions.
const (
	functSendSingle uint32 = 0b000
	functSendMulti  uint32 = 0b001
)

// FitsLowerImmediate reports whether a value is encodable in the signed
// 12-bit lower immediate field.
func FitsLowerImmediate(v int32) bool {
	return v >= LowerImmMin && v <= LowerImmMax
}

func aluFunct3Imm(op AluOp) uint32 {
	switch op {
	case AluAdd:
		return functImmAdd
	case AluLsh:
		return functImmSll
	case AluXor:
		return functImmXor
	case AluRsh:
		return functImmSr
	case AluOr:
		return functImmOr
	case AluAnd:
		return functImmAnd
	}
	panic("isa: operation has no register-immediate encoding: " + op.String())
}

func aluFunct3Reg(op AluOp) uint32 {
	switch op {
	case AluAdd, AluSub, AluMul:
		return functRegAddSubMul
	case AluLsh:
		return functRegSllMulh
	case AluXor:
		return functRegXor
	case AluRsh:
		return functRegSrlSra
	case AluOr:
		return functRegOr
	case AluAnd:
		return functRegAnd
	}
	panic("isa: operation has no register-register encoding: " + op.String())
}

func aluFunct7Reg(op AluOp) uint32 {
	switch op {
	case AluSub, AluRsh:
		return funct7Sub
	case AluMul:
		return funct7Mul
	default:
		return funct7Add
	}
}

func branchFunct3(c Condition) uint32 {
	switch c {
	case CondEQ:
		return functBeq
	case CondNE:
		return functBne
	case CondLT, CondGT:
		return functBlt
	case CondGE, CondLE:
		return functBge
	case CondLTU:
		return functBltu
	case CondGEU:
		return functBgeu
	}
	panic("isa: unknown branch condition")
}

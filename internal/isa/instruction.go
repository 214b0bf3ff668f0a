package isa

import (
	"fmt"
)

// Instruction is one 32-bit sequencer word.
type Instruction interface {
	// Encode returns the binary instruction word.
	Encode() uint32

	// String returns the assembly form.
	String() string
}

// Bit positions shared by the encoders.
const (
	posRd     = OpcodeWidth
	posFunct3 = OpcodeWidth + RegisterWidth
	posRs1    = OpcodeWidth + RegisterWidth + Funct3Width
	posRs2    = OpcodeWidth + 2*RegisterWidth + Funct3Width
	posFunct7 = OpcodeWidth + 3*RegisterWidth + Funct3Width
	posUpper  = OpcodeWidth + RegisterWidth
)

// RegImm computes Rd = Rs <op> Imm. Only operations with an immediate form
// are accepted; subtraction is expressed as addition of a negated constant
// and multiplication has no immediate form at all.
type RegImm struct {
	Op  AluOp
	Rd  int
	Rs  int
	Imm int32
}

func (i RegImm) Encode() uint32 {
	w := uint32(OpRegImm)
	w |= uint32(i.Rd&0x1F) << posRd
	w |= aluFunct3Imm(i.Op) << posFunct3
	w |= uint32(i.Rs&0x1F) << posRs1
	w |= (uint32(i.Imm) & 0xFFF) << posRs2
	if aluFunct3Imm(i.Op) == functImmSr {
		w |= funct7Sra << posFunct7
	}
	return w
}

func (i RegImm) String() string {
	var name string
	switch aluFunct3Imm(i.Op) {
	case functImmSr:
		name = "sra"
	case functImmAdd:
		name = "addi"
	case functImmSll:
		name = "sll"
	case functImmXor:
		name = "xori"
	case functImmOr:
		name = "ori"
	default:
		name = "andi"
	}
	return fmt.Sprintf("%s r%d, r%d, %#x", name, i.Rd, i.Rs, uint32(i.Imm)&0xFFF)
}

// RegReg computes Rd = Rs1 <op> Rs2.
type RegReg struct {
	Op  AluOp
	Rd  int
	Rs1 int
	Rs2 int
}

func (i RegReg) Encode() uint32 {
	w := uint32(OpRegReg)
	w |= uint32(i.Rd&0x1F) << posRd
	w |= aluFunct3Reg(i.Op) << posFunct3
	w |= uint32(i.Rs1&0x1F) << posRs1
	w |= uint32(i.Rs2&0x1F) << posRs2
	w |= aluFunct7Reg(i.Op) << posFunct7
	return w
}

func (i RegReg) String() string {
	var name string
	switch i.Op {
	case AluAdd:
		name = "add"
	case AluSub:
		name = "sub"
	case AluMul:
		name = "mul"
	case AluLsh:
		name = "sll"
	case AluXor:
		name = "xor"
	case AluRsh:
		name = "sra"
	case AluOr:
		name = "or"
	default:
		name = "and"
	}
	return fmt.Sprintf("%s r%d, r%d, r%d", name, i.Rd, i.Rs1, i.Rs2)
}

// Lui loads the upper 20 bits of the immediate into Rd, zeroing the rest.
type Lui struct {
	Rd  int
	Imm uint32
}

func (i Lui) Encode() uint32 {
	w := uint32(OpLoadUpper)
	w |= uint32(i.Rd&0x1F) << posRd
	w |= ((i.Imm & 0xFFFFF000) >> 12) << posUpper
	return w
}

func (i Lui) String() string {
	return fmt.Sprintf("lui r%d, %d", i.Rd, i.Imm)
}

// Load reads the 32-bit word at Base+Offset into Rd. The hardware
// supports only word-sized memory accesses.
type Load struct {
	Rd     int
	Base   int
	Offset int32
}

func (i Load) Encode() uint32 {
	w := uint32(OpLoad)
	w |= uint32(i.Rd&0x1F) << posRd
	w |= functMemW << posFunct3
	w |= uint32(i.Base&0x1F) << posRs1
	w |= (uint32(i.Offset) & 0xFFF) << posRs2
	return w
}

func (i Load) String() string {
	return fmt.Sprintf("lw r%d, %d(r%d)", i.Rd, i.Offset, i.Base)
}

// Store writes register Src to the word at Base+Offset.
type Store struct {
	Src    int
	Base   int
	Offset int32
}

func (i Store) Encode() uint32 {
	w := uint32(OpStore)
	w |= (uint32(i.Offset) & 0x1F) << posRd
	w |= functMemW << posFunct3
	w |= uint32(i.Base&0x1F) << posRs1
	w |= uint32(i.Src&0x1F) << posRs2
	w |= ((uint32(i.Offset) & 0xFE0) >> 5) << posFunct7
	return w
}

func (i Store) String() string {
	return fmt.Sprintf("sw r%d, %d(r%d)", i.Src, i.Offset, i.Base)
}

// Branch jumps Offset instructions ahead when Rs1 <cond> Rs2 holds.
// Offsets count instructions, not bytes, so the immediate scatter is
// specific to this hardware.
type Branch struct {
	Cond   Condition
	Rs1    int
	Rs2    int
	Offset int32
}

// NewBranch builds a branch, lowering GT and LE by swapping the operands
// since the hardware only implements LT and GE.
func NewBranch(cond Condition, rs1, rs2 int, offset int32) *Branch {
	if cond == CondGT || cond == CondLE {
		rs1, rs2 = rs2, rs1
	}
	return &Branch{Cond: cond, Rs1: rs1, Rs2: rs2, Offset: offset}
}

// SetOffset patches the branch target after the body size is known.
func (i *Branch) SetOffset(offset int32) {
	i.Offset = offset
}

func (i *Branch) Encode() uint32 {
	imm := uint32(i.Offset)
	w := uint32(OpBranch)
	w |= ((imm & 0x400) >> 10) << OpcodeWidth
	w |= (imm & 0xF) << (OpcodeWidth + 1)
	w |= branchFunct3(i.Cond) << posFunct3
	w |= uint32(i.Rs1&0x1F) << posRs1
	w |= uint32(i.Rs2&0x1F) << posRs2
	w |= ((imm & 0x3F0) >> 4) << posFunct7
	w |= ((imm & 0x800) >> 11) << (posFunct7 + 6)
	return w
}

func (i *Branch) String() string {
	var name string
	switch branchFunct3(i.Cond) {
	case functBeq:
		name = "beq"
	case functBne:
		name = "bne"
	case functBlt:
		name = "blt"
	case functBge:
		name = "bge"
	case functBltu:
		name = "bltu"
	default:
		name = "bgeu"
	}
	return fmt.Sprintf("%s r%d, r%d, %#x", name, i.Rs1, i.Rs2, i.Offset)
}

// Jump unconditionally jumps Offset instructions relative to the current
// address. Like branches, offsets count instructions.
type Jump struct {
	Offset int32
}

func (i *Jump) Encode() uint32 {
	imm := uint32(i.Offset)
	w := uint32(OpJump)
	w |= ((imm & 0x7F800) >> 11) << (OpcodeWidth + RegisterWidth)
	w |= ((imm & 0x400) >> 10) << (OpcodeWidth + RegisterWidth + 8)
	w |= (imm & 0x3FF) << (OpcodeWidth + RegisterWidth + 9)
	w |= ((imm & 0x80000) >> 19) << (OpcodeWidth + RegisterWidth + 19)
	return w
}

// SetOffset patches the jump target after the body size is known.
func (i *Jump) SetOffset(offset int32) {
	i.Offset = offset
}

func (i *Jump) String() string {
	return fmt.Sprintf("j %#x", i.Offset)
}

// WaitImm halts the sequencer for Cycles clock cycles. Only the low
// 20 bits of the duration are encodable.
type WaitImm struct {
	Cycles uint32
}

func (i WaitImm) Encode() uint32 {
	w := uint32(OpWaitImm)
	w |= (i.Cycles & 0xFFFFF) << posUpper
	return w
}

func (i WaitImm) String() string {
	return fmt.Sprintf("wti %#x", i.Cycles&0xFFFFF)
}

// WaitReg halts the sequencer for the number of cycles held in Reg.
type WaitReg struct {
	Reg int
}

func (i WaitReg) Encode() uint32 {
	return uint32(OpWaitReg) | uint32(i.Reg&0x1F)<<posRd
}

func (i WaitReg) String() string {
	return fmt.Sprintf("wtr r%d, 0x0", i.Reg)
}

// TriggerWaitReg issues the pending trigger and then waits for the
// duration held in Reg.
type TriggerWaitReg struct {
	Reg int
}

func (i TriggerWaitReg) Encode() uint32 {
	return uint32(OpTrigWaitReg) | uint32(i.Reg&0x1F)<<posRd
}

func (i TriggerWaitReg) String() string {
	return fmt.Sprintf("twr r%d, 0x0", i.Reg)
}

// TriggerModules is the number of pulse generation modules addressed by
// one trigger word.
const TriggerModules = 6

// Trigger starts pulses on the cell's output modules. Modules 0 to 2
// take 4-bit pulse indices, modules 3 to 5 take 2-bit indices. The
// packing of modules 1 and 2 overlaps by two bits; the fields are OR-ed
// together exactly as the hardware decodes them.
type Trigger struct {
	raw     uint32
	Modules [TriggerModules]int
	Sync    bool
	Reset   bool
}

// NewTrigger packs the module pulse indices into a trigger word.
func NewTrigger(modules [TriggerModules]int, sync, reset bool) Trigger {
	var imm uint32
	if reset {
		imm |= 1 << 12
	}
	if sync {
		imm |= 1 << 14
	}
	imm |= uint32(modules[0]&0xF) << 16
	imm |= uint32(modules[1]&0xF) << 20
	imm |= uint32(modules[2]&0xF) << 22
	imm |= uint32(modules[3]&0x3) << 26
	imm |= uint32(modules[4]&0x3) << 28
	imm |= uint32(modules[5]&0x3) << 30
	return Trigger{raw: imm, Modules: modules, Sync: sync, Reset: reset}
}

func (i Trigger) Encode() uint32 {
	w := uint32(OpTrigger)
	w |= ((i.raw & 0xFFFFF000) >> 12) << posUpper
	return w
}

func (i Trigger) String() string {
	s := "tr "
	for n, m := range i.Modules {
		if n > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%#x", m)
	}
	return s
}

// CellSync blocks until every cell in the mask reaches its own sync
// instruction. Between 2 and 16 cells can take part.
type CellSync struct {
	raw   uint32
	Cells []int
}

// NewCellSync builds a synchronization barrier over the given cells.
func NewCellSync(cells []int) (CellSync, error) {
	if len(cells) < 2 || len(cells) > 16 {
		return CellSync{}, fmt.Errorf("cell sync over %d cells, need 2 to 16", len(cells))
	}
	var mask uint32
	for _, c := range cells {
		mask |= 1 << uint(c)
	}
	return CellSync{raw: mask << 16, Cells: append([]int(nil), cells...)}, nil
}

func (i CellSync) Encode() uint32 {
	w := uint32(OpCellSync)
	w |= ((i.raw & 0xFFFFF000) >> 12) << posUpper
	return w
}

func (i CellSync) String() string {
	return fmt.Sprintf("sync r0, %#x", i.raw&0xFFFFF000)
}

// RegSend transfers the value of SendReg to another cell. When SyncReg
// is nonzero the send also synchronizes against the cells that take part
// in the transfer.
type RegSend struct {
	SendReg  int
	SyncCell int
	SyncReg  int
}

func (i RegSend) Encode() uint32 {
	funct3 := functSendSingle
	if i.SyncReg != 0 {
		funct3 = functSendMulti
	}
	w := uint32(OpRegSend)
	w |= (uint32(i.SyncCell) & 0x1F) << posRd
	w |= funct3 << posFunct3
	w |= uint32(i.SendReg&0x1F) << posRs1
	w |= uint32(i.SyncReg&0x1F) << posRs2
	w |= ((uint32(i.SyncCell) & 0xFE0) >> 5) << posFunct7
	return w
}

func (i RegSend) String() string {
	return fmt.Sprintf("snd r%d, %d(r%d)", i.SyncReg, i.SyncCell, i.SendReg)
}

// RegReceive blocks until SenderCell transfers a register value, storing
// it into Rd. SyncCells lists additional cells participating in the
// barrier; the sender is always included.
type RegReceive struct {
	raw        uint32
	SenderCell int
	Rd         int
}

// NewRegReceive builds a receive instruction for a value sent by
// senderCell, synchronizing over syncCells as well.
func NewRegReceive(senderCell, rd int, syncCells []int) RegReceive {
	mask := uint32(1) << uint(senderCell)
	for _, c := range syncCells {
		mask |= 1 << uint(c)
	}
	imm := mask << 16
	imm |= uint32(senderCell) << 12
	return RegReceive{raw: imm, SenderCell: senderCell, Rd: rd}
}

func (i RegReceive) Encode() uint32 {
	w := uint32(OpRegReceive)
	w |= uint32(i.Rd&0x1F) << posRd
	w |= ((i.raw & 0xFFFFF000) >> 12) << posUpper
	return w
}

func (i RegReceive) String() string {
	return fmt.Sprintf("rcv r%d, %d", i.Rd, i.raw)
}

// End terminates the program and signals completion to the cell.
type End struct{}

func (End) Encode() uint32 {
	return uint32(OpSynch)
}

func (End) String() string {
	return "end"
}

// AwaitQubitState blocks until the state result for the given cell is
// available and stores it into Rd.
type AwaitQubitState struct {
	Cell int
	Rd   int
}

func (i AwaitQubitState) Encode() uint32 {
	w := uint32(OpSynch)
	w |= uint32(i.Rd&0x1F) << posRd
	w |= functSynchQubitState << posFunct3
	w |= (uint32(i.Cell) & 0xFFF) << posRs2
	return w
}

func (i AwaitQubitState) String() string {
	return fmt.Sprintf("wtq r%d, %d", i.Rd, i.Cell)
}

package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchEncoding(t *testing.T) {
	inst := NewBranch(CondEQ, 1, 2, 3)
	assert.Equal(t, uint32(0b0000000_00010_00001_000_00110_1100011), inst.Encode())
}

func TestBranchOperandSwap(t *testing.T) {
	// GT and LE have no hardware encoding; the operands swap and the
	// word matches the LT respectively GE form.
	gt := NewBranch(CondGT, 1, 2, 3)
	lt := NewBranch(CondLT, 2, 1, 3)
	assert.Equal(t, lt.Encode(), gt.Encode())

	le := NewBranch(CondLE, 1, 2, 3)
	ge := NewBranch(CondGE, 2, 1, 3)
	assert.Equal(t, ge.Encode(), le.Encode())
}

func TestJumpEncoding(t *testing.T) {
	inst := &Jump{Offset: 3}
	assert.Equal(t, uint32(0b0_0000000011_0_00000000_00000_1101111), inst.Encode())
}

func TestNegativeJumpEncoding(t *testing.T) {
	inst := &Jump{Offset: -3}
	assert.Equal(t, uint32(0b1_1111111101_1_11111111_00000_1101111), inst.Encode())
}

func TestRegRegEncoding(t *testing.T) {
	inst := RegReg{Op: AluAnd, Rd: 1, Rs1: 2, Rs2: 3}
	assert.Equal(t, uint32(0b0000000_00011_00010_111_00001_0110011), inst.Encode())
}

func TestRegImmShiftRightEncoding(t *testing.T) {
	inst := RegImm{Op: AluRsh, Rd: 1, Rs: 2, Imm: 3}
	assert.Equal(t, uint32(0b0100000_00011_00010_101_00001_0010011), inst.Encode())
}

func TestLuiEncoding(t *testing.T) {
	inst := Lui{Rd: 1, Imm: 0xF0F0F0F0}
	assert.Equal(t, uint32(0b11110000111100001111_00001_0110111), inst.Encode())
}

func TestWaitImmEncoding(t *testing.T) {
	inst := WaitImm{Cycles: 0xF0F0F0F0}
	assert.Equal(t, uint32(0b00001111000011110000_00000_0000100), inst.Encode())
}

func TestTriggerEncoding(t *testing.T) {
	inst := NewTrigger([TriggerModules]int{5, 0, 4, 2, 1, 3}, false, false)
	assert.Equal(t, uint32(0b11_01_10_0100_00_0101_00_0000000_0000010), inst.Encode())
}

func TestEndEncoding(t *testing.T) {
	assert.Equal(t, uint32(0b0000000_00000_00000_000_00000_0001000), End{}.Encode())
}

func TestAwaitQubitStateEncoding(t *testing.T) {
	inst := AwaitQubitState{Cell: 3, Rd: 2}
	assert.Equal(t, uint32(0b000000000011_00000_010_00010_0001000), inst.Encode())
}

func TestNegativeImmediateMasked(t *testing.T) {
	inst := RegImm{Op: AluAdd, Rd: 1, Rs: 1, Imm: -1}
	// The 12-bit field holds the two's complement pattern.
	assert.Equal(t, uint32(0b111111111111_00001_000_00001_0010011), inst.Encode())
}

func TestAssemblyStrings(t *testing.T) {
	cases := []struct {
		inst Instruction
		want string
	}{
		{RegReg{Op: AluAnd, Rd: 1, Rs1: 2, Rs2: 3}, "and r1, r2, r3"},
		{RegReg{Op: AluSub, Rd: 4, Rs1: 5, Rs2: 6}, "sub r4, r5, r6"},
		{RegImm{Op: AluAdd, Rd: 1, Rs: 2, Imm: 10}, "addi r1, r2, 0xa"},
		{RegImm{Op: AluRsh, Rd: 1, Rs: 2, Imm: 3}, "sra r1, r2, 0x3"},
		{Lui{Rd: 1, Imm: 0x12345000}, "lui r1, 305418240"},
		{Load{Rd: 5, Base: 2, Offset: 3}, "lw r5, 3(r2)"},
		{Store{Src: 5, Base: 2, Offset: 3}, "sw r5, 3(r2)"},
		{NewBranch(CondEQ, 1, 2, 3), "beq r1, r2, 0x3"},
		{&Jump{Offset: -3}, "j -0x3"},
		{WaitImm{Cycles: 0xF0F0}, "wti 0xf0f0"},
		{End{}, "end"},
		{AwaitQubitState{Cell: 3, Rd: 2}, "wtq r2, 3"},
		{NewTrigger([TriggerModules]int{5, 0, 4, 2, 1, 3}, false, false), "tr 0x5, 0x0, 0x4, 0x2, 0x1, 0x3"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.inst.String())
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	sync, err := NewCellSync([]int{0, 1, 3})
	require.NoError(t, err)

	insts := []Instruction{
		RegImm{Op: AluAdd, Rd: 1, Rs: 2, Imm: -5},
		RegImm{Op: AluRsh, Rd: 1, Rs: 2, Imm: 3},
		RegReg{Op: AluMul, Rd: 3, Rs1: 4, Rs2: 5},
		RegReg{Op: AluSub, Rd: 3, Rs1: 4, Rs2: 5},
		RegReg{Op: AluAdd, Rd: 3, Rs1: 4, Rs2: 5},
		Lui{Rd: 7, Imm: 0xABCDE000},
		Load{Rd: 5, Base: 2, Offset: -7},
		Store{Src: 5, Base: 2, Offset: 42},
		NewBranch(CondGEU, 1, 2, -12),
		&Jump{Offset: -100},
		WaitImm{Cycles: 250},
		WaitReg{Reg: 9},
		TriggerWaitReg{Reg: 10},
		NewTrigger([TriggerModules]int{1, 2, 3, 0, 1, 2}, true, false),
		sync,
		RegSend{SendReg: 3, SyncCell: 1, SyncReg: 2},
		NewRegReceive(2, 4, []int{0}),
		End{},
		AwaitQubitState{Cell: 7, Rd: 1},
	}
	for _, inst := range insts {
		word := inst.Encode()
		decoded, err := Decode(word)
		require.NoError(t, err, "decode %s", inst)
		assert.Equal(t, word, decoded.Encode(), "round trip %s", inst)
		assert.Equal(t, inst.String(), decoded.String(), "string %s", inst)
	}
}

func TestDecodeAmbiguousMul(t *testing.T) {
	// ADD, SUB and MUL share funct3 000; funct7 disambiguates and the
	// listing preserves the device's resolution order.
	mul := RegReg{Op: AluMul, Rd: 1, Rs1: 2, Rs2: 3}
	decoded, err := Decode(mul.Encode())
	require.NoError(t, err)
	assert.Equal(t, "mul r1, r2, r3", decoded.String())
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := Decode(0b1111111)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestCellSyncRange(t *testing.T) {
	_, err := NewCellSync([]int{0})
	assert.Error(t, err)

	_, err = NewCellSync([]int{0, 1})
	assert.NoError(t, err)
}

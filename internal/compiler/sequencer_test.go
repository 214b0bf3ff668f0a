package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qic/internal/isa"
)

func listing(s *Sequencer) string { return isa.Listing(s.Instructions()) }

func TestRegisterAllocationOrder(t *testing.T) {
	s := NewSequencer(0)

	first, err := s.requestRegister()
	require.NoError(t, err)
	assert.Equal(t, 1, first.addr)

	second, err := s.requestRegister()
	require.NoError(t, err)
	assert.Equal(t, 2, second.addr)

	s.releaseRegister(first)
	again, err := s.requestRegister()
	require.NoError(t, err)
	assert.Equal(t, 1, again.addr)
}

func TestRegisterExhaustion(t *testing.T) {
	s := NewSequencer(0)
	for i := 0; i < AvailableRegisters; i++ {
		_, err := s.requestRegister()
		require.NoError(t, err)
	}
	_, err := s.requestRegister()
	require.Error(t, err)
	assert.True(t, IsRegisterExhausted(err))
}

func TestImmediateToRegister(t *testing.T) {
	s := NewSequencer(0)

	r, err := s.immediateToRegister(0, nil)
	require.NoError(t, err)
	assert.Same(t, s.reg0, r)
	assert.Empty(t, s.Instructions())

	r, err = s.immediateToRegister(100, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.addr)
	assert.Equal(t, "addi r1, r0, 0x64", s.Instructions()[0].String())
	assert.Equal(t, int32(100), r.value)
	assert.True(t, r.known)
}

func TestImmediateToRegisterLarge(t *testing.T) {
	s := NewSequencer(0)
	r, err := s.immediateToRegister(0x12345678, nil)
	require.NoError(t, err)
	require.Len(t, s.Instructions(), 2)
	assert.Equal(t, "lui r1, 305418240", s.Instructions()[0].String())
	assert.Equal(t, "addi r1, r1, 0x678", s.Instructions()[1].String())
	assert.Equal(t, int32(0x12345678), r.value)
}

func TestImmediateToRegisterSignCompensation(t *testing.T) {
	// The low 12 bits are sign extended by the ADDI, so the upper part
	// must over-shoot by one page.
	s := NewSequencer(0)
	_, err := s.immediateToRegister(0x1800, nil)
	require.NoError(t, err)
	require.Len(t, s.Instructions(), 2)
	assert.Equal(t, "lui r1, 8192", s.Instructions()[0].String())
	assert.Equal(t, "addi r1, r1, 0x800", s.Instructions()[1].String())
}

func TestCalcSubtractConstant(t *testing.T) {
	s := NewSequencer(0)
	a, err := s.immediateToRegister(10, nil)
	require.NoError(t, err)
	dst, err := s.requestRegister()
	require.NoError(t, err)

	require.NoError(t, s.calc(dst, regOp(a), isa.AluSub, immOp(3)))
	last := s.Instructions()[len(s.Instructions())-1]
	assert.Equal(t, "addi r2, r1, 0xffd", last.String())
	assert.Equal(t, int32(7), dst.value)
}

func TestCalcCommutativeSwap(t *testing.T) {
	s := NewSequencer(0)
	b, err := s.immediateToRegister(4, nil)
	require.NoError(t, err)
	dst, err := s.requestRegister()
	require.NoError(t, err)

	// 3 + r1 becomes r1 + 3.
	require.NoError(t, s.calc(dst, immOp(3), isa.AluAdd, regOp(b)))
	last := s.Instructions()[len(s.Instructions())-1]
	assert.Equal(t, "addi r2, r1, 0x3", last.String())
	assert.Equal(t, int32(7), dst.value)
}

func TestCalcMultiplyNeverImmediate(t *testing.T) {
	s := NewSequencer(0)
	a, err := s.immediateToRegister(6, nil)
	require.NoError(t, err)
	dst, err := s.requestRegister()
	require.NoError(t, err)

	before := s.cycles.cycles
	require.NoError(t, s.calc(dst, regOp(a), isa.AluMul, immOp(7)))
	out := listing(s)
	assert.Contains(t, out, "addi r3, r0, 0x7")
	assert.Contains(t, out, "mul r2, r1, r3")
	assert.Equal(t, int32(42), dst.value)
	// Loading the constant takes one cycle, the multiplication six.
	assert.Equal(t, before+7, s.cycles.cycles)
}

func TestWaitImmediate(t *testing.T) {
	s := NewSequencer(0)
	require.NoError(t, s.waitCycles(25))
	require.Len(t, s.Instructions(), 1)
	assert.Equal(t, "wti 0x19", s.Instructions()[0].String())
	assert.Equal(t, int64(25), s.cycles.cycles)
}

func TestWaitThroughRegister(t *testing.T) {
	s := NewSequencer(0)
	require.NoError(t, s.waitCycles(1<<20))
	out := listing(s)
	assert.Contains(t, out, "lui r1, 1048576")
	assert.Contains(t, out, "addi r1, r1, 0xffe")
	assert.Contains(t, out, "wtr r1, 0x0")
	// The register is free again afterwards.
	r, err := s.requestRegister()
	require.NoError(t, err)
	assert.Equal(t, 1, r.addr)
}

func TestWaitBelowRegisterThreshold(t *testing.T) {
	s := NewSequencer(0)
	require.NoError(t, s.waitCycles(1<<20-1))
	require.Len(t, s.Instructions(), 1)
	assert.Equal(t, "wti 0xfffff", s.Instructions()[0].String())
}

func TestWaitOutOfRange(t *testing.T) {
	s := NewSequencer(0)
	err := s.waitCycles(int64(1) << 32)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeImmediateRange, ce.Code)
}

func TestChokeBeforeNextInstruction(t *testing.T) {
	s := NewSequencer(0)
	s.add(isa.NewTrigger([isa.TriggerModules]int{0, 0, 1, 0, 0, 0}, false, false), 1, true)
	s.trigger.markActive(modManipulation)

	require.NoError(t, s.waitCycles(5))
	require.Len(t, s.Instructions(), 3)
	assert.Equal(t, "tr 0x0, 0x0, 0xe, 0x0, 0x0, 0x0", s.Instructions()[1].String())
	assert.Equal(t, "wti 0x5", s.Instructions()[2].String())
}

func TestStaticRegionCapacity(t *testing.T) {
	s := NewSequencer(0)
	for i := 0; i < MaxStaticWords; i++ {
		_, err := s.allocStatic(0)
		require.NoError(t, err)
	}
	_, err := s.allocStatic(0)
	require.Error(t, err)
	assert.True(t, IsCapacityError(err))
}

func TestStaticLoadStoreSequence(t *testing.T) {
	s := NewSequencer(0)
	slot, err := s.allocStatic(7)
	require.NoError(t, err)

	value, addr, err := s.loadStatic(slot)
	require.NoError(t, err)
	assert.Equal(t, 2, value.addr)
	assert.Equal(t, 1, addr.addr)

	require.NoError(t, s.storeStatic(slot, value))
	s.releaseRegister(value)
	s.releaseRegister(addr)

	out := listing(s)
	want := []string{
		"lui r1, 2147483648",
		"addi r1, r1, 0x400",
		"lw r2, 0(r1)",
		"lui r3, 2147483648",
		"addi r3, r3, 0x400",
		"sw r2, 0(r3)",
	}
	for _, line := range want {
		assert.Contains(t, out, line)
	}
	assert.Equal(t, []int32{7}, s.StaticRegion())
}

func TestLoopIterations(t *testing.T) {
	cases := []struct {
		start, end, step int32
		want             int
	}{
		{0, 6, 1, 6},
		{0, 5, 1, 5},
		{0, 5, 2, 3},
		{2, 6, 1, 4},
		{5, 0, -1, 5},
		{6, 1, -2, 3},
		{3, 3, 1, 0},
		{5, 0, 1, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, loopIterations(c.start, c.end, c.step),
			"start=%d end=%d step=%d", c.start, c.end, c.step)
	}
}

func TestUninitializedWaitRegister(t *testing.T) {
	s := NewSequencer(0)
	r, err := s.requestRegister()
	require.NoError(t, err)
	r.known = false

	err = s.waitRegister(r)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "r1"))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeUninitialized, ce.Code)
}

func TestDoubleReleasePanics(t *testing.T) {
	s := NewSequencer(0)
	r, err := s.requestRegister()
	require.NoError(t, err)
	s.releaseRegister(r)
	assert.Panics(t, func() { s.releaseRegister(r) })
}

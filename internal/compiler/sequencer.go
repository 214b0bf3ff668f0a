package compiler

import (
	"fmt"

	"github.com/roach88/qic/internal/isa"
	"github.com/roach88/qic/internal/qicode"
	"github.com/roach88/qic/internal/units"
)

// Sequencer capacity and instruction timing.
const (
	// AvailableRegisters is the number of general purpose registers.
	// Register 0 is hardwired to zero and not counted.
	AvailableRegisters = 31

	// MaxProgramWords is the size of the sequencer program memory.
	MaxProgramWords = 4096

	// MaxStaticWords is the size of the static data region.
	MaxStaticWords = 4095

	// ChokePulseIndex stops a running pulse generator early.
	ChokePulseIndex = qicode.ChokePulseIndex

	multiplicationCycles  = 6
	jumpCycles            = 2
	loadStoreCycles       = 8
	recordingDelayCycles  = 1
	maxWaitCycles         = int64(1) << 32
	maxImmediateWaitCount = int64(1) << 20
)

// StaticBase is the bus address of the first static data word.
const StaticBase uint32 = 0x80000400

// ForRangeEntry records one lowered loop: the register driving it, its
// bounds in machine units, and where in the program it ends. The
// entries describe the sweep dimensions of the finished program.
type ForRangeEntry struct {
	Reg        int
	Start      int32
	End        int32
	Step       int32
	StartKnown bool
	Iterations int
	EndAddr    int
	Contained  []*ForRangeEntry
}

func (e *ForRangeEntry) calcIterations() {
	if !e.StartKnown {
		e.Iterations = 0
		return
	}
	e.Iterations = loopIterations(e.Start, e.End, e.Step)
}

func loopIterations(start, end, step int32) int {
	if step == 0 {
		return 0
	}
	diff := int64(end) - int64(start)
	s := int64(step)
	n := (diff + s - 1) / s
	if s < 0 {
		n = (diff + s + 1) / s
	}
	if n < 0 {
		return 0
	}
	return int(n)
}

// programCycles counts clock cycles since the last synchronization
// point. Conditional branches and runtime-length waits make the count
// unusable; valid turns false then.
type programCycles struct {
	cycles    int64
	valid     bool
	syncPoint int
}

func (p *programCycles) add(cycles int64, valid bool) {
	if !valid {
		p.valid = false
	}
	p.cycles += cycles
}

func (p *programCycles) synchronize(token int) {
	p.syncPoint = token
	p.cycles = 0
	p.valid = true
}

// Sequencer generates the instruction stream for one cell. It owns the
// register file, the static data region and the trigger bookkeeping of
// that cell.
type Sequencer struct {
	CellIndex int

	instrs  []isa.Instruction
	cycles  programCycles
	stack   []*register
	reg0    *register
	varRegs map[*qicode.Variable]*register
	trigger triggerState

	staticRegion []int32
	staticSlots  map[*qicode.Variable]int
	staticBoxes  map[string]int

	forRanges []*ForRangeEntry
	frStack   []*ForRangeEntry
}

// NewSequencer creates a sequencer for the cell with the given
// controller index.
func NewSequencer(cellIndex int) *Sequencer {
	s := &Sequencer{CellIndex: cellIndex}
	s.Reset()
	return s
}

// Reset discards all generated state.
func (s *Sequencer) Reset() {
	s.instrs = nil
	s.cycles = programCycles{valid: true}
	s.reg0 = &register{addr: 0, known: true, valid: true}
	s.stack = s.stack[:0]
	for x := AvailableRegisters; x >= 1; x-- {
		s.stack = append(s.stack, &register{addr: x, valid: true})
	}
	s.varRegs = make(map[*qicode.Variable]*register)
	s.trigger.reset()
	s.staticRegion = nil
	s.staticSlots = make(map[*qicode.Variable]int)
	s.staticBoxes = make(map[string]int)
	s.forRanges = nil
	s.frStack = nil
}

// Instructions returns the generated program.
func (s *Sequencer) Instructions() []isa.Instruction { return s.instrs }

// Words encodes the program into memory words.
func (s *Sequencer) Words() []uint32 {
	words := make([]uint32, len(s.instrs))
	for i, in := range s.instrs {
		words[i] = in.Encode()
	}
	return words
}

// StaticRegion returns the initial contents of the static data region.
func (s *Sequencer) StaticRegion() []int32 { return s.staticRegion }

// ForRanges returns the top level loop entries of the program.
func (s *Sequencer) ForRanges() []*ForRangeEntry { return s.forRanges }

func (s *Sequencer) size() int { return len(s.instrs) }

func (s *Sequencer) errf(code ErrorCode, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Cell: s.CellIndex, Message: fmt.Sprintf(format, args...)}
}

// requestRegister takes a free register off the stack.
func (s *Sequencer) requestRegister() (*register, error) {
	if len(s.stack) == 0 {
		return nil, s.errf(ErrCodeRegisterExhausted, "no free registers left")
	}
	r := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return r, nil
}

// releaseRegister returns a register to the stack. Releasing register 0
// does nothing.
func (s *Sequencer) releaseRegister(r *register) {
	if r == nil || r.addr == 0 {
		return
	}
	for _, f := range s.stack {
		if f == r {
			panic(fmt.Sprintf("register r%d released twice", r.addr))
		}
	}
	r.valid = true
	s.stack = append(s.stack, r)
}

// addVariable reserves a register for a variable. Named variables can
// be written externally, so their simulated value starts unknown.
func (s *Sequencer) addVariable(v *qicode.Variable) error {
	r, err := s.requestRegister()
	if err != nil {
		return err
	}
	s.varRegs[v] = r
	r.known = false
	return nil
}

func (s *Sequencer) releaseVariable(v *qicode.Variable) {
	if r, ok := s.varRegs[v]; ok {
		s.releaseRegister(r)
		delete(s.varRegs, v)
	}
}

func (s *Sequencer) varRegister(v *qicode.Variable) (*register, error) {
	r, ok := s.varRegs[v]
	if !ok {
		return nil, s.errf(ErrCodeUnsupported, "variable %s has no register on this cell", v)
	}
	return r, nil
}

// add appends an instruction. If a pulse generator is still running it
// is choked first, because any instruction other than a retrigger would
// let the pulse run past its end.
func (s *Sequencer) add(in isa.Instruction, lengthCycles int64, lengthValid bool) {
	if s.trigger.pulseActive() {
		s.chokePulses()
	}
	if lengthCycles <= 0 {
		lengthCycles = 1
	}
	s.instrs = append(s.instrs, in)
	s.cycles.add(lengthCycles, lengthValid)
}

func (s *Sequencer) chokePulses() {
	v := s.trigger.values(nil, nil, nil, nil)
	s.instrs = append(s.instrs, isa.NewTrigger(v, false, false))
	s.cycles.add(1, true)
}

// endOfCommandBody chokes pulses still running when a command body
// closes.
func (s *Sequencer) endOfCommandBody() {
	if s.trigger.pulseActive() {
		s.chokePulses()
	}
}

// upperImmediate compensates for the sign extension the ADDI performs
// on the lower 12 bits: the sign extended lower part is subtracted from
// the value before the upper 20 bits are extracted.
func upperImmediate(v int32) uint32 {
	lower := v & 0xFFF
	if v&0x800 != 0 {
		lower = v | ^int32(0xFFF)
	}
	return uint32(v-lower) & 0xFFFFF000
}

// immediateToRegister loads a constant into dst. When dst is nil a
// fresh register is taken; a zero constant without explicit destination
// resolves to register 0.
func (s *Sequencer) immediateToRegister(v int32, dst *register) (*register, error) {
	if v == 0 && dst == nil {
		return s.reg0, nil
	}
	if dst == nil {
		var err error
		if dst, err = s.requestRegister(); err != nil {
			return nil, err
		}
	}
	if isa.FitsLowerImmediate(v) {
		s.add(isa.RegImm{Op: isa.AluAdd, Rd: dst.addr, Rs: 0, Imm: v}, 1, true)
	} else {
		s.add(isa.Lui{Rd: dst.addr, Imm: upperImmediate(v)}, 1, true)
		s.add(isa.RegImm{Op: isa.AluAdd, Rd: dst.addr, Rs: dst.addr, Imm: v & 0xFFF}, 1, true)
	}
	dst.set(v)
	return dst, nil
}

// calc lowers one ALU operation. Constants that fit the immediate field
// are encoded directly; larger ones go through a scratch register.
// Multiplications have no immediate form and take longer.
func (s *Sequencer) calc(dst *register, a operand, op isa.AluOp, b operand) error {
	if !a.isReg() && !b.isReg() {
		return s.errf(ErrCodeUnsupported, "calculation without any register operand")
	}
	cycles := int64(1)
	if op == isa.AluMul {
		cycles = multiplicationCycles
	}
	switch {
	case op == isa.AluSub && a.isReg() && !b.isReg() && isa.FitsLowerImmediate(-b.imm):
		// Immediates only support addition; subtract by adding the
		// negated constant.
		s.add(isa.RegImm{Op: isa.AluAdd, Rd: dst.addr, Rs: a.reg.addr, Imm: -b.imm}, cycles, true)
	case op.Commutative() && !a.isReg():
		return s.calc(dst, b, op, a)
	case !a.isReg():
		tmp, err := s.immediateToRegister(a.imm, nil)
		if err != nil {
			return err
		}
		s.add(isa.RegReg{Op: op, Rd: dst.addr, Rs1: tmp.addr, Rs2: b.reg.addr}, cycles, true)
		s.releaseRegister(tmp)
	case b.isReg():
		s.add(isa.RegReg{Op: op, Rd: dst.addr, Rs1: a.reg.addr, Rs2: b.reg.addr}, cycles, true)
	case op != isa.AluMul && isa.FitsLowerImmediate(b.imm):
		s.add(isa.RegImm{Op: op, Rd: dst.addr, Rs: a.reg.addr, Imm: b.imm}, cycles, true)
	default:
		tmp, err := s.immediateToRegister(b.imm, nil)
		if err != nil {
			return err
		}
		s.add(isa.RegReg{Op: op, Rd: dst.addr, Rs1: a.reg.addr, Rs2: tmp.addr}, cycles, true)
		s.releaseRegister(tmp)
	}
	dst.update(op, a, b)
	return nil
}

// mov copies src into dst.
func (s *Sequencer) mov(dst, src *register) error {
	return s.calc(dst, regOp(src), isa.AluAdd, immOp(0))
}

// addBranch appends a conditional branch; the offset is patched later.
func (s *Sequencer) addBranch(cond isa.Condition, r1, r2 *register) *isa.Branch {
	br := isa.NewBranch(cond, r1.addr, r2.addr, 0)
	s.add(br, 1, true)
	return br
}

// addJump appends an unconditional jump.
func (s *Sequencer) addJump(offset int32) *isa.Jump {
	j := &isa.Jump{Offset: offset}
	s.add(j, jumpCycles, true)
	return j
}

// waitCycles idles for a constant number of cycles. Durations beyond
// the immediate field go through a register.
func (s *Sequencer) waitCycles(cycles int64) error {
	if cycles < 0 || cycles >= maxWaitCycles {
		return s.errf(ErrCodeImmediateRange, "wait of %d cycles out of range", cycles)
	}
	if cycles < maxImmediateWaitCount {
		s.add(isa.WaitImm{Cycles: uint32(cycles)}, cycles, true)
		return nil
	}
	// Loading the duration takes two cycles, shorten the wait by them.
	r, err := s.immediateToRegister(int32(uint32(cycles-2)), nil)
	if err != nil {
		return err
	}
	s.add(isa.WaitReg{Reg: r.addr}, cycles-2, true)
	s.releaseRegister(r)
	return nil
}

// waitRegister idles for the duration held in r. The simulated value of
// the register keeps the cycle count usable when it is known.
func (s *Sequencer) waitRegister(r *register) error {
	if !r.known {
		return s.errf(ErrCodeUninitialized, "wait on register r%d before it holds a value", r.addr)
	}
	s.add(isa.WaitReg{Reg: r.addr}, int64(r.value), r.valid)
	return nil
}

// triggerLength returns the wait the trigger word needs: the longest of
// the participating pulses, or the register of a runtime length.
func (s *Sequencer) triggerLength(manipulation, readout, external *triggerPulse, rec *qicode.RecordingCommand, recordingDelay bool) (*register, int64, error) {
	var variable *qicode.Variable
	for _, p := range []*triggerPulse{manipulation, readout, external} {
		if p == nil || p.varLength == nil {
			continue
		}
		if variable != nil && variable != p.varLength {
			return nil, 0, s.errf(ErrCodeUnsupported, "concurrent pulses with different runtime lengths")
		}
		variable = p.varLength
	}
	if variable != nil {
		r, err := s.varRegister(variable)
		return r, 0, err
	}
	wait := 0.0
	for _, p := range []*triggerPulse{manipulation, readout, external} {
		if p != nil && p.length > wait {
			wait = p.length
		}
	}
	if rec != nil {
		length := rec.Length
		if recordingDelay {
			length += units.CyclesToTime(recordingDelayCycles)
		}
		if length > wait {
			wait = length
		}
	}
	cycles, err := units.TimeToCycles(wait, units.Ceil)
	return nil, int64(cycles), err
}

// addTriggerCmd emits one trigger word for the given pulses and the
// wait covering their duration. Pulses with runtime length leave their
// module running; a later instruction chokes it.
func (s *Sequencer) addTriggerCmd(manipulation, readout *triggerPulse, rec *qicode.RecordingCommand, external *triggerPulse, recordingDelay, varSingleCycle bool) error {
	values := s.trigger.values(readout, rec, manipulation, external)
	s.add(isa.NewTrigger(values, false, false), 1, true)

	lengthReg, cycles, err := s.triggerLength(manipulation, readout, external, rec, recordingDelay)
	if err != nil {
		return err
	}
	if lengthReg != nil || varSingleCycle {
		if !varSingleCycle {
			if !lengthReg.known {
				return s.errf(ErrCodeUninitialized, "pulse length register r%d holds no value", lengthReg.addr)
			}
			s.add(isa.TriggerWaitReg{Reg: lengthReg.addr}, int64(lengthReg.value)-1, lengthReg.valid)
		}
		s.trigger.setActive(readout != nil, manipulation != nil)
		_, err := s.checkRecordingState(rec)
		return err
	}
	if cycles > 1 {
		saved, err := s.checkRecordingState(rec)
		if err != nil {
			return err
		}
		if !saved {
			// The trigger word itself takes one cycle.
			return s.waitCycles(cycles - 1)
		}
	}
	return nil
}

// checkRecordingState waits for the discriminated qubit state when the
// recording saves into a state variable. The wait has no fixed length,
// so the cycle count turns invalid.
func (s *Sequencer) checkRecordingState(rec *qicode.RecordingCommand) (bool, error) {
	if rec == nil || rec.StateTo == nil {
		return false, nil
	}
	r, err := s.varRegister(rec.StateTo)
	if err != nil {
		return false, err
	}
	s.add(isa.AwaitQubitState{Cell: s.CellIndex, Rd: r.addr}, 1, true)
	s.cycles.valid = false
	r.known = false
	return true, nil
}

// addNcoSync resets the oscillator phases of all modules at program
// start.
func (s *Sequencer) addNcoSync(delay float64) error {
	s.add(isa.NewTrigger([isa.TriggerModules]int{}, true, false), 1, true)
	cycles, err := units.TimeToCycles(delay, units.Ceil)
	if err != nil {
		return err
	}
	if cycles > 1 {
		return s.waitCycles(int64(cycles) - 1)
	}
	return nil
}

// normaliseBaseOffset prepares a base register and offset for a memory
// access. Absolute addresses beyond the immediate range are loaded into
// a scratch register which the caller must release.
func (s *Sequencer) normaliseBaseOffset(base *register, offset int32) (*register, int32, bool, error) {
	if base == nil {
		if isa.FitsLowerImmediate(offset) {
			return s.reg0, offset, false, nil
		}
		r, err := s.requestRegister()
		if err != nil {
			return nil, 0, false, err
		}
		if _, err := s.immediateToRegister(offset, r); err != nil {
			return nil, 0, false, err
		}
		return r, 0, true, nil
	}
	if !isa.FitsLowerImmediate(offset) {
		return nil, 0, false, s.errf(ErrCodeImmediateRange, "memory offset %d does not fit the immediate field", offset)
	}
	return base, offset, false, nil
}

func (s *Sequencer) addLoad(dst *register, base *register, offset int32) error {
	b, off, free, err := s.normaliseBaseOffset(base, offset)
	if err != nil {
		return err
	}
	s.add(isa.Load{Rd: dst.addr, Base: b.addr, Offset: off}, loadStoreCycles, true)
	dst.known = false
	if free {
		s.releaseRegister(b)
	}
	return nil
}

func (s *Sequencer) addStore(src *register, base *register, offset int32) error {
	b, off, free, err := s.normaliseBaseOffset(base, offset)
	if err != nil {
		return err
	}
	s.add(isa.Store{Src: src.addr, Base: b.addr, Offset: off}, loadStoreCycles, true)
	if free {
		s.releaseRegister(b)
	}
	return nil
}

// allocStatic reserves one word of the static data region.
func (s *Sequencer) allocStatic(init int32) (int, error) {
	if len(s.staticRegion) >= MaxStaticWords {
		return 0, s.errf(ErrCodeCapacityExceeded, "static data region full, %d words used", len(s.staticRegion))
	}
	s.staticRegion = append(s.staticRegion, init)
	return len(s.staticRegion) - 1, nil
}

func (s *Sequencer) staticVarSlot(v *qicode.Variable) (int, error) {
	if slot, ok := s.staticSlots[v]; ok {
		return slot, nil
	}
	slot, err := s.allocStatic(v.Init)
	if err != nil {
		return 0, err
	}
	s.staticSlots[v] = slot
	return slot, nil
}

func (s *Sequencer) staticBoxSlot(name string) (int, error) {
	if slot, ok := s.staticBoxes[name]; ok {
		return slot, nil
	}
	slot, err := s.allocStatic(0)
	if err != nil {
		return 0, err
	}
	s.staticBoxes[name] = slot
	return slot, nil
}

func staticAddress(slot int) int32 {
	return int32(StaticBase + 4*uint32(slot))
}

// loadStatic reads one static data word into a fresh register. The
// returned address register stays live until the caller releases it so
// the value and address registers keep distinct numbers.
func (s *Sequencer) loadStatic(slot int) (value, addr *register, err error) {
	addr, err = s.requestRegister()
	if err != nil {
		return nil, nil, err
	}
	if _, err = s.immediateToRegister(staticAddress(slot), addr); err != nil {
		return nil, nil, err
	}
	value, err = s.requestRegister()
	if err != nil {
		return nil, nil, err
	}
	if err = s.addLoad(value, addr, 0); err != nil {
		return nil, nil, err
	}
	return value, addr, nil
}

// storeStatic writes a register into one static data word.
func (s *Sequencer) storeStatic(slot int, src *register) error {
	addr, err := s.requestRegister()
	if err != nil {
		return err
	}
	if _, err := s.immediateToRegister(staticAddress(slot), addr); err != nil {
		return err
	}
	if err := s.addStore(src, addr, 0); err != nil {
		return err
	}
	s.releaseRegister(addr)
	return nil
}

// registerForRange opens a loop entry; nested loops accumulate under
// their parent.
func (s *Sequencer) registerForRange(reg int, start, end, step int32, startKnown bool) {
	e := &ForRangeEntry{Reg: reg, Start: start, End: end, Step: step, StartKnown: startKnown}
	if len(s.frStack) == 0 {
		s.forRanges = append(s.forRanges, e)
	} else {
		parent := s.frStack[len(s.frStack)-1]
		parent.Contained = append(parent.Contained, e)
	}
	s.frStack = append(s.frStack, e)
}

// exitForRange closes the innermost open loop entry.
func (s *Sequencer) exitForRange() {
	e := s.frStack[len(s.frStack)-1]
	s.frStack = s.frStack[:len(s.frStack)-1]
	e.EndAddr = s.size() - 1
	e.calcIterations()
}

// endOfProgram terminates the instruction stream.
func (s *Sequencer) endOfProgram() {
	s.add(isa.End{}, 1, true)
}

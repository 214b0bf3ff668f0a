package compiler

import (
	"github.com/roach88/qic/internal/isa"
	"github.com/roach88/qic/internal/qicode"
)

// Module positions inside a trigger word.
const (
	modReadout      = 0
	modRecording    = 1
	modManipulation = 2
	modExternal     = 3
)

// Recording trigger values.
const (
	recTriggerNone    = 0
	recTriggerSingle  = 1
	recTriggerOneShot = 2
)

// triggerPulse is one pulse start latched into a trigger word. When
// varLength is set the pulse duration is decided at runtime by that
// variable.
type triggerPulse struct {
	index     int
	length    float64
	varLength *qicode.Variable
}

// triggerState tracks which pulse generation modules are still playing.
// A module left running must be choked before the next instruction that
// does not retrigger it.
type triggerState struct {
	active [4]bool
}

func (t *triggerState) reset() {
	t.active = [4]bool{}
}

func (t *triggerState) pulseActive() bool {
	return t.active[0] || t.active[1] || t.active[2] || t.active[3]
}

func (t *triggerState) markActive(module int) {
	t.active[module] = true
}

func (t *triggerState) setActive(readout, manipulation bool) {
	t.active[modReadout] = readout
	t.active[modRecording] = false
	t.active[modManipulation] = manipulation
	t.active[modExternal] = false
}

func pulseValue(p *triggerPulse, active bool) int {
	if p == nil {
		if active {
			return ChokePulseIndex
		}
		return 0
	}
	return p.index
}

func recordingValue(rec *qicode.RecordingCommand) int {
	if rec == nil {
		return recTriggerNone
	}
	if rec.SaveTo == nil {
		return recTriggerOneShot
	}
	return recTriggerSingle
}

// values builds the module indices for a trigger word. Modules that
// are running but get no new pulse receive the choke index. All modules
// count as idle afterwards.
func (t *triggerState) values(readout *triggerPulse, rec *qicode.RecordingCommand, manipulation, external *triggerPulse) [isa.TriggerModules]int {
	var v [isa.TriggerModules]int
	v[modReadout] = pulseValue(readout, t.active[modReadout])
	v[modRecording] = recordingValue(rec)
	v[modManipulation] = pulseValue(manipulation, t.active[modManipulation])
	v[modExternal] = pulseValue(external, t.active[modExternal])
	t.reset()
	return v
}

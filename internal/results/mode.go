package results

import "fmt"

// Mode selects how raw device buffers become result data. The built-in
// modes form a closed set; experiment-specific processing registers a
// handler under a custom mode instead of patching the dispatch.
type Mode int

const (
	// ModeAverage stores accumulated I/Q values divided by the shot
	// count.
	ModeAverage Mode = iota

	// ModeAmplitudePhase converts averaged I/Q into amplitude and
	// phase.
	ModeAmplitudePhase

	// ModeIQCloud keeps every shot as a point in the I/Q plane.
	ModeIQCloud

	// ModeRaw stores the recorded sample blocks untouched.
	ModeRaw

	// ModeStates stores the discriminated qubit state of every shot.
	ModeStates

	// ModeCounts stores occurrence counts per joint state of all
	// recorded cells.
	ModeCounts

	// ModeQuantumJumps stores the per-shot state stream of each cell.
	ModeQuantumJumps

	// ModeCustomBase is the first mode value free for registered
	// handlers.
	ModeCustomBase
)

var modeNames = map[Mode]string{
	ModeAverage:        "average",
	ModeAmplitudePhase: "amp_pha",
	ModeIQCloud:        "iqcloud",
	ModeRaw:            "raw",
	ModeStates:         "states",
	ModeCounts:         "counts",
	ModeQuantumJumps:   "quantum_jumps",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("custom(%d)", int(m))
}

// ParseMode maps a configuration name to its built-in mode.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, &Error{Code: ErrCodeUnknownMode, Message: fmt.Sprintf("unknown data collection mode %q", name)}
}

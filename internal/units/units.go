// Package units holds the digital unit's timing constants and the
// conversions between physical quantities and the raw values the
// hardware registers expect.
package units

import (
	"fmt"
	"log/slog"
	"math"
)

// Controller timing. The sequencer runs at 250 MHz, so one cycle is 4 ns,
// and the analog frontend produces four samples per cycle.
const (
	ClockFrequencyHz = 250e6
	CycleTime        = 1.0 / ClockFrequencyHz
	SamplesPerCycle  = 4
)

// RoundingMode selects how fractional cycle counts are resolved.
type RoundingMode int

const (
	// Round resolves to the nearest whole cycle.
	Round RoundingMode = iota
	// Ceil resolves upward, never shortening a duration.
	Ceil
)

// ConversionError reports a value that cannot be represented on the device.
type ConversionError struct {
	Quantity string
	Value    float64
	Message  string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Quantity, e.Value, e.Message)
}

// TimeToCycles converts a duration in seconds to sequencer cycles.
func TimeToCycles(seconds float64, mode RoundingMode) (int32, error) {
	if seconds < 0 {
		return 0, &ConversionError{Quantity: "time", Value: seconds, Message: "negative duration"}
	}
	cycles := seconds * ClockFrequencyHz
	switch mode {
	case Ceil:
		cycles = math.Ceil(cycles - 1e-9)
	default:
		cycles = math.Round(cycles)
	}
	if cycles > math.MaxInt32 {
		return 0, &ConversionError{Quantity: "time", Value: seconds, Message: "exceeds the 32-bit cycle counter"}
	}
	return int32(cycles), nil
}

// CyclesToTime converts a cycle count back to seconds.
func CyclesToTime(cycles int32) float64 {
	return float64(cycles) * CycleTime
}

// TimeToSamples converts a duration to analog sample counts.
func TimeToSamples(seconds float64, mode RoundingMode) (int32, error) {
	cycles, err := TimeToCycles(seconds, mode)
	if err != nil {
		return 0, err
	}
	if cycles > math.MaxInt32/SamplesPerCycle {
		return 0, &ConversionError{Quantity: "time", Value: seconds, Message: "exceeds the 32-bit sample counter"}
	}
	return cycles * SamplesPerCycle, nil
}

// FrequencyToNCO converts a frequency in Hz to the NCO phase increment.
// The NCO accumulator is 30 bits wide over the controller clock.
func FrequencyToNCO(hz float64) int32 {
	return int32(math.Round(hz * (1 << 30) / ClockFrequencyHz))
}

// NCOToFrequency inverts FrequencyToNCO.
func NCOToFrequency(raw int32) float64 {
	return float64(raw) * ClockFrequencyHz / (1 << 30)
}

// PhaseToRaw converts a phase in radians to the 16-bit register value.
// The phase is wrapped into [0, 2pi) before quantization.
func PhaseToRaw(rad float64) uint32 {
	wrapped := math.Mod(rad, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return uint32(math.Round(wrapped*(1<<16)/(2*math.Pi))) & 0xFFFF
}

// RawToPhase inverts PhaseToRaw.
func RawToPhase(raw uint32) float64 {
	return float64(raw&0xFFFF) * 2 * math.Pi / (1 << 16)
}

// AmplitudeToRaw converts a unit-interval amplitude to the 16-bit DAC scale.
// A nonzero amplitude that quantizes to zero is logged as a warning since
// the resulting pulse is silent.
func AmplitudeToRaw(a float64, logger *slog.Logger) (uint32, error) {
	if a < 0 || a > 1 {
		return 0, &ConversionError{Quantity: "amplitude", Value: a, Message: "outside [0, 1]"}
	}
	raw := uint32(math.Round(a * ((1 << 16) - 1)))
	if raw == 0 && a > 0 {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("amplitude quantizes to zero", "amplitude", a)
	}
	return raw, nil
}

// RawToAmplitude inverts AmplitudeToRaw.
func RawToAmplitude(raw uint32) float64 {
	return float64(raw) / ((1 << 16) - 1)
}

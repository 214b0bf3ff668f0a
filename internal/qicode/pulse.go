package qicode

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/qic/internal/units"
)

// Shape is the envelope of a pulse, defined over the unit interval.
type Shape int

const (
	ShapeRect Shape = iota
	ShapeGauss
	ShapeRamp
	ShapeSquareFn
	ShapeLeftSphere
	ShapeRightSphere
	ShapeGaussUp
	ShapeGaussDown
)

func (s Shape) String() string {
	switch s {
	case ShapeRect:
		return "rect"
	case ShapeGauss:
		return "gauss"
	case ShapeRamp:
		return "ramp"
	case ShapeSquareFn:
		return "sqrfct"
	case ShapeLeftSphere:
		return "l_sphere"
	case ShapeRightSphere:
		return "r_sphere"
	case ShapeGaussUp:
		return "gauss_up"
	case ShapeGaussDown:
		return "gauss_down"
	}
	return "unknown"
}

// Envelope evaluates the shape at x in [0, 1). Outside the interval the
// envelope is zero.
func (s Shape) Envelope(x float64) float64 {
	if x < 0 || x >= 1 {
		return 0
	}
	switch s {
	case ShapeRect:
		return 1
	case ShapeGauss:
		return math.Exp(-0.5 * math.Pow((x-0.5)/0.166, 2))
	case ShapeRamp:
		return x
	case ShapeSquareFn:
		return x * x
	case ShapeLeftSphere:
		return math.Sqrt(1 - x*x)
	case ShapeRightSphere:
		return math.Sqrt(1 - (x-1)*(x-1))
	case ShapeGaussUp:
		return math.Exp(-0.5 * math.Pow((x-1)/2/0.166, 2))
	case ShapeGaussDown:
		return math.Exp(-0.5 * math.Pow(x/2/0.166, 2))
	}
	return 0
}

// PulseMode selects how a pulse plays out.
type PulseMode int

const (
	// PulseNormal plays the envelope once for the pulse length.
	PulseNormal PulseMode = iota
	// PulseCW plays continuously until another pulse replaces it.
	PulseCW
	// PulseOff silences a continuous pulse.
	PulseOff
)

// Pulse describes one analog pulse. The length is either a constant
// duration or a variable; variable lengths are only supported for
// rectangular pulses since other envelopes would need resampling at
// runtime.
type Pulse struct {
	Length    Expr
	Shape     Shape
	Amplitude float64
	Phase     float64
	Frequency float64
	Mode      PulseMode

	// HasFrequency distinguishes an explicit 0 Hz from no frequency.
	HasFrequency bool
}

// NewPulse builds a pulse with a fixed length in seconds.
func NewPulse(length float64, shape Shape, amplitude, phase float64) (*Pulse, error) {
	p := &Pulse{Length: Time(length), Shape: shape, Amplitude: amplitude, Phase: phase}
	return p, p.validate()
}

// NewVariablePulse builds a pulse whose length is decided at runtime.
func NewVariablePulse(length *Variable, shape Shape, amplitude, phase float64) (*Pulse, error) {
	if shape != ShapeRect {
		return nil, &ProgramError{
			Code:    ErrCodeInvalidPulse,
			Subject: shape.String(),
			Message: "variable pulse lengths are only supported for rectangular pulses",
		}
	}
	if err := length.info().setType(TypeTime, "pulse length"); err != nil {
		return nil, err
	}
	p := &Pulse{Length: length, Shape: shape, Amplitude: amplitude, Phase: phase}
	return p, p.validate()
}

// CW returns a continuous wave pulse.
func CW(amplitude, phase, frequency float64) *Pulse {
	return &Pulse{
		Length:       Time(0),
		Shape:        ShapeRect,
		Amplitude:    amplitude,
		Phase:        phase,
		Frequency:    frequency,
		HasFrequency: true,
		Mode:         PulseCW,
	}
}

// Off returns the pulse that ends a continuous wave.
func Off() *Pulse {
	return &Pulse{Length: Time(0), Shape: ShapeRect, Mode: PulseOff}
}

// WithFrequency returns a copy of the pulse with the given frequency.
func (p *Pulse) WithFrequency(hz float64) *Pulse {
	q := *p
	q.Frequency = hz
	q.HasFrequency = true
	return &q
}

func (p *Pulse) validate() error {
	if p.Amplitude < 0 || p.Amplitude > 1 {
		return &ProgramError{
			Code:    ErrCodeInvalidPulse,
			Message: fmt.Sprintf("amplitude %g outside [0, 1]", p.Amplitude),
		}
	}
	if c, ok := p.Length.(*Constant); ok && p.Mode == PulseNormal {
		cycles, err := units.TimeToCycles(c.Float64(), units.Ceil)
		if err != nil {
			return &ProgramError{Code: ErrCodeInvalidPulse, Message: err.Error()}
		}
		if cycles == 0 && c.Float64() > 0 {
			slog.Warn("pulse shorter than one cycle", "length", c.Float64())
		}
	}
	return nil
}

// VariableLength reports whether the pulse length is decided at runtime.
func (p *Pulse) VariableLength() bool {
	_, isVar := p.Length.(*Variable)
	return isVar
}

// Samples renders the pulse envelope at the given sample rate. Variable
// length pulses render a single period of the envelope; the hardware
// holds them until another trigger ends the pulse.
func (p *Pulse) Samples(sampleRate float64) []float64 {
	var length float64
	if c, ok := p.Length.(*Constant); ok {
		length = c.Float64()
	}
	if p.Mode == PulseOff || length <= 0 {
		return nil
	}
	n := int(math.Round(length * sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = p.Amplitude * p.Shape.Envelope(float64(i)/float64(n))
	}
	return out
}

// Equal reports whether two pulses would produce the same analog output.
func (p *Pulse) Equal(o *Pulse) bool {
	if p.Mode != o.Mode || p.Shape != o.Shape ||
		p.Amplitude != o.Amplitude || p.Phase != o.Phase ||
		p.Frequency != o.Frequency || p.HasFrequency != o.HasFrequency {
		return false
	}
	pc, pok := p.Length.(*Constant)
	oc, ook := o.Length.(*Constant)
	if pok != ook {
		return false
	}
	if pok {
		return pc.Float64() == oc.Float64()
	}
	return p.Length == o.Length
}

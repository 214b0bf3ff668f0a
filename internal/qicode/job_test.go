package qicode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rectPulse(t *testing.T, length float64) *Pulse {
	t.Helper()
	p, err := NewPulse(length, ShapeRect, 1.0, 0)
	require.NoError(t, err)
	return p
}

func TestLoopIterations(t *testing.T) {
	job := NewJob()
	cells := job.Cells(1)
	v := job.TimeVariable("t")

	job.ForRange(v, Time(0), Time(24e-9), Time(4e-9), func(b *Block) {
		b.Wait(cells[0], v)
	})
	require.NoError(t, job.Check())

	fr, ok := job.Commands()[0].(*ForRangeCommand)
	require.True(t, ok)
	n, err := fr.Iterations()
	require.NoError(t, err)
	// range(0, 6, 1) in cycles.
	assert.Equal(t, 6, n)
}

func TestLoopIterationsPartialStep(t *testing.T) {
	job := NewJob()
	v := job.NormalVariable("i")
	job.ForRange(v, Int(0), Int(10), Int(3), func(b *Block) {})
	require.NoError(t, job.Check())

	fr := job.Commands()[0].(*ForRangeCommand)
	n, err := fr.Iterations()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestLoopDirectionValidation(t *testing.T) {
	job := NewJob()
	v := job.NormalVariable("i")
	job.ForRange(v, Int(10), Int(0), Int(1), func(b *Block) {})
	err := job.Check()
	require.Error(t, err)
	assert.True(t, IsRangeError(err))
}

func TestTimeStepMustMatchCycleTime(t *testing.T) {
	job := NewJob()
	cells := job.Cells(1)
	v := job.TimeVariable("t")
	job.ForRange(v, Time(0), Time(24e-9), Time(3e-9), func(b *Block) {
		b.Wait(cells[0], v)
	})
	err := job.Check()
	require.Error(t, err)
	assert.True(t, IsRangeError(err))
}

func TestNegativeTimeStartRejected(t *testing.T) {
	job := NewJob()
	v := job.TimeVariable("t")
	job.ForRange(v, Time(-4e-9), Time(24e-9), Time(4e-9), func(b *Block) {})
	err := job.Check()
	require.Error(t, err)
	assert.True(t, IsRangeError(err))
}

func TestTypeInferenceFromUse(t *testing.T) {
	job := NewJob()
	cells := job.Cells(1)
	v := job.Variable("t")

	// Waiting on the variable implies it is a time.
	job.Wait(cells[0], v)
	require.NoError(t, job.Check())
	assert.Equal(t, TypeTime, v.Type())
}

func TestTypeConflictRejected(t *testing.T) {
	job := NewJob()
	cells := job.Cells(1)
	v := job.StateVariable("s")

	// A state cannot be a wait duration.
	job.Wait(cells[0], v)
	err := job.Check()
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestUnknownTypeRejected(t *testing.T) {
	job := NewJob()
	v := job.Variable("tmp")
	w := job.Variable("tmp2")

	// Assigning one untyped variable to another infers nothing.
	job.Assign(v, w)
	err := job.Check()
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestAssignmentPropagatesTypes(t *testing.T) {
	job := NewJob()
	v := job.Variable("x")

	job.Assign(v, Int(5))
	require.NoError(t, job.Check())
	assert.Equal(t, TypeNormal, v.Type())
}

func TestCalcPropagatesTime(t *testing.T) {
	job := NewJob()
	cells := job.Cells(1)
	v := job.Variable("x")
	sum, err := NewCalc(OpAdd, v, Time(8e-9))
	require.NoError(t, err)

	job.Wait(cells[0], sum)
	require.NoError(t, job.Check())
	assert.Equal(t, TypeTime, v.Type())
}

func TestScalarMultiplication(t *testing.T) {
	job := NewJob()
	cells := job.Cells(1)
	n := job.NormalVariable("n")
	product, err := NewCalc(OpMul, n, Time(4e-9))
	require.NoError(t, err)

	job.Wait(cells[0], product)
	require.NoError(t, job.Check())
	assert.Equal(t, TypeTime, product.Type())
	assert.Equal(t, TypeNormal, n.Type())
}

func TestTimePlusTimeStaysTime(t *testing.T) {
	sum, err := NewCalc(OpAdd, Time(4e-9), Time(8e-9))
	require.NoError(t, err)
	assert.Equal(t, TypeTime, sum.Type())
}

func TestTimeTimesTimeRejected(t *testing.T) {
	_, err := NewCalc(OpMul, Time(4e-9), Time(8e-9))
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestFloatConstantCannotBeNormal(t *testing.T) {
	job := NewJob()
	v := job.NormalVariable("n")
	job.Assign(v, Float(1.5))
	err := job.Check()
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestStateConstantRange(t *testing.T) {
	job := NewJob()
	s := job.StateVariable("s")
	job.Assign(s, Int(2))
	err := job.Check()
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestFreshJobsShareNothing(t *testing.T) {
	a := NewJob()
	b := NewJob()
	ca := a.Cells(1)[0]
	cb := b.Cells(1)[0]

	a.Play(ca, rectPulse(t, 48e-9))
	assert.Len(t, ca.Pulses(), 1)
	assert.Empty(t, cb.Pulses())
	assert.Empty(t, b.Commands())
}

func TestIdenticalPulsesShareTriggerIndex(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	p := rectPulse(t, 48e-9)

	job.Play(c, p)
	job.Play(c, rectPulse(t, 48e-9))
	require.NoError(t, job.Check())

	first := job.Commands()[0].(*PlayCommand)
	second := job.Commands()[1].(*PlayCommand)
	assert.Equal(t, first.TriggerIndex, second.TriggerIndex)
	assert.Len(t, c.Pulses(), 1)
}

func TestReadoutWithoutFrequencyRejected(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	job.PlayReadout(c, rectPulse(t, 400e-9))
	err := job.Check()
	require.Error(t, err)
	assert.True(t, IsPulseError(err))
}

func TestVariablePulseLengthOnlyRect(t *testing.T) {
	job := NewJob()
	v := job.TimeVariable("len")
	_, err := NewVariablePulse(v, ShapeGauss, 1.0, 0)
	require.Error(t, err)
	assert.True(t, IsPulseError(err))

	_, err = NewVariablePulse(v, ShapeRect, 1.0, 0)
	assert.NoError(t, err)
}

func TestParallelRestrictedToPulses(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	v := job.NormalVariable("n")
	job.Parallel(func(b *Block) {
		b.Assign(v, Int(1))
	}, func(b *Block) {
		b.Play(c, rectPulse(t, 48e-9))
	})
	assert.Error(t, job.Check())
}

func TestRecordingStateTarget(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	v := job.Variable("state")
	job.Record(c, 400e-9, "result", v)
	require.NoError(t, job.Check())
	assert.Equal(t, TypeState, v.Type())
	assert.Equal(t, 1, c.Recordings())
	assert.NotNil(t, c.ResultBox("result"))
}

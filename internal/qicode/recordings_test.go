package qicode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckExpandsLoopRecordings(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	v := job.NormalVariable("n")
	job.ForRange(v, Int(0), Int(5), Int(1), func(b *Block) {
		b.Record(c, 400e-9, "sweep", nil)
	})
	require.NoError(t, job.Check())

	assert.Equal(t, 5, c.Recordings())
	order := c.RecordingOrder()
	require.Len(t, order, 5)
	for _, box := range order {
		assert.Same(t, c.ResultBox("sweep"), box)
	}
}

func TestCheckExpandsNestedLoopRecordings(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	outer := job.NormalVariable("i")
	inner := job.NormalVariable("j")
	job.ForRange(outer, Int(0), Int(3), Int(1), func(b *Block) {
		b.ForRange(inner, Int(0), Int(2), Int(1), func(b *Block) {
			b.Record(c, 400e-9, "grid", nil)
		})
	})
	require.NoError(t, job.Check())
	assert.Equal(t, 6, c.Recordings())
}

func TestCheckRecordingOrderStableAcrossChecks(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	v := job.NormalVariable("n")
	job.ForRange(v, Int(0), Int(4), Int(1), func(b *Block) {
		b.Record(c, 400e-9, "sweep", nil)
	})
	require.NoError(t, job.Check())
	require.NoError(t, job.Check())
	assert.Equal(t, 4, c.Recordings())
	assert.Len(t, c.RecordingOrder(), 4)
}

func TestCheckRejectsRecordingInConditional(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	v := job.NormalVariable("n")
	cond, err := NewCondition(CondEQ, v, Int(1))
	require.NoError(t, err)
	job.Assign(v, Int(1))
	job.If(cond, func(b *Block) {
		b.Record(c, 400e-9, "maybe", nil)
	})

	err = job.Check()
	require.Error(t, err)
	var pe *ProgramError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidRecording, pe.Code)
}

func TestCheckRejectsRecordingInElseBranch(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	v := job.NormalVariable("n")
	cond, err := NewCondition(CondEQ, v, Int(1))
	require.NoError(t, err)
	job.Assign(v, Int(1))
	job.IfElse(cond, func(b *Block) {
		b.WaitSeconds(c, 1e-6)
	}, func(b *Block) {
		b.Record(c, 400e-9, "maybe", nil)
	})

	err = job.Check()
	require.Error(t, err)
	var pe *ProgramError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidRecording, pe.Code)
}

func TestCheckRejectsRecordingInVariableBoundLoop(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	v := job.NormalVariable("n")
	end := job.NormalVariable("end")
	job.Assign(end, Int(5))
	job.ForRange(v, Int(0), end, Int(1), func(b *Block) {
		b.Record(c, 400e-9, "sweep", nil)
	})

	err := job.Check()
	require.Error(t, err)
	var pe *ProgramError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidRecording, pe.Code)
}

func TestVariableBoundLoopWithoutRecordingAllowed(t *testing.T) {
	job := NewJob()
	c := job.Cells(1)[0]
	v := job.NormalVariable("n")
	end := job.NormalVariable("end")
	job.Assign(end, Int(5))
	job.ForRange(v, Int(0), end, Int(1), func(b *Block) {
		b.WaitSeconds(c, 1e-6)
	})
	require.NoError(t, job.Check())
	assert.Equal(t, 0, c.Recordings())
}

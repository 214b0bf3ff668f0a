package platform

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	fake := NewFake()
	fake.Fail["connect"] = []error{
		&StatusError{Code: StatusUnavailable, Op: "connect", Message: "booting"},
		&StatusError{Code: StatusInternal, Op: "connect", Message: "still booting"},
	}
	c := WithRetry(fake, quietLogger())
	require.NoError(t, c.Connect(context.Background()))
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	fake := NewFake()
	errs := make([]error, RetryAttempts+1)
	for n := range errs {
		errs[n] = &StatusError{Code: StatusUnavailable, Op: "connect", Message: "down"}
	}
	fake.Fail["connect"] = errs

	c := WithRetry(fake, quietLogger())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusUnavailable, Code(err))
	// Exactly RetryAttempts calls were made.
	assert.Len(t, fake.Fail["connect"], 1)
}

func TestRetryNeverRetriesPermanentCodes(t *testing.T) {
	for _, code := range []StatusCode{StatusNotFound, StatusInvalidArgument, StatusUnimplemented} {
		fake := NewFake()
		fake.Fail["capabilities"] = []error{
			&StatusError{Code: code, Op: "capabilities", Message: "no"},
			&StatusError{Code: StatusUnavailable, Op: "capabilities", Message: "unreached"},
		}
		c := WithRetry(fake, quietLogger())
		_, err := c.Capabilities(context.Background())
		require.Error(t, err)
		assert.Equal(t, code, Code(err))
		// The second scripted error was never consumed.
		assert.Len(t, fake.Fail["capabilities"], 1)
	}
}

func TestFakeLoadAndRun(t *testing.T) {
	fake := NewFake()
	ctx := context.Background()
	require.NoError(t, fake.Connect(ctx))
	require.NoError(t, fake.LoadProgram(ctx, CellProgram{Cell: 2, Words: []uint32{1, 2, 3}}))
	require.NoError(t, fake.Start(ctx, 100))

	state, err := fake.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDone, state)
	assert.Equal(t, 100, fake.Shots())

	prog, ok := fake.Program(2)
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 2, 3}, prog.Words)
}

func TestLoadWithoutConnection(t *testing.T) {
	fake := NewFake()
	err := fake.LoadProgram(context.Background(), CellProgram{})
	require.Error(t, err)
	assert.Equal(t, StatusUnavailable, Code(err))
}

func TestDataboxConversions(t *testing.T) {
	signed := &Databox{Mode: Int16, Words: []uint64{0xFFFF, 1, 0x7FFF}}
	assert.Equal(t, []int64{-1, 1, 32767}, signed.Int64s())

	unsigned := &Databox{Mode: Uint16, Words: []uint64{0xFFFF}}
	assert.Equal(t, []int64{65535}, unsigned.Int64s())
	assert.Equal(t, []float64{65535}, unsigned.Float64s())
}

func TestCapabilitiesHas(t *testing.T) {
	caps := Capabilities{"qicode", "counts"}
	assert.True(t, caps.Has("counts"))
	assert.False(t, caps.Has("plotting"))
}

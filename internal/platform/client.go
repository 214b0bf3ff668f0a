// Package platform talks to the instrument controller: loading
// compiled programs onto cells, running them and fetching the result
// buffers. The wire transport itself is pluggable; tests run against
// the in-memory fake.
package platform

import (
	"context"
	"fmt"
	"sort"
)

// DataMode is the element type of a databox returned by the task
// runner.
type DataMode int

const (
	Int8 DataMode = iota + 1
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
)

func (m DataMode) String() string {
	switch m {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	}
	return fmt.Sprintf("DataMode(%d)", int(m))
}

// Bits returns the element width.
func (m DataMode) Bits() int {
	switch m {
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32:
		return 32
	}
	return 64
}

// Signed reports whether elements carry a sign.
func (m DataMode) Signed() bool {
	switch m {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// Databox is one typed result buffer. Elements are stored as raw words
// and converted on access.
type Databox struct {
	Mode  DataMode
	Words []uint64
}

// Len returns the number of elements.
func (d *Databox) Len() int { return len(d.Words) }

// Int64s returns the elements sign extended to 64 bits.
func (d *Databox) Int64s() []int64 {
	out := make([]int64, len(d.Words))
	shift := 64 - d.Mode.Bits()
	for n, w := range d.Words {
		if d.Mode.Signed() {
			out[n] = int64(w<<shift) >> shift
		} else {
			out[n] = int64(w << shift >> shift)
		}
	}
	return out
}

// Float64s returns the elements as floats.
func (d *Databox) Float64s() []float64 {
	ints := d.Int64s()
	out := make([]float64, len(ints))
	for n, v := range ints {
		out[n] = float64(v)
	}
	return out
}

// CellProgram is the payload loaded onto one cell: the sequencer
// program and the initial static data region.
type CellProgram struct {
	Cell         int
	Words        []uint32
	StaticRegion []int32
}

// RunState is the coarse execution state of the controller.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateDone
)

// Capabilities is the feature list the task runner reports. Result
// modes are gated on it.
type Capabilities []string

// Has reports whether the feature list contains name.
func (c Capabilities) Has(name string) bool {
	for _, f := range c {
		if f == name {
			return true
		}
	}
	return false
}

func (c Capabilities) String() string {
	sorted := append([]string{}, c...)
	sort.Strings(sorted)
	return fmt.Sprintf("%v", sorted)
}

// Client is the device connection the run pipeline drives.
type Client interface {
	// Connect opens the transport.
	Connect(ctx context.Context) error

	// Close releases the transport.
	Close() error

	// LoadProgram writes a compiled cell program onto the device.
	LoadProgram(ctx context.Context, prog CellProgram) error

	// Start begins execution with the given number of shots.
	Start(ctx context.Context, shots int) error

	// State polls the execution state.
	State(ctx context.Context) (RunState, error)

	// Stop aborts a running execution.
	Stop(ctx context.Context) error

	// Databoxes fetches the result buffers in the given element type.
	Databoxes(ctx context.Context, mode DataMode) ([]Databox, error)

	// Capabilities queries the task runner feature list.
	Capabilities(ctx context.Context) (Capabilities, error)
}

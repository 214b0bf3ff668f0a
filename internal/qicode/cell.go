package qicode

import (
	"fmt"
	"sort"
)

// MaxPulsesPerCell is the number of trigger indices available for
// pulses on one module. Index 0 means no pulse and index 14 is the
// choke pulse that ends a running output early.
const (
	MaxPulsesPerCell = 13
	ChokePulseIndex  = 14
)

// Frame is an n-dimensional numeric result. Values are stored flat in
// row-major order; Shape gives the dimensions.
type Frame struct {
	Shape  []int
	Values []float64
}

// Size returns the number of values the shape implies.
func (f *Frame) Size() int {
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// At returns the value at the given indices.
func (f *Frame) At(indices ...int) float64 {
	if len(indices) != len(f.Shape) {
		panic(fmt.Sprintf("frame: %d indices for %d dimensions", len(indices), len(f.Shape)))
	}
	pos := 0
	for i, idx := range indices {
		if idx < 0 || idx >= f.Shape[i] {
			panic(fmt.Sprintf("frame: index %d out of range for dimension %d", idx, i))
		}
		pos = pos*f.Shape[i] + idx
	}
	return f.Values[pos]
}

// ResultBox collects processed measurement data under a user-chosen
// name. Boxes are created by recording commands and filled by the
// result pipeline after a run.
type ResultBox struct {
	Name string
	Cell *Cell

	// Data holds numeric results. Nil until results are processed.
	Data *Frame

	// Counts holds state occurrence counts for counting modes.
	Counts map[string]uint64
}

// Cell is one unit cell of the controller: a signal generator, a
// readout generator and a recording module driven by one sequencer.
type Cell struct {
	ID int

	pulses         []*Pulse
	readoutPulses  []*Pulse
	results        map[string]*ResultBox
	resultOrder    []string
	recordings     int
	recordingOrder []*ResultBox

	// InitialFrequency is the manipulation NCO frequency at program
	// start.
	InitialFrequency float64

	// InitialReadoutFrequency is the readout NCO frequency at program
	// start.
	InitialReadoutFrequency float64

	// RecordingLength is the recording window in seconds, shared by all
	// recordings of the cell.
	RecordingLength float64
}

func newCell(id int) *Cell {
	return &Cell{ID: id, results: make(map[string]*ResultBox)}
}

// AddPulse registers a pulse with the cell's signal generator and
// returns its trigger index. Identical pulses share an index.
func (c *Cell) AddPulse(p *Pulse) (int, error) {
	return addPulse(&c.pulses, p)
}

// AddReadoutPulse registers a pulse with the readout generator.
func (c *Cell) AddReadoutPulse(p *Pulse) (int, error) {
	return addPulse(&c.readoutPulses, p)
}

func addPulse(list *[]*Pulse, p *Pulse) (int, error) {
	for i, q := range *list {
		if q.Equal(p) {
			return i + 1, nil
		}
	}
	if len(*list) >= MaxPulsesPerCell {
		return 0, &ProgramError{
			Code:    ErrCodeInvalidPulse,
			Message: fmt.Sprintf("more than %d distinct pulses on one module", MaxPulsesPerCell),
		}
	}
	*list = append(*list, p)
	return len(*list), nil
}

// Pulses returns the registered manipulation pulses in trigger order.
func (c *Cell) Pulses() []*Pulse { return c.pulses }

// ReadoutPulses returns the registered readout pulses in trigger order.
func (c *Cell) ReadoutPulses() []*Pulse { return c.readoutPulses }

// ResultBox returns the box with the given name, creating it on first
// use.
func (c *Cell) ResultBox(name string) *ResultBox {
	if box, ok := c.results[name]; ok {
		return box
	}
	box := &ResultBox{Name: name, Cell: c}
	c.results[name] = box
	c.resultOrder = append(c.resultOrder, name)
	return box
}

// ResultBoxes returns every box of the cell in creation order.
func (c *Cell) ResultBoxes() []*ResultBox {
	boxes := make([]*ResultBox, 0, len(c.resultOrder))
	for _, name := range c.resultOrder {
		boxes = append(boxes, c.results[name])
	}
	return boxes
}

// Data returns the processed result frame stored under name.
func (c *Cell) Data(name string) (*Frame, error) {
	box, ok := c.results[name]
	if !ok {
		names := make([]string, 0, len(c.results))
		for n := range c.results {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("cell %d has no result %q, have %v", c.ID, name, names)
	}
	if box.Data == nil {
		return nil, fmt.Errorf("result %q has not been processed", name)
	}
	return box.Data, nil
}

// Recordings returns how many recordings the cell executes. After
// Check the count includes loop iterations.
func (c *Cell) Recordings() int { return c.recordings }

// RecordingOrder returns the result box of each recording in execution
// order. Entries are nil for recordings that save nothing; a recording
// inside a loop appears once per iteration after Check.
func (c *Cell) RecordingOrder() []*ResultBox { return c.recordingOrder }

func (c *Cell) String() string {
	return fmt.Sprintf("cell[%d]", c.ID)
}

package results

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/qic/internal/qicode"
)

// PartialPolicy decides what happens when the device returned fewer
// shots than the run requested.
type PartialPolicy int

const (
	// WarnAccept keeps the partial data and logs a warning.
	WarnAccept PartialPolicy = iota

	// Accept keeps the partial data silently.
	Accept

	// Reject fails the run with a PARTIAL_DATA error.
	Reject
)

// DefaultMinFraction is the share of requested shots below which
// partial data is rejected regardless of policy.
const DefaultMinFraction = 1.0 / 32

// Run describes the finished run the buffers belong to.
type Run struct {
	// Shots is the number of averages the run requested.
	Shots int

	// Shape is the sweep dimensions recorded by the compiler, outer
	// loop first. Results whose length matches the shape are folded
	// into it.
	Shape []int
}

// Handler processes the buffers of one run into the cells' result
// boxes. Implementations registered for custom modes get the same view
// of the data as the built-in ones.
type Handler interface {
	Process(p DataProvider, cells []*qicode.Cell, run Run) error
}

// Processor turns device buffers into result box contents. Processing
// overwrites box data, so running it again over the same buffers leaves
// the boxes unchanged.
type Processor struct {
	policy      PartialPolicy
	minFraction float64
	logger      *slog.Logger
	custom      map[Mode]Handler
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithPartialPolicy sets how partial data is handled.
func WithPartialPolicy(p PartialPolicy) ProcessorOption {
	return func(pr *Processor) { pr.policy = p }
}

// WithMinFraction sets the minimum accepted share of requested shots.
func WithMinFraction(f float64) ProcessorOption {
	return func(pr *Processor) { pr.minFraction = f }
}

// WithLogger sets the logger partial data warnings go to.
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(pr *Processor) { pr.logger = l }
}

// NewProcessor creates a processor with the default warn-and-accept
// partial data policy.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		minFraction: DefaultMinFraction,
		logger:      slog.Default(),
		custom:      make(map[Mode]Handler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a handler for a custom mode. Built-in modes cannot be
// replaced.
func (p *Processor) Register(mode Mode, h Handler) error {
	if mode < ModeCustomBase {
		return &Error{
			Code:    ErrCodeBadRegistration,
			Message: fmt.Sprintf("mode %s is built in", mode),
		}
	}
	p.custom[mode] = h
	return nil
}

// Process runs the handler for the given mode over the buffers.
func (p *Processor) Process(mode Mode, prov DataProvider, cells []*qicode.Cell, run Run) error {
	switch mode {
	case ModeAverage:
		return p.eachRecordedCell(cells, func(n int, cell *qicode.Cell) error {
			return p.processAveraged(prov, n, cell, run, false)
		})
	case ModeAmplitudePhase:
		return p.eachRecordedCell(cells, func(n int, cell *qicode.Cell) error {
			return p.processAveraged(prov, n, cell, run, true)
		})
	case ModeIQCloud:
		return p.eachRecordedCell(cells, func(n int, cell *qicode.Cell) error {
			return p.processIQCloud(prov, n, cell, run)
		})
	case ModeRaw:
		return p.eachRecordedCell(cells, func(n int, cell *qicode.Cell) error {
			return processRaw(prov, n, cell)
		})
	case ModeStates:
		return p.eachRecordedCell(cells, func(n int, cell *qicode.Cell) error {
			return p.processStates(prov, n, cell, run, firstBox)
		})
	case ModeCounts:
		return p.eachRecordedCell(cells, func(n int, cell *qicode.Cell) error {
			return processCounts(prov, cells, cell)
		})
	case ModeQuantumJumps:
		return p.eachRecordedCell(cells, func(n int, cell *qicode.Cell) error {
			return p.processStates(prov, n, cell, run, lastBox)
		})
	}
	h, ok := p.custom[mode]
	if !ok {
		return &Error{
			Code:    ErrCodeUnknownMode,
			Message: fmt.Sprintf("no handler for mode %s", mode),
		}
	}
	return h.Process(prov, cells, run)
}

// eachRecordedCell visits cells that ran at least one recording. The
// cell index counts recorded cells only, matching the device buffer
// order.
func (p *Processor) eachRecordedCell(cells []*qicode.Cell, f func(n int, cell *qicode.Cell) error) error {
	n := 0
	for _, cell := range cells {
		if cell.Recordings() == 0 {
			continue
		}
		if err := f(n, cell); err != nil {
			return err
		}
		n++
	}
	return nil
}

// checkPartial applies the partial data policy. Below the minimum
// fraction the data is rejected regardless of policy.
func (p *Processor) checkPartial(box string, available, requested int) error {
	if requested <= 0 || available >= requested {
		return nil
	}
	fraction := float64(available) / float64(requested)
	if p.policy == Reject || fraction < p.minFraction {
		return &Error{
			Code:    ErrCodePartialData,
			Box:     box,
			Message: fmt.Sprintf("%d of %d requested shots returned", available, requested),
		}
	}
	if p.policy == WarnAccept {
		p.logger.Warn("run returned partial data",
			"box", box, "available", available, "requested", requested)
	}
	return nil
}

// shape folds a flat result into the sweep dimensions when the lengths
// agree, and keeps it one dimensional otherwise.
func shapeOf(run Run, length int) []int {
	size := 1
	for _, d := range run.Shape {
		size *= d
	}
	if len(run.Shape) > 0 && size == length {
		out := make([]int, len(run.Shape))
		copy(out, run.Shape)
		return out
	}
	return []int{length}
}

// processAveraged fills boxes with averaged I/Q rows, optionally
// converted to amplitude and phase.
func (p *Processor) processAveraged(prov DataProvider, cellIndex int, cell *qicode.Cell, run Run, ampPha bool) error {
	iRow, qRow := prov.IQ(cellIndex)
	order := cell.RecordingOrder()
	if len(iRow) < len(order) || len(qRow) < len(order) {
		return &Error{
			Code:    ErrCodeMissingData,
			Message: fmt.Sprintf("cell %d returned %d of %d recordings", cell.ID, len(iRow), len(order)),
		}
	}
	shots := float64(run.Shots)
	if shots <= 0 {
		shots = 1
	}

	rows := make(map[*qicode.ResultBox][2][]float64)
	boxes := boxesInOrder(order)
	for rec, box := range order {
		if box == nil {
			continue
		}
		i, q := iRow[rec]/shots, qRow[rec]/shots
		if ampPha {
			i, q = math.Hypot(iRow[rec], qRow[rec])/shots, math.Atan2(qRow[rec], iRow[rec])
		}
		pair := rows[box]
		pair[0] = append(pair[0], i)
		pair[1] = append(pair[1], q)
		rows[box] = pair
	}
	for _, box := range boxes {
		pair := rows[box]
		inner := shapeOf(run, len(pair[0]))
		box.Data = &qicode.Frame{
			Shape:  append([]int{2}, inner...),
			Values: append(append([]float64{}, pair[0]...), pair[1]...),
		}
	}
	return nil
}

// processIQCloud fills boxes with every shot as an I/Q point. One
// recording gives shape (2, N); M recordings of the same box, one per
// sweep point of the loop the recording sits in, give (2, M, N) with
// each recording owning one contiguous row block.
func (p *Processor) processIQCloud(prov DataProvider, cellIndex int, cell *qicode.Cell, run Run) error {
	order := cell.RecordingOrder()
	clouds := make(map[*qicode.ResultBox][][2][]float64)
	for rec, box := range order {
		if box == nil {
			continue
		}
		i, q := prov.IQCloud(cellIndex, rec, len(order))
		if err := p.checkPartial(box.Name, len(i), run.Shots); err != nil {
			return err
		}
		clouds[box] = append(clouds[box], [2][]float64{i, q})
	}
	for _, box := range boxesInOrder(order) {
		recs := clouds[box]
		n := 0
		for _, r := range recs {
			if len(r[0]) > n {
				n = len(r[0])
			}
		}
		values := make([]float64, 0, 2*len(recs)*n)
		for ch := 0; ch < 2; ch++ {
			for _, r := range recs {
				values = append(values, r[ch]...)
				for pad := len(r[ch]); pad < n; pad++ {
					values = append(values, 0)
				}
			}
		}
		shape := []int{2, n}
		if len(recs) > 1 {
			shape = []int{2, len(recs), n}
		}
		box.Data = &qicode.Frame{Shape: shape, Values: values}
	}
	return nil
}

// processRaw stores the unprocessed sample block of the cell under the
// box of its last recording.
func processRaw(prov DataProvider, cellIndex int, cell *qicode.Cell) error {
	box := lastBox(cell.RecordingOrder())
	if box == nil {
		return nil
	}
	i, q := prov.IQ(cellIndex)
	box.Data = &qicode.Frame{
		Shape:  []int{2, len(i)},
		Values: append(append([]float64{}, i...), q...),
	}
	return nil
}

// unpackStates expands packed state words, three bits per value and ten
// values per word, little end first.
func unpackStates(words []uint32, limit int) []float64 {
	out := make([]float64, 0, limit)
	for _, word := range words {
		for n := 0; n < 10; n++ {
			if len(out) == limit {
				return out
			}
			out = append(out, float64((word>>(3*n))&0b111))
		}
	}
	return out
}

// processStates stores the per-shot qubit states of the cell. The last
// word is only partially filled, so the stream is cut at the shot
// count.
func (p *Processor) processStates(prov DataProvider, cellIndex int, cell *qicode.Cell, run Run, pick func([]*qicode.ResultBox) *qicode.ResultBox) error {
	box := pick(cell.RecordingOrder())
	if box == nil {
		return nil
	}
	words := prov.States(cellIndex)
	available := 10 * len(words)
	if available > run.Shots && run.Shots > 0 {
		available = run.Shots
	}
	if err := p.checkPartial(box.Name, available, run.Shots); err != nil {
		return err
	}
	values := unpackStates(words, available)
	box.Data = &qicode.Frame{Shape: shapeOf(run, len(values)), Values: values}
	return nil
}

// processCounts stores how often each joint state of the recorded cells
// occurred. Keys are binary strings, first recorded cell in the most
// significant position.
func processCounts(prov DataProvider, cells []*qicode.Cell, cell *qicode.Cell) error {
	box := lastBox(cell.RecordingOrder())
	if box == nil {
		return nil
	}
	digits := 0
	for _, c := range cells {
		if c.Recordings() > 0 {
			digits++
		}
	}
	counts := make(map[string]uint64)
	for state, count := range prov.Counts() {
		counts[fmt.Sprintf("%0*b", digits, state)] = uint64(count)
	}
	box.Counts = counts
	return nil
}

func firstBox(order []*qicode.ResultBox) *qicode.ResultBox {
	for _, box := range order {
		if box != nil {
			return box
		}
	}
	return nil
}

func lastBox(order []*qicode.ResultBox) *qicode.ResultBox {
	for n := len(order) - 1; n >= 0; n-- {
		if order[n] != nil {
			return order[n]
		}
	}
	return nil
}

// boxesInOrder returns the distinct boxes of a recording order,
// keeping their first appearance order.
func boxesInOrder(order []*qicode.ResultBox) []*qicode.ResultBox {
	seen := make(map[*qicode.ResultBox]bool)
	var boxes []*qicode.ResultBox
	for _, box := range order {
		if box == nil || seen[box] {
			continue
		}
		seen[box] = true
		boxes = append(boxes, box)
	}
	return boxes
}

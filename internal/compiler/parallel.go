package compiler

import (
	"sort"

	"github.com/roach88/qic/internal/isa"
	"github.com/roach88/qic/internal/qicode"
	"github.com/roach88/qic/internal/units"
)

// parallelEvent is one pulse start on a cell's timeline, in cycles
// relative to the block start.
type parallelEvent struct {
	start  int64
	end    int64
	module int
	pulse  *triggerPulse
	rec    *qicode.RecordingCommand
}

// lowerParallel merges the branches of a parallel block into combined
// trigger words. Every branch advances its own cursor; pulses that
// start at the same cycle share one word. Runtime pulse lengths have no
// place on a merged timeline.
func (b *builder) lowerParallel(c *qicode.ParallelCommand) error {
	cells := b.relevantCells(c)
	if err := b.syncCells(cells); err != nil {
		return err
	}
	for _, cell := range cells {
		events, err := b.parallelTimeline(c, cell)
		if err != nil {
			return err
		}
		if err := b.emitTimeline(b.seqs[cell], events); err != nil {
			return err
		}
	}
	return nil
}

func constCycles(e qicode.Expr) (int64, error) {
	konst, ok := e.(*qicode.Constant)
	if !ok {
		return 0, &CompileError{
			Code: ErrCodeUnsupported, Cell: -1,
			Message: "parallel blocks need constant pulse lengths",
		}
	}
	cycles, err := units.TimeToCycles(konst.Float64(), units.Ceil)
	return int64(cycles), err
}

func (b *builder) parallelTimeline(c *qicode.ParallelCommand, cell *qicode.Cell) ([]parallelEvent, error) {
	var events []parallelEvent
	for _, branch := range c.Branches {
		cursor := int64(0)
		for _, cmd := range branch {
			switch x := cmd.(type) {
			case *qicode.WaitCommand:
				if x.Cell != cell {
					continue
				}
				cycles, err := constCycles(x.Duration)
				if err != nil {
					return nil, err
				}
				cursor += cycles
			case *qicode.PlayCommand:
				if x.Cell != cell {
					continue
				}
				cycles, err := constCycles(x.Pulse.Length)
				if err != nil {
					return nil, err
				}
				events = append(events, parallelEvent{
					start: cursor, end: cursor + cycles,
					module: modManipulation,
					pulse:  &triggerPulse{index: x.TriggerIndex},
				})
				cursor += cycles
			case *qicode.PlayReadoutCommand:
				if x.Cell != cell {
					continue
				}
				cycles, err := constCycles(x.Pulse.Length)
				if err != nil {
					return nil, err
				}
				events = append(events, parallelEvent{
					start: cursor, end: cursor + cycles,
					module: modReadout,
					pulse:  &triggerPulse{index: x.TriggerIndex},
				})
				cursor += cycles
			case *qicode.RecordingCommand:
				if x.Cell != cell {
					continue
				}
				cycles, err := units.TimeToCycles(x.Length, units.Ceil)
				if err != nil {
					return nil, err
				}
				length := int64(cycles) + recordingDelayCycles
				events = append(events, parallelEvent{
					start: cursor, end: cursor + length,
					module: modRecording,
					rec:    x,
				})
				cursor += length
			case *qicode.DigitalTriggerCommand:
				if x.Cell != cell {
					continue
				}
				rawCycles, err := units.TimeToCycles(x.Length, units.Ceil)
				if err != nil {
					return nil, err
				}
				cycles := int64(rawCycles)
				mask := 0
				for _, out := range x.Outputs {
					mask |= 1 << uint(out)
				}
				events = append(events, parallelEvent{
					start: cursor, end: cursor + cycles,
					module: modExternal,
					pulse:  &triggerPulse{index: mask & 0x3},
				})
				cursor += cycles
			}
		}
	}
	return events, nil
}

// emitTimeline walks the merged start boundaries of a cell's timeline
// and emits one trigger word per boundary, with waits covering the
// gaps. Constant length pulses stop on their own, so no chokes are
// needed between words.
func (b *builder) emitTimeline(s *Sequencer, events []parallelEvent) error {
	if len(events) == 0 {
		return nil
	}
	starts := map[int64]bool{}
	end := int64(0)
	for _, e := range events {
		starts[e.start] = true
		if e.end > end {
			end = e.end
		}
	}
	cuts := make([]int64, 0, len(starts))
	for t := range starts {
		cuts = append(cuts, t)
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })

	cursor := int64(0)
	for _, t := range cuts {
		var starting [4]*parallelEvent
		for idx := range events {
			e := &events[idx]
			if e.start != t {
				continue
			}
			if starting[e.module] != nil {
				return s.errf(ErrCodeUnsupported, "two pulses on the same module start at the same cycle")
			}
			if prev := boundedBefore(events, e); prev != nil {
				return s.errf(ErrCodeUnsupported, "pulse starts while the same module is still playing")
			}
			starting[e.module] = e
		}
		if t > cursor {
			if err := s.waitCycles(t - cursor); err != nil {
				return err
			}
			cursor = t
		}
		var manipulation, readout, external *triggerPulse
		var rec *qicode.RecordingCommand
		if e := starting[modManipulation]; e != nil {
			manipulation = e.pulse
		}
		if e := starting[modReadout]; e != nil {
			readout = e.pulse
		}
		if e := starting[modExternal]; e != nil {
			external = e.pulse
		}
		if e := starting[modRecording]; e != nil {
			rec = e.rec
		}
		values := s.trigger.values(readout, rec, manipulation, external)
		s.add(isa.NewTrigger(values, false, false), 1, true)
		cursor++
		if rec != nil && rec.StateTo != nil {
			if _, err := s.checkRecordingState(rec); err != nil {
				return err
			}
		}
	}
	// Let the longest pulse finish before the block ends.
	if end > cursor {
		if err := s.waitCycles(end - cursor); err != nil {
			return err
		}
	}
	return nil
}

// boundedBefore reports whether an earlier pulse on the same module is
// still playing when e starts.
func boundedBefore(events []parallelEvent, e *parallelEvent) *parallelEvent {
	for idx := range events {
		o := &events[idx]
		if o != e && o.module == e.module && o.start < e.start && o.end > e.start {
			return o
		}
	}
	return nil
}

package qicode

// simulateRecordings replays loop execution to derive each cell's
// recording order: a recording inside a loop lands once per iteration,
// so the order carries the sweep multiplicity the result buffers are
// sliced by. Runs after type checking, loop bounds must be resolvable.
func simulateRecordings(j *Job) error {
	for _, cell := range j.cells {
		cell.recordings = 0
		cell.recordingOrder = nil
	}
	return expandRecordings(j.Commands(), 1)
}

func expandRecordings(cmds []Command, times int) error {
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case *RecordingCommand:
			for n := 0; n < times; n++ {
				c.Cell.recordingOrder = append(c.Cell.recordingOrder, c.SaveTo)
			}
			c.Cell.recordings += times
		case *IfCommand:
			if hasRecording(c.Then) || hasRecording(c.Else) {
				return &ProgramError{
					Code:    ErrCodeInvalidRecording,
					Subject: c.Cond.String(),
					Message: "recording inside a conditional branch, the recording count would depend on runtime state",
				}
			}
		case *ForRangeCommand:
			if !hasRecording(c.Body) {
				continue
			}
			n, err := c.Iterations()
			if err != nil {
				return &ProgramError{
					Code:    ErrCodeInvalidRecording,
					Subject: c.Var.String(),
					Message: "recording inside a loop without constant bounds",
				}
			}
			if err := expandRecordings(c.Body, times*n); err != nil {
				return err
			}
		case *ParallelCommand:
			for _, branch := range c.Branches {
				if err := expandRecordings(branch, times); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func hasRecording(cmds []Command) bool {
	found := false
	WalkCommands(cmds, func(cmd Command) {
		if _, ok := cmd.(*RecordingCommand); ok {
			found = true
		}
	})
	return found
}

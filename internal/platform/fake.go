package platform

import (
	"context"
	"sync"
)

// Fake is an in-memory Client for tests and dry runs. Programs are
// kept per cell, execution finishes instantly, and result buffers are
// whatever the test seeded.
type Fake struct {
	mu sync.Mutex

	connected bool
	state     RunState
	programs  map[int]CellProgram
	shots     int

	// Boxes is returned by Databoxes.
	Boxes []Databox

	// Features is returned by Capabilities.
	Features Capabilities

	// Fail scripts errors per operation name; each call consumes one
	// entry until the list is empty.
	Fail map[string][]error
}

// NewFake creates an idle fake device.
func NewFake() *Fake {
	return &Fake{
		programs: make(map[int]CellProgram),
		Fail:     make(map[string][]error),
	}
}

func (f *Fake) scripted(op string) error {
	errs := f.Fail[op]
	if len(errs) == 0 {
		return nil
	}
	f.Fail[op] = errs[1:]
	return errs[0]
}

// Program returns the program loaded onto a cell.
func (f *Fake) Program(cell int) (CellProgram, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.programs[cell]
	return p, ok
}

// Shots returns the shot count of the last started run.
func (f *Fake) Shots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shots
}

func (f *Fake) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("connect"); err != nil {
		return err
	}
	f.connected = true
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *Fake) LoadProgram(_ context.Context, prog CellProgram) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("load_program"); err != nil {
		return err
	}
	if !f.connected {
		return &StatusError{Code: StatusUnavailable, Op: "load_program", Message: "not connected"}
	}
	f.programs[prog.Cell] = prog
	return nil
}

func (f *Fake) Start(_ context.Context, shots int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("start"); err != nil {
		return err
	}
	if !f.connected {
		return &StatusError{Code: StatusUnavailable, Op: "start", Message: "not connected"}
	}
	f.shots = shots
	f.state = StateDone
	return nil
}

func (f *Fake) State(context.Context) (RunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("state"); err != nil {
		return StateIdle, err
	}
	return f.state, nil
}

func (f *Fake) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("stop"); err != nil {
		return err
	}
	f.state = StateIdle
	return nil
}

func (f *Fake) Databoxes(_ context.Context, mode DataMode) ([]Databox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("databoxes"); err != nil {
		return nil, err
	}
	boxes := make([]Databox, len(f.Boxes))
	copy(boxes, f.Boxes)
	for n := range boxes {
		if boxes[n].Mode == 0 {
			boxes[n].Mode = mode
		}
	}
	return boxes, nil
}

func (f *Fake) Capabilities(context.Context) (Capabilities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.scripted("capabilities"); err != nil {
		return nil, err
	}
	return f.Features, nil
}

package results

// DataProvider gives handlers uniform access to the buffers a run
// produced, independent of which device plugin returned them.
type DataProvider interface {
	// IQ returns the I and Q rows of a cell. Depending on the mode the
	// entries are per-recording accumulators or per-shot samples.
	IQ(cell int) (i, q []float64)

	// IQCloud returns the per-shot I/Q samples belonging to one
	// recording of a cell, given how many recordings the cell ran.
	IQCloud(cell, recording, recordings int) (i, q []float64)

	// States returns the packed state words of a cell.
	States(cell int) []uint32

	// Counts returns the joint state occurrence counts.
	Counts() []uint32
}

// TaskRunnerProvider reads the buffer layout of the external task
// runner: one flat row per cell and channel, I/Q interleaved for shot
// resolved data.
type TaskRunnerProvider struct {
	Rows       [][]float64
	StateWords [][]uint32
}

func (p *TaskRunnerProvider) IQ(cell int) (i, q []float64) {
	return row(p.Rows, 2*cell), row(p.Rows, 2*cell+1)
}

func (p *TaskRunnerProvider) IQCloud(cell, recording, recordings int) (i, q []float64) {
	data := row(p.Rows, recordings*cell+recording)
	i = make([]float64, 0, len(data)/2)
	q = make([]float64, 0, len(data)/2)
	for n := 0; n+1 < len(data); n += 2 {
		i = append(i, data[n])
		q = append(q, data[n+1])
	}
	return i, q
}

func (p *TaskRunnerProvider) States(cell int) []uint32 {
	if cell < 0 || cell >= len(p.StateWords) {
		return nil
	}
	return p.StateWords[cell]
}

func (p *TaskRunnerProvider) Counts() []uint32 { return p.States(0) }

// PluginProvider reads the buffer layout of the internal unit cell
// plugin: two rows per cell, shot resolved data stored contiguously per
// recording.
type PluginProvider struct {
	CellRows   [][2][]float64
	StateWords [][]uint32
}

func (p *PluginProvider) IQ(cell int) (i, q []float64) {
	if cell < 0 || cell >= len(p.CellRows) {
		return nil, nil
	}
	return p.CellRows[cell][0], p.CellRows[cell][1]
}

func (p *PluginProvider) IQCloud(cell, recording, recordings int) (i, q []float64) {
	iRow, qRow := p.IQ(cell)
	return sliceRecording(iRow, recording, recordings), sliceRecording(qRow, recording, recordings)
}

// sliceRecording cuts the contiguous block of one recording out of a
// cell row holding the shots of all recordings back to back.
func sliceRecording(data []float64, recording, recordings int) []float64 {
	if recordings <= 0 {
		return nil
	}
	per := len(data) / recordings
	lo, hi := per*recording, per*(recording+1)
	if lo > len(data) {
		return nil
	}
	if hi > len(data) {
		hi = len(data)
	}
	return data[lo:hi]
}

func (p *PluginProvider) States(cell int) []uint32 {
	if cell < 0 || cell >= len(p.StateWords) {
		return nil
	}
	return p.StateWords[cell]
}

func (p *PluginProvider) Counts() []uint32 { return p.States(0) }

func row(rows [][]float64, n int) []float64 {
	if n < 0 || n >= len(rows) {
		return nil
	}
	return rows[n]
}

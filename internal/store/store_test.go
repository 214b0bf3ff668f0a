package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/qic/internal/qicode"
)

// createTestStore creates a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun inserts a run and returns its token.
func createTestRun(t *testing.T, s *Store) string {
	t.Helper()
	token, err := s.CreateRun(context.Background(), &Run{
		Name:  "rabi",
		Shots: 1024,
		Mode:  "average",
	})
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	return token
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"runs", "programs", "results"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

func TestCreateRun_GeneratesToken(t *testing.T) {
	s := createTestStore(t)

	run := &Run{Name: "t1", Shots: 16, Mode: "average"}
	token, err := s.CreateRun(context.Background(), run)
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
	if run.Token != token {
		t.Errorf("run.Token = %q, want %q", run.Token, token)
	}
	if run.CreatedAt.IsZero() {
		t.Error("CreatedAt was not filled")
	}
}

func TestCreateRun_DuplicateTokenIsNoOp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := &Run{Token: "fixed", Name: "first", Shots: 1, Mode: "raw"}
	if _, err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("first CreateRun() failed: %v", err)
	}
	dup := &Run{Token: "fixed", Name: "second", Shots: 2, Mode: "raw"}
	if _, err := s.CreateRun(ctx, dup); err != nil {
		t.Fatalf("second CreateRun() failed: %v", err)
	}

	got, err := s.Run(ctx, "fixed")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got.Name != "first" {
		t.Errorf("run name = %q, want %q (duplicate insert must not overwrite)", got.Name, "first")
	}
}

func TestRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Run(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Run() error = %v, want ErrNotFound", err)
	}
}

func TestRuns_OrderedNewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.CreateRun(ctx, &Run{Name: name, Shots: 1, Mode: "raw"}); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", name, err)
		}
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].CreatedAt.After(runs[i-1].CreatedAt) {
			t.Errorf("runs out of order: %v after %v", runs[i].CreatedAt, runs[i-1].CreatedAt)
		}
	}
}

func TestSaveProgram_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	token := createTestRun(t, s)

	prog := Program{
		Cell:         1,
		Words:        []uint32{0x00500113, 0x0000007F},
		StaticRegion: []int32{7, -1},
		Listing:      "   0: addi r2, r0, 0x5\n   1: end\n",
	}
	if err := s.SaveProgram(ctx, token, prog); err != nil {
		t.Fatalf("SaveProgram() failed: %v", err)
	}

	programs, err := s.Programs(ctx, token)
	if err != nil {
		t.Fatalf("Programs() failed: %v", err)
	}
	if len(programs) != 1 {
		t.Fatalf("got %d programs, want 1", len(programs))
	}
	got := programs[0]
	if got.Cell != prog.Cell || got.Listing != prog.Listing {
		t.Errorf("program mismatch: got %+v", got)
	}
	for n, w := range prog.Words {
		if got.Words[n] != w {
			t.Errorf("word %d = %#x, want %#x", n, got.Words[n], w)
		}
	}
	if got.StaticRegion[1] != -1 {
		t.Errorf("static region sign lost: %v", got.StaticRegion)
	}
}

func TestSaveProgram_Replaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	token := createTestRun(t, s)

	if err := s.SaveProgram(ctx, token, Program{Cell: 0, Words: []uint32{1}}); err != nil {
		t.Fatalf("first SaveProgram() failed: %v", err)
	}
	if err := s.SaveProgram(ctx, token, Program{Cell: 0, Words: []uint32{2, 3}}); err != nil {
		t.Fatalf("second SaveProgram() failed: %v", err)
	}

	programs, err := s.Programs(ctx, token)
	if err != nil {
		t.Fatalf("Programs() failed: %v", err)
	}
	if len(programs) != 1 {
		t.Fatalf("got %d programs, want 1", len(programs))
	}
	if len(programs[0].Words) != 2 || programs[0].Words[0] != 2 {
		t.Errorf("program was not replaced: %v", programs[0].Words)
	}
}

func TestSaveProgram_RequiresRun(t *testing.T) {
	s := createTestStore(t)

	err := s.SaveProgram(context.Background(), "missing", Program{Cell: 0})
	if err == nil {
		t.Error("SaveProgram() with unknown run token should fail the foreign key check")
	}
}

func TestSaveResult_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	token := createTestRun(t, s)

	res := Result{
		Box:  "iq",
		Cell: 2,
		Data: &qicode.Frame{Shape: []int{2, 3}, Values: []float64{1, 2, 3, 4, 5, 6}},
	}
	if err := s.SaveResult(ctx, token, res); err != nil {
		t.Fatalf("SaveResult() failed: %v", err)
	}

	got, err := s.Result(ctx, token, "iq")
	if err != nil {
		t.Fatalf("Result() failed: %v", err)
	}
	if got.Cell != 2 {
		t.Errorf("cell = %d, want 2", got.Cell)
	}
	if got.Data == nil {
		t.Fatal("no data")
	}
	if len(got.Data.Shape) != 2 || got.Data.Shape[0] != 2 || got.Data.Shape[1] != 3 {
		t.Errorf("shape = %v, want [2 3]", got.Data.Shape)
	}
	if got.Data.At(1, 2) != 6 {
		t.Errorf("At(1,2) = %v, want 6", got.Data.At(1, 2))
	}
}

func TestSaveResult_CountsRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	token := createTestRun(t, s)

	res := Result{
		Box:    "states",
		Counts: map[string]uint64{"000": 900, "001": 124},
	}
	if err := s.SaveResult(ctx, token, res); err != nil {
		t.Fatalf("SaveResult() failed: %v", err)
	}

	got, err := s.Result(ctx, token, "states")
	if err != nil {
		t.Fatalf("Result() failed: %v", err)
	}
	if got.Data != nil {
		t.Errorf("counts-only result should have no frame, got %+v", got.Data)
	}
	if got.Counts["000"] != 900 || got.Counts["001"] != 124 {
		t.Errorf("counts = %v", got.Counts)
	}
}

func TestSaveResult_Replaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	token := createTestRun(t, s)

	first := Result{Box: "m", Data: &qicode.Frame{Shape: []int{1}, Values: []float64{1}}}
	second := Result{Box: "m", Data: &qicode.Frame{Shape: []int{2}, Values: []float64{2, 3}}}
	if err := s.SaveResult(ctx, token, first); err != nil {
		t.Fatalf("first SaveResult() failed: %v", err)
	}
	if err := s.SaveResult(ctx, token, second); err != nil {
		t.Fatalf("second SaveResult() failed: %v", err)
	}

	results, err := s.Results(ctx, token)
	if err != nil {
		t.Fatalf("Results() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Data.Size() != 2 {
		t.Errorf("result was not replaced: %+v", results[0].Data)
	}
}

func TestSaveResult_NormalizesBoxNames(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	token := createTestRun(t, s)

	// "café" written with a combining accent, read back composed.
	decomposed := "café"
	composed := "café"

	res := Result{Box: decomposed, Data: &qicode.Frame{Shape: []int{1}, Values: []float64{42}}}
	if err := s.SaveResult(ctx, token, res); err != nil {
		t.Fatalf("SaveResult() failed: %v", err)
	}

	got, err := s.Result(ctx, token, composed)
	if err != nil {
		t.Fatalf("Result() with composed name failed: %v", err)
	}
	if got.Box != composed {
		t.Errorf("stored box = %q, want NFC form %q", got.Box, composed)
	}
	if got.Data.Values[0] != 42 {
		t.Errorf("value = %v, want 42", got.Data.Values[0])
	}
}

func TestResult_NotFound(t *testing.T) {
	s := createTestStore(t)
	token := createTestRun(t, s)

	_, err := s.Result(context.Background(), token, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Result() error = %v, want ErrNotFound", err)
	}
}

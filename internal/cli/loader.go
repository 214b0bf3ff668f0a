package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadMode controls how errors are handled during experiment loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadError represents an error that occurred during experiment loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Experiment validation errors
	ErrCodeNoExperiment = "E100" // no experiment struct in the files
	ErrCodeNoCells      = "E101" // experiment declares no cells
	ErrCodeBadCommand   = "E102" // empty or ambiguous program entry
	ErrCodeBadVariable  = "E103" // unknown variable name or type
	ErrCodeBadPulse     = "E104" // invalid pulse description
	ErrCodeBadProgram   = "E105" // program rejected by type checking
	ErrCodeBadCell      = "E106" // cell index out of range
)

// LoadExperiment loads an experiment from a CUE file or a directory of
// CUE files and builds the program graph.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadExperiment(path string, mode LoadMode) (*Experiment, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("experiment not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}}
	}

	args := []string{path}
	cfg := &load.Config{}
	if info.IsDir() {
		cueFiles, err := findCUEFiles(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		if len(cueFiles) == 0 {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}}
		}
		// Name the files explicitly so package-less experiment files
		// load the same way from a directory as from a direct path.
		args = cueFiles
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{positionedError(ErrCodeLoadFailed, inst.Err)}
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{positionedError(ErrCodeBuildFailed, err)}
	}

	expVal := value.LookupPath(cue.ParsePath("experiment"))
	if !expVal.Exists() {
		return nil, []error{&LoadError{Code: ErrCodeNoExperiment, Message: "no experiment struct found"}}
	}

	var spec experimentSpec
	if err := expVal.Decode(&spec); err != nil {
		return nil, []error{positionedError(ErrCodeBuildFailed, err)}
	}

	return buildExperiment(&spec, mode)
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// positionedError converts a CUE error into a LoadError, keeping the
// first source position when one is attached.
func positionedError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error()}
	if cueErr, ok := err.(cueerrors.Error); ok {
		le.Message = cueerrors.Details(cueErr, nil)
		if pos := cueErr.Position(); pos.IsValid() {
			le.Pos = pos
			le.Message = err.Error()
		}
	}
	return le
}

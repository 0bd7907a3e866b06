package voice

import (
	"errors"
	"fmt"
)

var (
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrGuidanceFailed      = errors.New("guidance failed")
)

// StageError reports which pipeline stage failed. It matches both the stage
// sentinel and the underlying cause with errors.Is.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	out := make([]error, 0, 2)
	if sentinel := stageSentinel(e.Stage); sentinel != nil {
		out = append(out, sentinel)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

package pipeline

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNoDocuments means the documents contained no text to import
	ErrNoDocuments = errors.New("no document text to import")
	// ErrNoDetector means no workstream detector is configured
	ErrNoDetector = errors.New("workstream detector unavailable")
	// ErrNoWorkstreams means detection returned too few usable workstreams
	ErrNoWorkstreams = errors.New("not enough workstreams detected")
)

// FatalError aborts a run. The failed run record has already been
// persisted when it is returned.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("import failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

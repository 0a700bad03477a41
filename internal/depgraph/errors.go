package depgraph

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// ErrCycle is the kind of every CycleError
var ErrCycle = errors.New("circular dependency detected")

// CycleError reports every cycle found in a rejected edge batch
type CycleError struct {
	Cycles []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Cycles, "; "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

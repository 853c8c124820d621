// internal/interaction/errors.go
package interaction

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

// ElementInteractionError reports that every strategy for one step failed.
type ElementInteractionError struct {
	Action   Action
	Locator  schemas.Locator
	Value    string
	Attempts []error
}

func (e *ElementInteractionError) Error() string {
	return fmt.Sprintf("%s on %s (value %q) failed after %d strategies: %v",
		e.Action, e.Locator, e.Value, len(e.Attempts), errors.Join(e.Attempts...))
}

// Unwrap exposes the individual strategy errors to errors.Is and errors.As.
func (e *ElementInteractionError) Unwrap() []error {
	return e.Attempts
}

// internal/forms/errors.go
package forms

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/formrunner/internal/interaction"
)

// ConfigErrorKind classifies a ConfigurationError.
type ConfigErrorKind string

const (
	UnknownVariant ConfigErrorKind = "unknown_variant"
	UnknownSection ConfigErrorKind = "unknown_section"
	AnswerLength   ConfigErrorKind = "answer_length"
)

// ConfigurationError is raised before any browser interaction when the
// request cannot be mapped onto the variant's tables. It is never retried.
type ConfigurationError struct {
	Kind   ConfigErrorKind
	Name   string
	Detail string
}

func (e *ConfigurationError) Error() string {
	switch e.Kind {
	case UnknownVariant:
		return fmt.Sprintf("unknown form variant %q", e.Name)
	case UnknownSection:
		return fmt.Sprintf("section %q not found", e.Name)
	}
	return fmt.Sprintf("invalid answers for %q: %s", e.Name, e.Detail)
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cerr *ConfigurationError
	return errors.As(err, &cerr)
}

// ElementInteractionError is the failure of every strategy for one step.
type ElementInteractionError = interaction.ElementInteractionError

// RunError aborts the remaining phases of a run.
type RunError struct {
	Phase string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run aborted during %s: %v", e.Phase, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// internal/interaction/step.go
package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

// Action is the kind of UI operation a step performs.
type Action int

const (
	ActionClick Action = iota
	ActionType
)

func (a Action) String() string {
	switch a {
	case ActionClick:
		return "click"
	case ActionType:
		return "type"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Kind tags a step with the form phase it belongs to. It has no effect on
// how the step is performed and exists for logs, failure reports and tests.
type Kind string

const (
	KindIdentification Kind = "identification"
	KindScale          Kind = "scale"
	KindJustification  Kind = "justification"
	KindSection        Kind = "section"
	KindGate           Kind = "gate"
	KindChannel        Kind = "channel"
	KindClosingText    Kind = "closing_text"
	KindNext           Kind = "next"
	KindFinalize       Kind = "finalize"
)

// Step is a single interaction against one element.
type Step struct {
	Kind    Kind
	Name    string // logical field name, e.g. "atencion[2]"
	Action  Action
	Locator schemas.Locator
	Value   string // text to type; for clicks, the answer the element represents
}

// Actor performs steps against a page.
type Actor interface {
	Perform(ctx context.Context, step Step) error
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

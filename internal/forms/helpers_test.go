// internal/forms/helpers_test.go
package forms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/interaction"
	"github.com/xkilldash9x/formrunner/internal/mocks"
)

// recordingActor records every step and answers with failOn, if set.
type recordingActor struct {
	steps  []interaction.Step
	failOn func(interaction.Step) error
}

func (a *recordingActor) Perform(ctx context.Context, step interaction.Step) error {
	a.steps = append(a.steps, step)
	if a.failOn != nil {
		return a.failOn(step)
	}
	return nil
}

func (a *recordingActor) ofKind(kind interaction.Kind) []interaction.Step {
	var out []interaction.Step
	for _, s := range a.steps {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (a *recordingActor) count(kind interaction.Kind) int { return len(a.ofKind(kind)) }

// indexOf returns the position of the first step named name, or -1.
func (a *recordingActor) indexOf(name string) int {
	for i, s := range a.steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func newTestRunner(t *testing.T, v *Variant, opts Options, actor interaction.Actor) *Runner {
	t.Helper()
	return NewRunner(v, opts, zaptest.NewLogger(t), WithActorFactory(func(schemas.Page, *zap.Logger) interaction.Actor {
		return actor
	}))
}

// newPage returns a page whose navigation succeeds and whose Close is expected once.
func newPage() *mocks.MockPage {
	page := new(mocks.MockPage)
	page.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	page.On("Close", mock.Anything).Return(nil).Once()
	return page
}

func fullSubmission(v *Variant, gate schemas.GateAnswer) schemas.Submission {
	sub := schemas.Submission{
		Variant:           v.ID,
		Identification:    map[string]string{},
		Recommendation:    10,
		Satisfaction:      10,
		Sections:          map[string][]int{},
		Gates:             map[string]schemas.GateAnswer{},
		ComplaintChannels: []string{"Pagina web", "Correo electronico", "Telefonicamente", "Codigo QR"},
		Suggestions:       "Excelente programa.",
	}
	for _, f := range v.Identification {
		sub.Identification[f.Name] = "valor " + f.Name
	}
	for name, d := range v.Sections {
		answers := make([]int, len(d.RowIDs))
		for i := range answers {
			answers[i] = 10
		}
		sub.Sections[name] = answers
	}
	for _, g := range v.Gates() {
		sub.Gates[g.Name] = gate
	}
	return sub
}

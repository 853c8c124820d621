// internal/forms/machine_test.go
package forms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/interaction"
	"github.com/xkilldash9x/formrunner/internal/mocks"
)

func TestRunEndToEndForm1AllYes(t *testing.T) {
	v := form1()
	actor := &recordingActor{}
	page := newPage()
	r := newTestRunner(t, v, Options{}, actor)
	sub := fullSubmission(v, schemas.GateYes)

	outcome := r.Run(context.Background(), page, sub)

	require.Equal(t, schemas.RunCompleted, outcome.Status, outcome.Error)
	assert.Empty(t, outcome.FailedInteractions)
	assert.True(t, outcome.Completed())

	assert.Equal(t, 49, v.TotalRows())
	assert.Equal(t, v.TotalRows(), actor.count(interaction.KindSection))
	assert.Equal(t, 2, actor.count(interaction.KindScale))
	assert.Equal(t, len(sub.ComplaintChannels), actor.count(interaction.KindChannel))
	assert.Equal(t, 1, actor.count(interaction.KindClosingText))
	assert.Equal(t, 1, actor.count(interaction.KindNext))
	assert.Equal(t, 1, actor.count(interaction.KindFinalize))
	assert.Zero(t, actor.count(interaction.KindJustification))
	assert.Equal(t, 2, actor.count(interaction.KindIdentification))
	assert.Equal(t, 3, actor.count(interaction.KindGate))

	want := v.TotalRows() + 2 + len(sub.ComplaintChannels) + 1 + 1 + 1
	assert.Equal(t, want, len(actor.steps)-actor.count(interaction.KindIdentification)-actor.count(interaction.KindGate))

	last := actor.steps[len(actor.steps)-1]
	assert.Equal(t, interaction.KindFinalize, last.Kind)
	assert.Equal(t, secondButton, last.Locator)

	page.AssertCalled(t, "Navigate", mock.Anything, v.URL)
	page.AssertNumberOfCalls(t, "Close", 1)
}

func TestRunPhaseOrderForm1(t *testing.T) {
	v := form1()
	actor := &recordingActor{}
	r := newTestRunner(t, v, Options{}, actor)
	r.Run(context.Background(), newPage(), fullSubmission(v, schemas.GateYes))

	order := []string{
		"institucion", "proyecto", "recomendacion", "satisfaccion", "next",
		"atencion[0]", "dinamizadores[6]",
		"contacto_dinamizador", "aspectos_dinamizador[0]",
		"contacto_coordinador", "aspectos_satisfaccion[0]",
		"pqrs_medios:pagina web",
		"ha_reclamado", "desarrollo_propuesta[0]", "sugerencias", "finalize",
	}
	prev := -1
	for _, name := range order {
		idx := actor.indexOf(name)
		require.NotEqual(t, -1, idx, "step %s missing", name)
		assert.Greater(t, idx, prev, "step %s out of order", name)
		prev = idx
	}
}

func TestRecommendationJustification(t *testing.T) {
	for _, tt := range []struct {
		score int
		want  int
	}{{10, 0}, {9, 0}, {8, 1}, {3, 1}, {0, 1}} {
		v := form1()
		actor := &recordingActor{}
		r := newTestRunner(t, v, Options{}, actor)
		sub := fullSubmission(v, schemas.GateNo)
		sub.Recommendation = tt.score
		sub.RecommendationText = "falta comunicación"

		outcome := r.Run(context.Background(), newPage(), sub)
		require.True(t, outcome.Completed())

		steps := actor.ofKind(interaction.KindJustification)
		require.Len(t, steps, tt.want, "score %d", tt.score)
		if tt.want == 1 {
			assert.Equal(t, "falta comunicación", steps[0].Value)
			assert.Equal(t, schemas.ByID("QR~QID13"), steps[0].Locator)
		}
	}
}

func TestRecommendationJustificationOrder(t *testing.T) {
	v := form1()
	actor := &recordingActor{}
	r := newTestRunner(t, v, Options{}, actor)
	sub := fullSubmission(v, schemas.GateYes)
	sub.Recommendation = 3
	sub.RecommendationText = "poca atención"

	require.True(t, r.Run(context.Background(), newPage(), sub).Completed())

	rec := actor.indexOf("recomendacion")
	just := actor.indexOf("recomendacion_text")
	sat := actor.indexOf("satisfaccion")
	assert.Equal(t, rec+1, just)
	assert.Equal(t, just+1, sat)
	assert.Equal(t, "poca atención", actor.steps[just].Value)
	assert.Equal(t, 1, actor.count(interaction.KindJustification))
}

func TestRecommendationCellColumn(t *testing.T) {
	v := form1()
	assert.Equal(t,
		schemas.ByXPath("/html/body/div[3]/div/form/div/div[2]/div[1]/div[3]/div[1]/div[8]/div[3]/div/fieldset/div/table/tbody/tr[2]/td[1]/span/label"),
		v.Recommendation.Cell(0))
	assert.Equal(t,
		schemas.ByXPath("/html/body/div[3]/div/form/div/div[2]/div[1]/div[3]/div[1]/div[14]/div[3]/div/fieldset/div/table/tbody/tr[2]/td[11]/span/label"),
		form3().Satisfaction.Cell(10))
}

func TestSatisfactionJustification(t *testing.T) {
	for _, tt := range []struct {
		score int
		want  int
	}{{1, 1}, {6, 1}, {7, 0}, {10, 0}} {
		v := form3()
		actor := &recordingActor{}
		r := newTestRunner(t, v, Options{}, actor)
		sub := fullSubmission(v, schemas.GateNo)
		sub.Satisfaction = tt.score
		sub.SatisfactionText = "regular"

		require.True(t, r.Run(context.Background(), newPage(), sub).Completed())
		steps := actor.ofKind(interaction.KindJustification)
		require.Len(t, steps, tt.want, "score %d", tt.score)
		if tt.want == 1 {
			assert.Equal(t, "satisfaccion_text", steps[0].Name)
			assert.Equal(t, "regular", steps[0].Value)
		}
	}
}

func sectionSteps(actor *recordingActor, section string) int {
	d := 0
	prefix := section + "["
	for _, s := range actor.ofKind(interaction.KindSection) {
		if len(s.Name) > len(prefix) && s.Name[:len(prefix)] == prefix {
			d++
		}
	}
	return d
}

func TestGates(t *testing.T) {
	t.Run("Form1Yes", func(t *testing.T) {
		v := form1()
		actor := &recordingActor{}
		r := newTestRunner(t, v, Options{}, actor)
		r.Run(context.Background(), newPage(), fullSubmission(v, schemas.GateYes))
		assert.Equal(t, 7, sectionSteps(actor, "aspectos_dinamizador"))
		assert.Equal(t, 5, sectionSteps(actor, "aspectos_satisfaccion"))
	})

	t.Run("Form1No", func(t *testing.T) {
		v := form1()
		actor := &recordingActor{}
		r := newTestRunner(t, v, Options{}, actor)
		r.Run(context.Background(), newPage(), fullSubmission(v, schemas.GateNo))
		assert.Zero(t, sectionSteps(actor, "aspectos_dinamizador"))
		assert.Zero(t, sectionSteps(actor, "aspectos_satisfaccion"))
		assert.Equal(t, v.TotalRows()-12, actor.count(interaction.KindSection))
		for _, s := range actor.ofKind(interaction.KindGate) {
			assert.Equal(t, "No", s.Value)
		}
	})

	t.Run("MissingAnswerDefaultsToNo", func(t *testing.T) {
		v := form1()
		actor := &recordingActor{}
		r := newTestRunner(t, v, Options{}, actor)
		sub := fullSubmission(v, schemas.GateYes)
		delete(sub.Gates, "contacto_dinamizador")
		r.Run(context.Background(), newPage(), sub)
		assert.Zero(t, sectionSteps(actor, "aspectos_dinamizador"))
		assert.Equal(t, 5, sectionSteps(actor, "aspectos_satisfaccion"))
	})

	t.Run("Form3NutritionistBranches", func(t *testing.T) {
		v := form3()
		yes := &recordingActor{}
		sub := fullSubmission(v, schemas.GateNo)
		sub.Gates["contacto_nutricionista"] = schemas.GateYes
		newTestRunner(t, v, Options{}, yes).Run(context.Background(), newPage(), sub)
		assert.Equal(t, 5, sectionSteps(yes, "nutricionista"))
		assert.Equal(t, 4, sectionSteps(yes, "coordinador_zona"))
		assert.Equal(t, 4, sectionSteps(yes, "auxiliar_salud_nutricion"))
		assert.Zero(t, sectionSteps(yes, "profesionales_psicosocial"))

		no := &recordingActor{}
		newTestRunner(t, v, Options{}, no).Run(context.Background(), newPage(), fullSubmission(v, schemas.GateNo))
		assert.Zero(t, sectionSteps(no, "nutricionista"))
		assert.Zero(t, sectionSteps(no, "coordinador_zona"))
		assert.Equal(t, 4, sectionSteps(no, "auxiliar_salud_nutricion"))
		assert.Equal(t, 4, sectionSteps(no, "personal_administrativo"))
	})

	t.Run("DependentsFollowGateImmediately", func(t *testing.T) {
		v := form3()
		actor := &recordingActor{}
		newTestRunner(t, v, Options{}, actor).Run(context.Background(), newPage(), fullSubmission(v, schemas.GateYes))
		g := actor.indexOf("especialista_desarrollo")
		assert.Equal(t, "evaluacion_aspectos[0]", actor.steps[g+1].Name)
		assert.Less(t, actor.indexOf("evaluacion_aspectos[4]"), actor.indexOf("actividades_administrativas[0]"))
	})
}

func TestRunMultiPageVariants(t *testing.T) {
	for _, v := range []*Variant{form2(), form3(), form4()} {
		t.Run(v.ID, func(t *testing.T) {
			actor := &recordingActor{}
			page := newPage()
			outcome := newTestRunner(t, v, Options{StrictAnswers: true}, actor).Run(context.Background(), page, fullSubmission(v, schemas.GateYes))

			require.True(t, outcome.Completed(), outcome.Error)
			assert.Equal(t, 2, actor.count(interaction.KindNext))
			assert.Equal(t, 1, actor.count(interaction.KindFinalize))
			assert.Equal(t, 4, actor.count(interaction.KindGate))
			assert.Equal(t, len(v.Identification), actor.count(interaction.KindIdentification))
			page.AssertNumberOfCalls(t, "Close", 1)
		})
	}
}

func TestRunChannels(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	v := form1()
	actor := &recordingActor{}
	r := NewRunner(v, Options{}, zap.New(core), WithActorFactory(func(schemas.Page, *zap.Logger) interaction.Actor { return actor }))
	sub := fullSubmission(v, schemas.GateNo)
	sub.ComplaintChannels = []string{"Pagina web", "fax", "PAGINA WEB", "Ninguna"}

	require.True(t, r.Run(context.Background(), newPage(), sub).Completed())
	steps := actor.ofKind(interaction.KindChannel)
	require.Len(t, steps, 2)
	assert.Equal(t, schemas.ByID("QR~QID65~7"), steps[0].Locator)
	assert.Equal(t, schemas.ByID("QR~QID65~3"), steps[1].Locator)

	unmatched := logs.FilterMessage("Complaint channel not recognized, skipping.").All()
	require.Len(t, unmatched, 1)
	assert.Equal(t, "fax", unmatched[0].ContextMap()["channel"])
}

func TestRunSkipsEmptyOptionalText(t *testing.T) {
	v := form3()
	actor := &recordingActor{}
	sub := fullSubmission(v, schemas.GateNo)
	sub.Suggestions = ""
	sub.ComplaintChannels = nil
	delete(sub.Identification, "unidad")

	require.True(t, newTestRunner(t, v, Options{}, actor).Run(context.Background(), newPage(), sub).Completed())
	assert.Zero(t, actor.count(interaction.KindClosingText))
	assert.Zero(t, actor.count(interaction.KindChannel))
	assert.Equal(t, 2, actor.count(interaction.KindIdentification))
}

func TestRunContinuesPastInteractionFailures(t *testing.T) {
	v := form1()
	actor := &recordingActor{failOn: func(s interaction.Step) error {
		if s.Kind == interaction.KindGate || s.Name == "sugerencias" {
			return errors.New("element not interactable")
		}
		return nil
	}}
	outcome := newTestRunner(t, v, Options{}, actor).Run(context.Background(), newPage(), fullSubmission(v, schemas.GateYes))

	require.True(t, outcome.Completed())
	assert.Len(t, outcome.FailedInteractions, 4)
	assert.Equal(t, 1, actor.count(interaction.KindFinalize))
	// Dependents still follow the requested answer.
	assert.Equal(t, 7, sectionSteps(actor, "aspectos_dinamizador"))
}

func TestSessionClosedExactlyOnce(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		setup     func(page *mocks.MockPage, actor *recordingActor, sub *schemas.Submission)
		completed bool
		retryable bool
		navigated bool
	}{
		{
			name:      "Completed",
			setup:     func(*mocks.MockPage, *recordingActor, *schemas.Submission) {},
			completed: true,
			navigated: true,
		},
		{
			name: "NavigationFails",
			setup: func(page *mocks.MockPage, _ *recordingActor, _ *schemas.Submission) {
				page.On("Navigate", mock.Anything, mock.Anything).Return(boom)
			},
			retryable: true,
			navigated: true,
		},
		{
			name: "NextButtonFails",
			setup: func(_ *mocks.MockPage, actor *recordingActor, _ *schemas.Submission) {
				actor.failOn = func(s interaction.Step) error {
					if s.Kind == interaction.KindNext {
						return boom
					}
					return nil
				}
			},
			retryable: true,
			navigated: true,
		},
		{
			name: "PanicInSection",
			setup: func(_ *mocks.MockPage, actor *recordingActor, _ *schemas.Submission) {
				actor.failOn = func(s interaction.Step) error {
					if s.Name == "psicosocial[3]" {
						panic("driver crashed")
					}
					return nil
				}
			},
			retryable: true,
			navigated: true,
		},
		{
			name: "UnknownSectionRejectedBeforeNavigation",
			setup: func(_ *mocks.MockPage, _ *recordingActor, sub *schemas.Submission) {
				sub.Sections["inventada"] = []int{10}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := form1()
			page := new(mocks.MockPage)
			actor := &recordingActor{}
			sub := fullSubmission(v, schemas.GateYes)
			tt.setup(page, actor, &sub)
			page.On("Navigate", mock.Anything, mock.Anything).Return(nil).Maybe()
			page.On("Close", mock.Anything).Return(nil)

			outcome := newTestRunner(t, v, Options{}, actor).Run(context.Background(), page, sub)

			assert.Equal(t, tt.completed, outcome.Completed(), outcome.Error)
			if !tt.completed {
				assert.NotEmpty(t, outcome.Error)
				assert.Equal(t, tt.retryable, outcome.Retryable)
			}
			page.AssertNumberOfCalls(t, "Close", 1)
			if tt.navigated {
				page.AssertNumberOfCalls(t, "Navigate", 1)
			} else {
				page.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything)
				assert.Empty(t, actor.steps)
			}
		})
	}
}

func TestRunStrictLengthMismatch(t *testing.T) {
	v := form1()
	actor := &recordingActor{}
	page := newPage()
	sub := fullSubmission(v, schemas.GateYes)
	sub.Sections["atencion"] = []int{10, 10}

	outcome := newTestRunner(t, v, Options{StrictAnswers: true}, actor).Run(context.Background(), page, sub)
	assert.False(t, outcome.Completed())
	assert.False(t, outcome.Retryable)
	assert.Contains(t, outcome.Error, "expected 7 answers, got 2")
	assert.Empty(t, actor.steps)
	page.AssertNumberOfCalls(t, "Close", 1)
}

func TestRunCancelledContext(t *testing.T) {
	v := form1()
	ctx, cancel := context.WithCancel(context.Background())
	actor := &recordingActor{failOn: func(s interaction.Step) error {
		if s.Name == "talento_humano[0]" {
			cancel()
			return context.Canceled
		}
		return nil
	}}
	page := newPage()

	outcome := newTestRunner(t, v, Options{}, actor).Run(ctx, page, fullSubmission(v, schemas.GateYes))
	assert.False(t, outcome.Completed())
	assert.True(t, outcome.Retryable)
	assert.Contains(t, outcome.Error, "page 2 section")
	assert.Zero(t, actor.count(interaction.KindFinalize))
	page.AssertNumberOfCalls(t, "Close", 1)
}

func TestRunURLOverride(t *testing.T) {
	v := form1()
	page := newPage()
	newTestRunner(t, v, Options{URL: "http://localhost:9999/form"}, &recordingActor{}).Run(context.Background(), page, fullSubmission(v, schemas.GateNo))
	page.AssertCalled(t, "Navigate", mock.Anything, "http://localhost:9999/form")
}

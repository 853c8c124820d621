// internal/forms/machine.go
package forms

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/interaction"
)

const closeTimeout = 10 * time.Second

// Options tunes a Runner.
type Options struct {
	// URL overrides the variant's form address.
	URL string
	// LoadWait is slept after the initial navigation.
	LoadWait time.Duration
	// PageSettle is slept after every next and finalize click.
	PageSettle time.Duration
	// StrictAnswers rejects section answer lists of the wrong length instead
	// of padding or truncating them.
	StrictAnswers         bool
	ChannelMatchThreshold float64
	Interaction           interaction.Options
}

// ActorFactory binds an Actor to a page for the duration of one run.
type ActorFactory func(page schemas.Page, logger *zap.Logger) interaction.Actor

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithActorFactory replaces the default Interactor, e.g. with a recorder.
func WithActorFactory(f ActorFactory) RunnerOption {
	return func(r *Runner) { r.newActor = f }
}

// Runner is the page state machine. One Runner serves every run of its
// variant; all per-run state lives in an execution.
type Runner struct {
	variant  *Variant
	opts     Options
	matcher  *ChannelMatcher
	newActor ActorFactory
	logger   *zap.Logger
}

// NewRunner creates the state machine for v.
func NewRunner(v *Variant, opts Options, logger *zap.Logger, options ...RunnerOption) *Runner {
	r := &Runner{
		variant: v,
		opts:    opts,
		matcher: NewChannelMatcher(v.Channels, opts.ChannelMatchThreshold),
		logger:  logger.Named("runner").With(zap.String("variant", v.ID)),
	}
	r.newActor = func(page schemas.Page, logger *zap.Logger) interaction.Actor {
		return interaction.New(page, r.opts.Interaction, logger)
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Variant returns the table the runner executes.
func (r *Runner) Variant() *Variant { return r.variant }

// URL returns the address the run navigates to.
func (r *Runner) URL() string {
	if r.opts.URL != "" {
		return r.opts.URL
	}
	return r.variant.URL
}

// Validate checks the submission against the variant tables without touching
// the page: every section name must be known, and in strict mode every
// supplied answer list must have the section's exact length.
func (r *Runner) Validate(sub schemas.Submission) error {
	for name, answers := range sub.Sections {
		d, err := r.variant.Sections.Lookup(name)
		if err != nil {
			return err
		}
		if _, err := Normalize(name, answers, len(d.RowIDs), r.opts.StrictAnswers); err != nil {
			return err
		}
	}
	for _, page := range r.variant.Pages {
		for _, p := range page {
			var names []string
			switch p.Kind {
			case PhaseSection:
				names = []string{p.Section}
			case PhaseGate:
				names = append(append(names, p.Gate.OnYes...), p.Gate.OnNo...)
			}
			for _, name := range names {
				if _, err := r.variant.Sections.Lookup(name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Run fills and submits the form on page. Run takes ownership of page and
// closes it exactly once before returning, whatever the outcome, including
// a panic in any phase.
func (r *Runner) Run(ctx context.Context, page schemas.Page, sub schemas.Submission) (outcome schemas.RunOutcome) {
	start := time.Now()
	e := &execution{
		runner: r,
		sub:    sub,
		page:   page,
		logger: r.logger,
		phase:  "validation",
	}
	e.actor = r.newActor(page, r.logger)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Form run panicked.", zap.String("phase", e.phase), zap.Any("panic", rec), zap.Stack("stack"))
			outcome = e.fail(&RunError{Phase: e.phase, Err: fmt.Errorf("panic: %v", rec)})
		}
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := page.Close(closeCtx); err != nil {
			r.logger.Warn("Failed to close browser page.", zap.Error(err))
		}
	}()

	r.logger.Info("Starting form run.", zap.String("url", r.URL()))
	if err := r.Validate(sub); err != nil {
		r.logger.Error("Submission rejected before navigation.", zap.Error(err))
		return e.fail(err)
	}
	if err := e.run(ctx); err != nil {
		r.logger.Error("Form run failed.", zap.String("phase", e.phase), zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return e.fail(err)
	}

	r.logger.Info("Form run completed.",
		zap.Int("failed_interactions", len(e.failures)),
		zap.Duration("elapsed", time.Since(start)))
	return schemas.RunOutcome{Status: schemas.RunCompleted, FailedInteractions: e.failures}
}

// FillSection fills one named section through actor. Interaction failures are
// returned, not raised; the error is a ConfigurationError or a context error.
func (r *Runner) FillSection(ctx context.Context, actor interaction.Actor, name string, answers []int) ([]schemas.InteractionFailure, error) {
	e := &execution{runner: r, actor: actor, logger: r.logger, phase: "section " + name}
	err := e.fillSection(ctx, name, answers)
	return e.failures, err
}

// execution is the state of one run.
type execution struct {
	runner   *Runner
	sub      schemas.Submission
	page     schemas.Page
	actor    interaction.Actor
	logger   *zap.Logger
	phase    string
	failures []schemas.InteractionFailure
}

func (e *execution) fail(err error) schemas.RunOutcome {
	return schemas.RunOutcome{
		Status:             schemas.RunFailed,
		Error:              err.Error(),
		FailedInteractions: e.failures,
		Retryable:          !IsConfigurationError(err),
	}
}

func (e *execution) run(ctx context.Context) error {
	v := e.runner.variant
	opts := e.runner.opts

	e.phase = "navigation"
	if err := e.page.Navigate(ctx, e.runner.URL()); err != nil {
		return &RunError{Phase: e.phase, Err: err}
	}
	if err := e.wait(ctx, opts.LoadWait); err != nil {
		return err
	}

	e.phase = "identification"
	for _, f := range v.Identification {
		value := e.sub.Identification[f.Name]
		if value == "" {
			continue
		}
		if err := e.perform(ctx, interaction.Step{
			Kind: interaction.KindIdentification, Name: f.Name,
			Action: interaction.ActionType, Locator: f.Locator, Value: value,
		}); err != nil {
			return err
		}
	}

	e.phase = "recommendation"
	if err := e.answerScale(ctx, v.Recommendation, e.sub.Recommendation, e.sub.RecommendationText); err != nil {
		return err
	}
	e.phase = "satisfaction"
	if err := e.answerScale(ctx, v.Satisfaction, e.sub.Satisfaction, e.sub.SatisfactionText); err != nil {
		return err
	}

	e.phase = "page 1 next"
	if err := e.navigate(ctx, interaction.KindNext, v.FirstNext); err != nil {
		return err
	}

	for i, page := range v.Pages {
		for _, p := range page {
			e.phase = fmt.Sprintf("page %d %s", i+2, p.Kind)
			if err := e.runPhase(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *execution) runPhase(ctx context.Context, p Phase) error {
	switch p.Kind {
	case PhaseSection:
		return e.fillSection(ctx, p.Section, e.sub.Sections[p.Section])
	case PhaseGate:
		return e.answerGate(ctx, p.Gate)
	case PhaseChannels:
		return e.selectChannels(ctx)
	case PhaseSuggestions:
		if e.sub.Suggestions == "" {
			return nil
		}
		s := e.runner.variant.Suggestions
		return e.perform(ctx, interaction.Step{
			Kind: interaction.KindClosingText, Name: s.Name,
			Action: interaction.ActionType, Locator: s.Locator, Value: e.sub.Suggestions,
		})
	case PhaseNext:
		return e.navigate(ctx, interaction.KindNext, p.Button)
	case PhaseFinalize:
		return e.navigate(ctx, interaction.KindFinalize, p.Button)
	}
	return fmt.Errorf("unknown phase %s", p.Kind)
}

func (e *execution) answerScale(ctx context.Context, q ScaleQuestion, value int, justification string) error {
	err := e.perform(ctx, interaction.Step{
		Kind: interaction.KindScale, Name: q.Name,
		Action: interaction.ActionClick, Locator: q.Cell(value), Value: strconv.Itoa(value),
	})
	if err != nil || !q.NeedsJustification(value) {
		return err
	}
	return e.perform(ctx, interaction.Step{
		Kind: interaction.KindJustification, Name: q.Justification.Name,
		Action: interaction.ActionType, Locator: q.Justification.Locator, Value: justification,
	})
}

// answerGate clicks the answer and fills the sections it reveals right away,
// before anything that follows the gate on the page.
func (e *execution) answerGate(ctx context.Context, g Gate) error {
	answer := e.sub.Gate(g.Name)
	loc, dependents := g.Answer(answer)
	err := e.perform(ctx, interaction.Step{
		Kind: interaction.KindGate, Name: g.Name,
		Action: interaction.ActionClick, Locator: loc, Value: string(answer),
	})
	if err != nil {
		return err
	}
	for _, name := range dependents {
		if err := e.fillSection(ctx, name, e.sub.Sections[name]); err != nil {
			return err
		}
	}
	return nil
}

func (e *execution) selectChannels(ctx context.Context) error {
	group := e.runner.variant.Channels
	choices, unmatched := e.runner.matcher.Resolve(e.sub.ComplaintChannels)
	for _, name := range unmatched {
		e.logger.Warn("Complaint channel not recognized, skipping.", zap.String("channel", name))
	}
	for _, c := range choices {
		if err := e.perform(ctx, interaction.Step{
			Kind: interaction.KindChannel, Name: "pqrs_medios:" + c.Key,
			Action: interaction.ActionClick, Locator: group.Checkbox(c.ChoiceID), Value: c.Key,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *execution) fillSection(ctx context.Context, name string, answers []int) error {
	d, err := e.runner.variant.Sections.Lookup(name)
	if err != nil {
		return err
	}
	values, err := Normalize(name, answers, len(d.RowIDs), e.runner.opts.StrictAnswers)
	if err != nil {
		return err
	}
	e.logger.Debug("Filling section.", zap.String("section", name), zap.String("display_name", d.DisplayName), zap.Ints("values", values))
	for i, row := range d.RowIDs {
		if err := e.perform(ctx, interaction.Step{
			Kind:    interaction.KindSection,
			Name:    fmt.Sprintf("%s[%d]", name, i),
			Action:  interaction.ActionClick,
			Locator: d.Cell(row, values[i]),
			Value:   strconv.Itoa(values[i]),
		}); err != nil {
			return err
		}
	}
	return nil
}

// perform records an interaction failure and carries on. Only a cancelled
// context stops the run.
func (e *execution) perform(ctx context.Context, step interaction.Step) error {
	err := e.actor.Perform(ctx, step)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &RunError{Phase: e.phase, Err: ctx.Err()}
	}
	e.failures = append(e.failures, schemas.InteractionFailure{
		Step:    step.Name,
		Locator: step.Locator,
		Value:   step.Value,
		Error:   err.Error(),
	})
	return nil
}

// navigate clicks a page button. Failing to leave a page is fatal: nothing
// after it can be reached.
func (e *execution) navigate(ctx context.Context, kind interaction.Kind, button schemas.Locator) error {
	err := e.actor.Perform(ctx, interaction.Step{
		Kind: kind, Name: string(kind), Action: interaction.ActionClick, Locator: button,
	})
	if err != nil {
		return &RunError{Phase: e.phase, Err: err}
	}
	return e.wait(ctx, e.runner.opts.PageSettle)
}

func (e *execution) wait(ctx context.Context, d time.Duration) error {
	if err := interaction.Wait(ctx, d); err != nil {
		return &RunError{Phase: e.phase, Err: err}
	}
	return nil
}

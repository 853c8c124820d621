// internal/interaction/interactor.go
package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

const (
	DefaultElementTimeout = 10 * time.Second
	DefaultSettleDelay    = 300 * time.Millisecond
)

var errElementMissing = errors.New("element not present in document")

// Options tunes the interactor's waits.
type Options struct {
	// ElementTimeout bounds each strategy attempt.
	ElementTimeout time.Duration
	// SettleDelay is slept after a successful interaction so that content
	// revealed by the click can render.
	SettleDelay time.Duration
}

// Interactor performs steps against a Page, falling back through
// progressively less direct strategies before giving up.
type Interactor struct {
	page   schemas.Page
	opts   Options
	logger *zap.Logger
}

var _ Actor = (*Interactor)(nil)

type strategy struct {
	name string
	run  func(ctx context.Context) error
}

// New creates an interactor bound to one page.
func New(page schemas.Page, opts Options, logger *zap.Logger) *Interactor {
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = DefaultElementTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	return &Interactor{page: page, opts: opts, logger: logger.Named("interactor")}
}

// Perform runs the step's strategies in order and returns on the first one
// that succeeds. When all fail it returns an *ElementInteractionError. A
// cancelled ctx stops the cascade immediately.
func (i *Interactor) Perform(ctx context.Context, step Step) error {
	var strategies []strategy
	switch step.Action {
	case ActionClick:
		strategies = i.clickStrategies(step)
	case ActionType:
		strategies = i.typeStrategies(step)
	default:
		return fmt.Errorf("unsupported action %s", step.Action)
	}

	attempts := make([]error, 0, len(strategies))
	for _, s := range strategies {
		attemptCtx, cancel := context.WithTimeout(ctx, i.opts.ElementTimeout)
		err := s.run(attemptCtx)
		cancel()
		if err == nil {
			i.logger.Debug("Interaction succeeded.",
				zap.String("step", step.Name),
				zap.String("strategy", s.name),
				zap.Stringer("locator", step.Locator))
			return Wait(ctx, i.opts.SettleDelay)
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", s.name, err))
		if ctx.Err() != nil {
			break
		}
	}

	ierr := &ElementInteractionError{
		Action:   step.Action,
		Locator:  step.Locator,
		Value:    step.Value,
		Attempts: attempts,
	}
	i.logger.Warn("All interaction strategies failed.",
		zap.String("step", step.Name),
		zap.String("kind", string(step.Kind)),
		zap.Stringer("locator", step.Locator),
		zap.String("value", step.Value),
		zap.Error(ierr))
	if ctx.Err() != nil {
		return errors.Join(ierr, ctx.Err())
	}
	return ierr
}

func (i *Interactor) clickStrategies(step Step) []strategy {
	strategies := []strategy{{
		name: "direct",
		run:  func(ctx context.Context) error { return i.page.Click(ctx, step.Locator) },
	}}
	if label, ok := step.Locator.LabelFor(); ok {
		strategies = append(strategies, strategy{
			name: "label",
			run:  func(ctx context.Context) error { return i.page.Click(ctx, label) },
		})
	}
	script := fmt.Sprintf(`(function() {
		const el = %s;
		if (!el) { return false; }
		el.scrollIntoView({block: 'center'});
		if ('checked' in el) { el.checked = true; }
		el.dispatchEvent(new Event('change', { bubbles: true }));
		el.dispatchEvent(new Event('click', { bubbles: true }));
		return true;
	})()`, step.Locator.JSElement())
	return append(strategies, strategy{
		name: "script",
		run:  func(ctx context.Context) error { return i.evaluateFound(ctx, script) },
	})
}

func (i *Interactor) typeStrategies(step Step) []strategy {
	text, _ := json.Marshal(step.Value)
	script := fmt.Sprintf(`(function() {
		const el = %s;
		if (!el) { return false; }
		el.scrollIntoView({block: 'center'});
		el.value = %s;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, step.Locator.JSElement(), text)

	return []strategy{
		{
			name: "direct",
			run:  func(ctx context.Context) error { return i.page.Type(ctx, step.Locator, step.Value) },
		},
		{
			name: "focus",
			run: func(ctx context.Context) error {
				if err := i.page.Click(ctx, step.Locator); err != nil {
					return err
				}
				return i.page.Type(ctx, step.Locator, step.Value)
			},
		},
		{
			name: "script",
			run:  func(ctx context.Context) error { return i.evaluateFound(ctx, script) },
		},
	}
}

func (i *Interactor) evaluateFound(ctx context.Context, script string) error {
	var found bool
	if err := i.page.Evaluate(ctx, script, &found); err != nil {
		return err
	}
	if !found {
		return errElementMissing
	}
	return nil
}

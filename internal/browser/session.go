// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("browser session is closed")

// Session is one browser tab owned by a single run. It implements schemas.Page.
type Session struct {
	id     string
	ctx    context.Context // chromedp tab context; carries the CDP target.
	cancel context.CancelFunc
	logger *zap.Logger

	navigationTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

var _ schemas.Page = (*Session)(nil)

// newSession wraps an initialized chromedp tab context. cancel must release
// the tab and whatever allocator it was launched from.
func newSession(ctx context.Context, cancel context.CancelFunc, navigationTimeout time.Duration, logger *zap.Logger) *Session {
	id := uuid.NewString()
	if navigationTimeout <= 0 {
		navigationTimeout = 90 * time.Second
	}
	return &Session{
		id:                id,
		ctx:               ctx,
		cancel:            cancel,
		logger:            logger.With(zap.String("session_id", id)),
		navigationTimeout: navigationTimeout,
		closed:            make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// RunActions executes chromedp actions on the tab, bounded by ctx as well as
// the session lifetime.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil {
		// Prefer the caller's context error so timeouts classify cleanly.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrSessionClosed, s.ctx.Err())
		}
	}
	return err
}

// Navigate loads url and waits until the document body is ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating session.", zap.String("url", url))

	navCtx, navCancel := context.WithTimeout(ctx, s.navigationTimeout)
	defer navCancel()

	err := s.RunActions(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, s.navigationTimeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Click scrolls the element into view, waits for visibility and clicks it.
// The caller's ctx bounds the wait.
func (s *Session) Click(ctx context.Context, loc schemas.Locator) error {
	sel, opts := query(loc)
	err := s.RunActions(ctx,
		chromedp.ScrollIntoView(sel, opts...),
		chromedp.WaitVisible(sel, opts...),
		chromedp.Click(sel, opts...),
	)
	if err != nil {
		return classify(ctx, "click", loc, err)
	}
	s.logger.Debug("Click successful.", zap.Stringer("locator", loc))
	return nil
}

// Type clears the element with JavaScript and sends text as key events.
func (s *Session) Type(ctx context.Context, loc schemas.Locator, text string) error {
	sel, opts := query(loc)

	// Clearing through JS avoids SetValue failing on transiently
	// non-interactable nodes.
	jsClear := fmt.Sprintf(`(function() {
		const el = %s;
		if (!el || el.disabled || el.readOnly) { return false; }
		el.value = "";
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, loc.JSElement())

	var cleared bool
	err := s.RunActions(ctx,
		chromedp.ScrollIntoView(sel, opts...),
		chromedp.WaitVisible(sel, opts...),
		chromedp.Evaluate(jsClear, &cleared, returnByValue),
	)
	if err != nil {
		return classify(ctx, "clear", loc, err)
	}
	if !cleared {
		return fmt.Errorf("clear failed for %s: element missing, disabled or read-only", loc)
	}

	if err := s.RunActions(ctx, chromedp.SendKeys(sel, text, opts...)); err != nil {
		return classify(ctx, "type", loc, err)
	}
	s.logger.Debug("Type successful.", zap.Stringer("locator", loc), zap.Int("text_length", len(text)))
	return nil
}

// Evaluate runs script in the page and decodes the result into res.
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := s.RunActions(ctx, chromedp.Evaluate(script, res, returnByValue)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// Close cancels the tab and its allocator. Only the first call has any effect.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closed)
		done := make(chan error, 1)
		go func() {
			// chromedp.Cancel closes the target gracefully before cancelling.
			done <- chromedp.Cancel(s.ctx)
		}()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("failed to close browser tab: %w", err)
			}
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("browser close interrupted: %w", ctx.Err())
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.logger.Debug("Browser session closed.")
	})
	return s.closeErr
}

func returnByValue(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithAwaitPromise(true)
}

// query maps a locator to a chromedp selector and query options. Id locators
// go through XPath because survey ids are not valid CSS identifiers.
func query(loc schemas.Locator) (string, []chromedp.QueryOption) {
	if xp, ok := loc.XPath(); ok {
		return xp, []chromedp.QueryOption{chromedp.BySearch}
	}
	return loc.Value, []chromedp.QueryOption{chromedp.ByQuery}
}

func classify(ctx context.Context, action string, loc schemas.Locator, err error) error {
	if errors.Is(err, ErrSessionClosed) {
		return err
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out for %s: %w", action, loc, ctx.Err())
	}
	return fmt.Errorf("%s failed for %s: %w", action, loc, err)
}

// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1 that is also cancelled when ctx2
// is. Values come from ctx1 only: chromedp keeps the tab connection there,
// while ctx2 carries the caller's deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combinedCtx, func() {
		stop()
		cancel()
	}
}

// valueOnlyContext keeps its parent's values but none of its cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is not cancelled
// with it. Used for cleanup that must outlive the run that triggered it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}

package schemas

import "context"

// -- Browser Interfaces --

// Page is the capability surface the form runner needs from a browser tab.
// Each element method blocks until the element is usable or ctx expires.
type Page interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// Click scrolls the element into view, waits for it to be visible and clicks it.
	Click(ctx context.Context, loc Locator) error
	// Type clears the element's current value and types text into it.
	Type(ctx context.Context, loc Locator, text string) error
	// Evaluate runs a JavaScript expression and decodes its result into res (may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error
	// Close releases the browser tab and its process. Safe to call more than once.
	Close(ctx context.Context) error
}

// PageLauncher creates exclusively owned pages, one per run.
type PageLauncher interface {
	Launch(ctx context.Context) (Page, error)
}

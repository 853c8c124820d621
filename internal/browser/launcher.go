// internal/browser/launcher.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/config"
)

// Launcher starts one dedicated browser per Launch call. Browsers are never
// shared or pooled between runs.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ schemas.PageLauncher = (*Launcher)(nil)

// NewLauncher creates a launcher for the given browser settings.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger.Named("browser")}
}

// Launch starts a browser (or attaches to the remote one) and opens a tab.
// The allocator is detached from ctx so the browser lives until the returned
// page is closed, not until the launch context ends.
func (l *Launcher) Launch(ctx context.Context) (schemas.Page, error) {
	allocCtx, allocCancel := NewAllocator(Detach(ctx), l.cfg)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Debugf),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// The first Run starts the browser process and binds it to the context it
	// is given, so it must run on tabCtx itself. ctx only bounds the startup.
	stopWatch := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	if !stopWatch() {
		cancel()
		return nil, fmt.Errorf("browser startup interrupted: %w", ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	s := newSession(tabCtx, cancel, l.cfg.NavigationTimeout, l.logger)
	s.logger.Info("Browser session started.", zap.Bool("headless", l.cfg.Headless), zap.Bool("remote", l.cfg.RemoteURL != ""))
	return s, nil
}

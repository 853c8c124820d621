// internal/browser/allocator.go
package browser

import (
	"context"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/formrunner/internal/config"
)

// ExecOptions translates the browser config into chromedp allocator options.
func ExecOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+8)
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		// Required on hardened hosts and inside containers.
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	// DefaultExecAllocatorOptions enables headless; turn it back off explicitly.
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	for _, arg := range cfg.Args {
		name, value, ok := parseFlag(arg)
		if !ok {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag turns "--flag" or "flag=value" into a chromedp flag name and value.
// Boolean flags map to true.
func parseFlag(arg string) (string, interface{}, bool) {
	arg = strings.TrimSpace(arg)
	key, value, hasValue := strings.Cut(arg, "=")
	key = strings.TrimLeft(key, "-")
	if key == "" {
		return "", nil, false
	}
	if !hasValue {
		return key, true, true
	}
	return key, value, true
}

// NewAllocator returns an allocator context connected to a remote browser when
// cfg.RemoteURL is set, or one that launches a local browser process otherwise.
func NewAllocator(ctx context.Context, cfg config.BrowserConfig) (context.Context, context.CancelFunc) {
	if cfg.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	}
	return chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
}

// File: cmd/inspect.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/browser"
	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/forms"
	"github.com/xkilldash9x/formrunner/internal/observability"
)

const closeTimeout = 10 * time.Second

// collectIDsScript returns the ids of every survey element on the page.
const collectIDsScript = `Array.from(document.querySelectorAll('[id^="QR~"]'), el => el.id)`

func newInspectCmd() *cobra.Command {
	var (
		variant string
		headed  bool
	)

	cmd := &cobra.Command{
		Use:   "inspect --variant <form>",
		Short: "Print the survey element ids on a form's first page",
		Long: `inspect opens the variant's URL and lists the QR~ element ids it finds. Use it
to check the locator tables after the survey has been edited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if headed {
				cfg.SetBrowserHeadless(false)
			}
			logger := observability.GetLogger()
			launcher := browser.NewLauncher(cfg.Browser(), logger)
			return runInspect(cmd.Context(), cfg, logger, launcher, variant, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "form variant to inspect")
	cmd.Flags().BoolVar(&headed, "headed", false, "show the browser window")
	_ = cmd.MarkFlagRequired("variant")
	return cmd
}

func runInspect(ctx context.Context, cfg config.Interface, logger *zap.Logger, launcher schemas.PageLauncher, variant string, out io.Writer) (err error) {
	runner, err := forms.NewRegistry(cfg.Forms(), logger).GetRunner(variant)
	if err != nil {
		return err
	}

	page, err := launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := page.Close(closeCtx); cerr != nil {
			logger.Warn("Failed to close browser.", zap.Error(cerr))
		}
	}()

	if err := page.Navigate(ctx, runner.URL()); err != nil {
		return err
	}
	if wait := cfg.Forms().LoadWait; wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var ids []string
	if err := page.Evaluate(ctx, collectIDsScript, &ids); err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	logger.Info("Inspection finished.", zap.String("variant", variant), zap.Int("elements", len(ids)))
	return nil
}

// File: cmd/submit.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/api"
	"github.com/xkilldash9x/formrunner/internal/browser"
	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/forms"
	"github.com/xkilldash9x/formrunner/internal/observability"
	"github.com/xkilldash9x/formrunner/internal/worker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newSubmitCmd() *cobra.Command {
	var (
		variant string
		file    string
		headed  bool
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "submit --variant <form> --file <payload.json>",
		Short: "Fill and submit one form synchronously",
		Long: `submit validates a JSON payload, the same body POST /api/v1/forms/<variant>
accepts, and runs it in a browser right away. The outcome is printed as JSON.
Use --file - to read the payload from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if headed {
				cfg.SetBrowserHeadless(false)
			}
			if cmd.Flags().Changed("strict") {
				cfg.SetFormsStrictAnswers(strict)
			}

			body, err := readPayload(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			launcher := browser.NewLauncher(cfg.Browser(), logger)
			return runSubmit(cmd.Context(), cfg, logger, launcher, variant, body, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "", "form variant to fill (form1, form2, form3, form4)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the JSON payload, or - for stdin")
	cmd.Flags().BoolVar(&headed, "headed", false, "show the browser window")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject section answer lists whose length does not match the form")
	_ = cmd.MarkFlagRequired("variant")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		body, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return body, nil
}

// runSubmit runs one submission through the same worker the engine uses,
// without a store or retries. It returns an error when the run fails.
func runSubmit(ctx context.Context, cfg config.Interface, logger *zap.Logger, launcher schemas.PageLauncher, variant string, body []byte, out io.Writer) error {
	registry := forms.NewRegistry(cfg.Forms(), logger)
	runner, err := registry.GetRunner(variant)
	if err != nil {
		return err
	}

	sub, err := api.DecodeSubmission(variant, body)
	if err != nil {
		var verr *api.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid submission: %s", describeValidation(verr))
		}
		return err
	}
	if err := runner.Validate(sub); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}

	formWorker, err := worker.NewFormWorker(cfg, logger, launcher, worker.WithRegistry(registry))
	if err != nil {
		return err
	}

	if hard := cfg.Engine().HardTimeLimit; hard > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hard)
		defer cancel()
	}

	job := &schemas.Job{ID: uuid.NewString(), Variant: variant, Status: schemas.JobRunning, Attempts: 1}
	outcome := formWorker.ProcessJob(ctx, job, sub)

	encoded, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	fmt.Fprintln(out, string(encoded))

	if !outcome.Completed() {
		return fmt.Errorf("form run failed: %s", outcome.Error)
	}
	return nil
}

func describeValidation(verr *api.ValidationError) string {
	if len(verr.Details) == 0 {
		return verr.Message
	}
	parts := make([]string, len(verr.Details))
	for i, d := range verr.Details {
		parts[i] = d.Field + ": " + d.Message
	}
	return strings.Join(parts, "; ")
}

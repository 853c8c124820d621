// File: cmd/variants.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/internal/api"
	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/forms"
	"github.com/xkilldash9x/formrunner/internal/observability"
)

func newVariantsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "variants",
		Short: "List the form variants with their sections and gates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runVariants(cfg, observability.GetLogger(), cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the table as JSON")
	return cmd
}

func runVariants(cfg config.Interface, logger *zap.Logger, out io.Writer, asJSON bool) error {
	variants := api.DescribeVariants(forms.NewRegistry(cfg.Forms(), logger))
	if asJSON {
		encoded, err := json.MarshalIndent(variants, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode variants: %w", err)
		}
		fmt.Fprintln(out, string(encoded))
		return nil
	}

	for _, v := range variants {
		fmt.Fprintf(out, "%s  %s\n", v.ID, v.Title)
		fmt.Fprintf(out, "  url:            %s\n", v.URL)
		fmt.Fprintf(out, "  identification: %s\n", strings.Join(v.Identification, ", "))
		fmt.Fprintf(out, "  sections (%d rows):\n", v.TotalRows)
		for _, s := range v.Sections {
			fmt.Fprintf(out, "    %-28s %2d  %s\n", s.Name, s.Rows, s.DisplayName)
		}
		fmt.Fprintln(out, "  gates:")
		for _, g := range v.Gates {
			fmt.Fprintf(out, "    %-28s si: %s  no: %s\n", g.Name, listOrDash(g.OnYes), listOrDash(g.OnNo))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func listOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

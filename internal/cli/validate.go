package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aem/internal/synthesis"
)

func newValidateReportCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-report <project_id> <report-file>",
		Short: "Check a report against the claim ledger",
		Long: `validate-report checks that every claim_ref cited by the report exists in
the project's ledger, that factual sentences carry a reference, and that
tentative claims are labelled as such.

The status is written to synthesis_contract_status.json and printed to
stdout. In observe mode the report is always accepted; in enforce and
strict an invalid report is rejected and the previous report is kept.

Example:
  aem-settle validate-report remote-work draft.md
  aem-settle validate-report remote-work draft.html --mode enforce`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read report: %w", err)
			}

			p, err := o.pipeline()
			if err != nil {
				return err
			}
			status, err := p.ValidateReport(cmd.Context(), args[0], string(report))

			var cerr *synthesis.ContractError
			if err != nil && !errors.As(err, &cerr) {
				return err
			}
			if werr := writeJSON(cmd.OutOrStdout(), status); werr != nil {
				return werr
			}
			return err
		},
	}
}

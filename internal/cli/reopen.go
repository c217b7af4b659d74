package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReopenCmd(o *options) *cobra.Command {
	var (
		reason string
		check  bool
	)

	reopenCmd := &cobra.Command{
		Use:   "reopen <project_id> [claim_ref]",
		Short: "Reopen a retired claim or run the reopen triggers",
		Long: `reopen moves a retired claim back to contested as a new claim version.
The retired version stays in the ledger unchanged.

With --check, the reopen triggers (contradiction delta, decay threshold)
are evaluated over the whole ledger and matching claims are contested.

Example:
  aem-settle reopen remote-work cl_12@2 --reason "new replication published"
  aem-settle reopen remote-work --check`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline()
			if err != nil {
				return err
			}

			if check {
				outcomes, err := p.CheckReopen(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), outcomes)
			}

			if len(args) != 2 {
				return fmt.Errorf("claim_ref is required unless --check is set")
			}
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}
			c, err := p.Reopen(cmd.Context(), args[0], args[1], reason)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), c)
		},
	}

	reopenCmd.Flags().StringVar(&reason, "reason", "", "why the claim is reopened")
	reopenCmd.Flags().BoolVar(&check, "check", false, "evaluate reopen triggers over the ledger")
	return reopenCmd
}

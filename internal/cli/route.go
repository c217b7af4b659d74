package cli

import (
	"github.com/spf13/cobra"
)

func newRouteCmd(o *options) *cobra.Command {
	var tokens int

	routeCmd := &cobra.Command{
		Use:   "route <project_id> <task>",
		Short: "Recommend a compute lane and model for a task",
		Long: `route asks the compute governor which lane should serve a task, using the
project's persisted question graph, evidence index and budget.

Routine tasks (extraction, dedupe, scoring, classification) always use the
cheap lane. Other tasks use the strong lane when the expected information
gain per token clears governor.min_ig_per_token.

Example:
  aem-settle route remote-work synthesis
  aem-settle route remote-work falsification --tokens 4000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline()
			if err != nil {
				return err
			}
			d, err := p.Route(cmd.Context(), args[0], args[1], tokens)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), d)
		},
	}

	routeCmd.Flags().IntVar(&tokens, "tokens", 1000, "expected tokens for the task")
	return routeCmd
}

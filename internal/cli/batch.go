package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/worker"
)

func newBatchCmd(o *options) *cobra.Command {
	var (
		concurrency  int
		batchTimeout time.Duration
	)

	batchCmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Settle multiple projects from a file in parallel",
		Long: `Batch settles several projects concurrently:
- Read project ids from the input file (one per line, # comments allowed)
- Settle projects in parallel with a configurable worker count
- Print one JSON result per project, in input order

Example:
  aem-settle batch projects.txt
  aem-settle batch projects.txt --concurrency 8 --timeout 30m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency <= 0 {
				concurrency = o.cfg.Concurrency.Workers
			}
			return runBatch(cmd, o, args[0], concurrency, batchTimeout)
		},
	}

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", time.Hour, "total timeout for batch processing")
	return batchCmd
}

func runBatch(cmd *cobra.Command, o *options, file string, concurrency int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	p, err := o.pipeline()
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(stderr, "  Input file:   %s\n", file)
	_, _ = fmt.Fprintf(stderr, "  Workers:      %d\n", concurrency)
	_, _ = fmt.Fprintf(stderr, "  Timeout:      %v\n\n", timeout)

	processor := worker.NewBatchProcessor(p, concurrency, o.logger)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	out := make([]*model.SettleResult, 0, len(results))
	for _, r := range results {
		res := r.Result
		if res == nil {
			res = &model.SettleResult{ProjectID: r.ProjectID, Steps: []string{}}
		}
		if r.Error != nil && res.Error == "" {
			res.Error = r.Error.Error()
		}

		if r.OK() {
			_, _ = fmt.Fprintf(stderr, "✓ %s (integrity %.2f, deadlock %.2f, convergence %.2f) %v\n",
				r.ProjectID, res.OracleIntegrityRate, res.DeadlockRate, res.TentativeConvergenceRate,
				r.Duration.Round(time.Millisecond))
		} else {
			_, _ = fmt.Fprintf(stderr, "✗ %s: %s\n", r.ProjectID, res.Error)
		}
		out = append(out, res)
	}

	ok, failed := worker.Summarize(results)
	_, _ = fmt.Fprintf(stderr, "\n  Total: %d  Success: %d  Failures: %d\n", len(results), ok, failed)

	if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if failed > 0 {
		return ErrNotOK
	}
	return nil
}

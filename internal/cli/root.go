package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/pipeline"
)

// Version is the aem-settle release
const Version = "v0.2.0"

// ErrNotOK is returned when a command completed but its result reports failure
var ErrNotOK = errors.New("result not ok")

// options holds the state shared by every command of one invocation
type options struct {
	cfgFile      string
	verbose      bool
	mode         string
	projectsRoot string
	reportFile   string

	v      *viper.Viper
	cfg    *model.Config
	logger *zap.Logger
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the aem-settle command tree
func NewRootCmd() *cobra.Command {
	o := &options{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "aem-settle <project_id>",
		Short: "aem-settle - adversarial settlement of a research claim ledger",
		Long: `aem-settle runs the AEM settlement stages for one research project:
schema, ledger upgrade, question graph, evidence index, triage,
contradictions, attacks, falsification gate, market, portfolio and
episode metrics.

The result is printed to stdout as JSON. The exit code is 1 when the
settlement is not ok.

Example:
  aem-settle remote-work
  aem-settle remote-work --mode strict
  aem-settle remote-work --report draft.md`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettle(cmd, o, args[0])
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.cfgFile, "config", "", "config file (default: $HOME/.aem/config.yaml)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&o.mode, "mode", "", "enforcement mode (observe, enforce, strict)")
	pf.StringVar(&o.projectsRoot, "projects-root", "", "directory holding project directories")

	_ = o.v.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = o.v.BindPFlag("enforcement_mode", pf.Lookup("mode"))
	_ = o.v.BindPFlag("projects_root", pf.Lookup("projects-root"))

	rootCmd.Flags().StringVar(&o.reportFile, "report", "", "check this report against the synthesis contract after settling")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(o),
		newBatchCmd(o),
		newValidateReportCmd(o),
		newReopenCmd(o),
		newRouteCmd(o),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// version needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "aem-settle %s\n", Version)
		},
	}
}

// init loads configuration and builds the logger
func (o *options) init() error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level, o.verbose)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	if used := o.v.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", zap.String("path", used))
	}
	return nil
}

func (o *options) pipeline() (*pipeline.Pipeline, error) {
	p, err := pipeline.New(o.cfg, pipeline.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return p, nil
}

// writeJSON prints v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func runSettle(cmd *cobra.Command, o *options, projectID string) error {
	p, err := o.pipeline()
	if err != nil {
		return err
	}

	var res *model.SettleResult
	if o.reportFile != "" {
		report, rerr := os.ReadFile(o.reportFile)
		if rerr != nil {
			return fmt.Errorf("read report: %w", rerr)
		}
		res, err = p.SettleAndValidate(cmd.Context(), projectID, string(report))
	} else {
		res, err = p.Settle(cmd.Context(), projectID)
	}

	if res != nil {
		if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if !res.OK {
		return ErrNotOK
	}
	return nil
}

// Command heartml explores a heart-disease dataset and trains a logistic
// regression and a random forest to predict the target column.
//
//	heartml describe --data heart.csv
//	heartml run --data heart.csv --cv-folds 5 --report
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartml/config"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
	"github.com/YuminosukeSato/heartml/study"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// settings holds flag values. Only flags the user actually set override
// the configuration read from the environment.
type settings struct {
	envFile   string
	noColor   bool
	noPlots   bool
	noStratif bool
	cfg       config.Config
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	s := &settings{cfg: *config.Default()}

	root := &cobra.Command{
		Use:           "heartml",
		Short:         "Heart disease exploration and classification",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&s.envFile, "env-file", config.DefaultEnvFile, "dotenv file with HEARTML_* settings")
	pf.StringVarP(&s.cfg.DataPath, "data", "d", s.cfg.DataPath, "dataset path (.csv or .xlsx)")
	pf.StringVar(&s.cfg.Target, "target", s.cfg.Target, "name of the label column")
	pf.StringVar(&s.cfg.LogLevel, "log-level", s.cfg.LogLevel, "debug|info|warn|error")
	pf.StringVar(&s.cfg.LogFormat, "log-format", s.cfg.LogFormat, "text|json")
	pf.BoolVar(&s.noColor, "no-color", false, "disable colored warnings")

	root.AddCommand(
		newRunCmd(s),
		newDescribeCmd(s),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Explore the data, train both models and evaluate them",
		Long: `Run the full study: summary statistics, a stratified train/test split,
feature scaling, logistic regression and random forest training, held-out
evaluation and feature importances.

Settings come from defaults, then the env file, then HEARTML_* environment
variables, then flags.

Example: heartml run --data heart.csv --cv-folds 5 --save-models --report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := s.prepare(cmd)
			if err != nil {
				return err
			}
			_, err = study.Run(cmd.Context(), cfg, logger, study.WithOutput(cmd.OutOrStdout()))
			return err
		},
	}

	f := cmd.Flags()
	f.Float64Var(&s.cfg.TestSize, "test-size", s.cfg.TestSize, "fraction of rows held out for testing")
	f.Int64Var(&s.cfg.RandomState, "random-state", s.cfg.RandomState, "seed for the split, forest and folds")
	f.BoolVar(&s.noStratif, "no-stratify", false, "split without preserving class proportions")
	f.StringVar(&s.cfg.Scaler, "scaler", s.cfg.Scaler, "standard|minmax")
	f.IntVar(&s.cfg.LogRegMaxIter, "max-iter", s.cfg.LogRegMaxIter, "logistic regression iteration limit")
	f.Float64Var(&s.cfg.LogRegC, "logreg-c", s.cfg.LogRegC, "inverse L2 regularization strength")
	f.StringVar(&s.cfg.Solver, "solver", s.cfg.Solver, "lbfgs|gd")
	f.IntVar(&s.cfg.NEstimators, "n-estimators", s.cfg.NEstimators, "number of trees")
	f.IntVar(&s.cfg.MaxDepth, "max-depth", s.cfg.MaxDepth, "maximum tree depth (0 = unlimited)")
	f.IntVar(&s.cfg.NJobs, "n-jobs", s.cfg.NJobs, "parallel workers (<= 0 uses all cores)")
	f.IntVar(&s.cfg.CVFolds, "cv-folds", s.cfg.CVFolds, "stratified cross-validation folds (0 disables)")
	f.StringVarP(&s.cfg.OutputDir, "output-dir", "o", s.cfg.OutputDir, "directory for plots, models and the report")
	f.Float64Var(&s.cfg.PlotWidth, "plot-width", s.cfg.PlotWidth, "plot width in inches")
	f.Float64Var(&s.cfg.PlotHeight, "plot-height", s.cfg.PlotHeight, "plot height in inches")
	f.BoolVar(&s.noPlots, "no-plots", false, "do not write PNG plots")
	f.BoolVar(&s.cfg.SaveModels, "save-models", s.cfg.SaveModels, "write the fitted scaler and models as gob files")
	f.BoolVar(&s.cfg.Report, "report", s.cfg.Report, "write report.md and report.html")
	return cmd
}

func newDescribeCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the dataset head, info, statistics and target distribution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := s.prepare(cmd)
			if err != nil {
				return err
			}
			_, err = study.Describe(cmd.Context(), cfg, logger, study.WithOutput(cmd.OutOrStdout()))
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "heartml %s\n", version)
		},
	}
}

// prepare reads the configuration, applies the flags that were set,
// validates the result and installs the process loggers.
func (s *settings) prepare(cmd *cobra.Command) (*config.Config, log.Logger, error) {
	cfg, err := config.Read(s.envFile)
	if err != nil {
		return nil, nil, err
	}

	overrides := map[string]func(){
		"data":         func() { cfg.DataPath = s.cfg.DataPath },
		"target":       func() { cfg.Target = s.cfg.Target },
		"log-level":    func() { cfg.LogLevel = s.cfg.LogLevel },
		"log-format":   func() { cfg.LogFormat = s.cfg.LogFormat },
		"test-size":    func() { cfg.TestSize = s.cfg.TestSize },
		"random-state": func() { cfg.RandomState = s.cfg.RandomState },
		"no-stratify":  func() { cfg.Stratify = !s.noStratif },
		"scaler":       func() { cfg.Scaler = s.cfg.Scaler },
		"max-iter":     func() { cfg.LogRegMaxIter = s.cfg.LogRegMaxIter },
		"logreg-c":     func() { cfg.LogRegC = s.cfg.LogRegC },
		"solver":       func() { cfg.Solver = s.cfg.Solver },
		"n-estimators": func() { cfg.NEstimators = s.cfg.NEstimators },
		"max-depth":    func() { cfg.MaxDepth = s.cfg.MaxDepth },
		"n-jobs":       func() { cfg.NJobs = s.cfg.NJobs },
		"cv-folds":     func() { cfg.CVFolds = s.cfg.CVFolds },
		"output-dir":   func() { cfg.OutputDir = s.cfg.OutputDir },
		"plot-width":   func() { cfg.PlotWidth = s.cfg.PlotWidth },
		"plot-height":  func() { cfg.PlotHeight = s.cfg.PlotHeight },
		"no-plots":     func() { cfg.SavePlots = !s.noPlots },
		"save-models":  func() { cfg.SaveModels = s.cfg.SaveModels },
		"report":       func() { cfg.Report = s.cfg.Report },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	// describe は成果物を書かない
	if cmd.Name() == "describe" {
		cfg.SavePlots, cfg.SaveModels, cfg.Report = false, false, false
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	stderr := cmd.ErrOrStderr()
	if err := log.SetupLogger(stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, nil, errors.Wrap(err, "setup logger")
	}
	errors.SetZerologWarnFunc(log.NewWarningSink(stderr, !s.noColor && cfg.LogFormat == log.FormatText))
	return cfg, log.GetLoggerWithName("heartml"), nil
}

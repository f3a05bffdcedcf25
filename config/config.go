// Package config holds the settings of a heart-disease study run. Values
// come from defaults, then an optional .env file, then HEARTML_* environment
// variables; command-line flags are applied on top by the caller.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "HEARTML_"

// DefaultEnvFile is read when present; a missing default file is not an error.
const DefaultEnvFile = ".env"

// Scaler and solver names.
const (
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
	SolverLBFGS    = "lbfgs"
	SolverGD       = "gd"
)

// Config is the complete run configuration.
type Config struct {
	// 入力データ
	DataPath string
	Target   string

	// 分割
	TestSize    float64
	RandomState int64
	Stratify    bool

	// 前処理とモデル
	Scaler        string
	LogRegMaxIter int
	LogRegC       float64
	Solver        string
	NEstimators   int
	MaxDepth      int // 0 = unlimited
	NJobs         int // <= 0 = all cores
	CVFolds       int // 0 disables cross-validation

	// 出力
	OutputDir  string
	PlotWidth  float64 // inches
	PlotHeight float64 // inches
	SavePlots  bool
	SaveModels bool
	Report     bool

	LogLevel  string
	LogFormat string
}

// Default returns the settings of the reference study: stratified 80/20
// split with seed 42, standard scaling, logistic regression with 1000
// iterations and a 200-tree random forest.
func Default() *Config {
	return &Config{
		DataPath:      "heart.csv",
		Target:        "target",
		TestSize:      0.2,
		RandomState:   42,
		Stratify:      true,
		Scaler:        ScalerStandard,
		LogRegMaxIter: 1000,
		LogRegC:       1.0,
		Solver:        SolverLBFGS,
		NEstimators:   200,
		MaxDepth:      0,
		NJobs:         -1,
		CVFolds:       0,
		OutputDir:     "plots",
		PlotWidth:     8,
		PlotHeight:    6,
		SavePlots:     true,
		SaveModels:    false,
		Report:        false,
		LogLevel:      "info",
		LogFormat:     log.FormatText,
	}
}

// Load builds a Config from defaults, the env file and the process
// environment, in increasing order of precedence, and validates it.
// An empty envFile skips the file.
func Load(envFile string) (*Config, error) {
	cfg, err := Read(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply further
// overrides (command-line flags) before validating.
func Read(envFile string) (*Config, error) {
	fileVars := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVars = vars
		case envFile == DefaultEnvFile && os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "read env file %s", envFile)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}

	cfg := Default()
	if err := cfg.apply(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply overrides fields from variables found by lookup.
func (c *Config) apply(lookup func(string) (string, bool)) error {
	var problems Problems
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, errors.NewValidationError(EnvPrefix+name, "not an integer", v))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				problems = append(problems, errors.NewValidationError(EnvPrefix+name, "not a number", v))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, errors.NewValidationError(EnvPrefix+name, "not a boolean", v))
				return
			}
			*dst = b
		}
	}

	str("DATA_PATH", &c.DataPath)
	str("TARGET", &c.Target)
	float("TEST_SIZE", &c.TestSize)
	seed := int(c.RandomState)
	integer("RANDOM_STATE", &seed)
	c.RandomState = int64(seed)
	boolean("STRATIFY", &c.Stratify)
	str("SCALER", &c.Scaler)
	integer("LOGREG_MAX_ITER", &c.LogRegMaxIter)
	float("LOGREG_C", &c.LogRegC)
	str("SOLVER", &c.Solver)
	integer("N_ESTIMATORS", &c.NEstimators)
	integer("MAX_DEPTH", &c.MaxDepth)
	integer("N_JOBS", &c.NJobs)
	integer("CV_FOLDS", &c.CVFolds)
	str("OUTPUT_DIR", &c.OutputDir)
	float("PLOT_WIDTH", &c.PlotWidth)
	float("PLOT_HEIGHT", &c.PlotHeight)
	boolean("SAVE_PLOTS", &c.SavePlots)
	boolean("SAVE_MODELS", &c.SaveModels)
	boolean("REPORT", &c.Report)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	if len(problems) > 0 {
		return problems
	}
	return nil
}

// Validate checks every setting and reports all invalid ones together.
func (c *Config) Validate() error {
	var problems Problems
	add := func(param, reason string, value interface{}) {
		problems = append(problems, errors.NewValidationError(param, reason, value))
	}

	if c.DataPath == "" {
		add("data_path", "must not be empty", c.DataPath)
	}
	if c.Target == "" {
		add("target", "must not be empty", c.Target)
	}
	if !(c.TestSize > 0 && c.TestSize < 1) {
		add("test_size", "must be in (0, 1)", c.TestSize)
	}
	switch c.Scaler {
	case ScalerStandard, ScalerMinMax:
	default:
		add("scaler", "must be standard or minmax", c.Scaler)
	}
	if c.LogRegMaxIter < 1 {
		add("logreg_max_iter", "must be at least 1", c.LogRegMaxIter)
	}
	if !(c.LogRegC > 0) {
		add("logreg_c", "must be positive", c.LogRegC)
	}
	switch c.Solver {
	case SolverLBFGS, SolverGD:
	default:
		add("solver", "must be lbfgs or gd", c.Solver)
	}
	if c.NEstimators < 1 {
		add("n_estimators", "must be at least 1", c.NEstimators)
	}
	if c.MaxDepth < 0 {
		add("max_depth", "must be non-negative", c.MaxDepth)
	}
	if c.CVFolds == 1 || c.CVFolds < 0 {
		add("cv_folds", "must be 0 or at least 2", c.CVFolds)
	}
	if c.OutputDir == "" && (c.SavePlots || c.SaveModels || c.Report) {
		add("output_dir", "must not be empty when writing artifacts", c.OutputDir)
	}
	if !(c.PlotWidth > 0) || !(c.PlotHeight > 0) {
		add("plot_size", "width and height must be positive", [2]float64{c.PlotWidth, c.PlotHeight})
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		add("log_level", "must be debug, info, warn or error", c.LogLevel)
	}
	switch c.LogFormat {
	case log.FormatJSON, log.FormatText:
	default:
		add("log_format", "must be json or text", c.LogFormat)
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

// LogValue groups the settings that shape results for structured logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("data_path", c.DataPath),
		slog.String("target", c.Target),
		slog.Float64("test_size", c.TestSize),
		slog.Int64("random_state", c.RandomState),
		slog.Bool("stratify", c.Stratify),
		slog.String("scaler", c.Scaler),
		slog.String("solver", c.Solver),
		slog.Int("logreg_max_iter", c.LogRegMaxIter),
		slog.Int("n_estimators", c.NEstimators),
		slog.Int("cv_folds", c.CVFolds),
	)
}

// Problems is the list of invalid settings found by Validate or Load.
type Problems []error

func (p Problems) Error() string {
	msgs := make([]string, len(p))
	for i, err := range p {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (p Problems) Unwrap() []error { return p }

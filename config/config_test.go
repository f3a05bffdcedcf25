package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// invalidParams lists the parameter names reported in a Problems error.
func invalidParams(t *testing.T, err error) []string {
	t.Helper()
	var problems Problems
	require.ErrorAs(t, err, &problems)
	names := make([]string, 0, len(problems))
	for _, p := range problems {
		var verr *errors.ValidationError
		require.True(t, errors.As(p, &verr), "unexpected error %v", p)
		names = append(names, verr.ParamName)
	}
	return names
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.2, cfg.TestSize)
	assert.Equal(t, int64(42), cfg.RandomState)
	assert.True(t, cfg.Stratify)
	assert.Equal(t, 1000, cfg.LogRegMaxIter)
	assert.Equal(t, 200, cfg.NEstimators)
	assert.Equal(t, "target", cfg.Target)
	assert.Equal(t, "plots", cfg.OutputDir)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HEARTML_DATA_PATH", "data/heart.xlsx")
	t.Setenv("HEARTML_TEST_SIZE", "0.3")
	t.Setenv("HEARTML_RANDOM_STATE", "7")
	t.Setenv("HEARTML_STRATIFY", "false")
	t.Setenv("HEARTML_SCALER", "minmax")
	t.Setenv("HEARTML_N_ESTIMATORS", " 50 ")
	t.Setenv("HEARTML_CV_FOLDS", "5")
	t.Setenv("HEARTML_REPORT", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data/heart.xlsx", cfg.DataPath)
	assert.Equal(t, 0.3, cfg.TestSize)
	assert.Equal(t, int64(7), cfg.RandomState)
	assert.False(t, cfg.Stratify)
	assert.Equal(t, ScalerMinMax, cfg.Scaler)
	assert.Equal(t, 50, cfg.NEstimators)
	assert.Equal(t, 5, cfg.CVFolds)
	assert.True(t, cfg.Report)
	assert.Equal(t, 1000, cfg.LogRegMaxIter, "unset variables keep defaults")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.env")
	content := "HEARTML_TARGET=num\nHEARTML_N_ESTIMATORS=10\n# comment\nHEARTML_OUTPUT_DIR=out\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("HEARTML_N_ESTIMATORS", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "num", cfg.Target)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, 20, cfg.NEstimators, "process environment wins over the file")

	_, present := os.LookupEnv("HEARTML_TARGET")
	assert.False(t, present, "the env file must not leak into the process environment")
}

func TestLoadMissingEnvFile(t *testing.T) {
	// the package directory has no .env
	_, err := Load(DefaultEnvFile)
	assert.NoError(t, err, "a missing default file is ignored")

	_, err = Load(filepath.Join(t.TempDir(), "custom.env"))
	assert.Error(t, err)
}

func TestReadSkipsValidation(t *testing.T) {
	t.Setenv("HEARTML_TEST_SIZE", "1.5")

	cfg, err := Read("")
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.TestSize)
	assert.Equal(t, []string{"test_size"}, invalidParams(t, cfg.Validate()))

	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadParseErrors(t *testing.T) {
	t.Setenv("HEARTML_TEST_SIZE", "a fifth")
	t.Setenv("HEARTML_N_JOBS", "many")
	t.Setenv("HEARTML_SAVE_PLOTS", "perhaps")

	_, err := Load("")
	assert.ElementsMatch(t,
		[]string{"HEARTML_TEST_SIZE", "HEARTML_N_JOBS", "HEARTML_SAVE_PLOTS"},
		invalidParams(t, err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		params []string
	}{
		{"test size zero", func(c *Config) { c.TestSize = 0 }, []string{"test_size"}},
		{"test size one", func(c *Config) { c.TestSize = 1 }, []string{"test_size"}},
		{"unknown scaler", func(c *Config) { c.Scaler = "robust" }, []string{"scaler"}},
		{"unknown solver", func(c *Config) { c.Solver = "saga" }, []string{"solver"}},
		{"no trees", func(c *Config) { c.NEstimators = 0 }, []string{"n_estimators"}},
		{"one fold", func(c *Config) { c.CVFolds = 1 }, []string{"cv_folds"}},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, []string{"max_depth"}},
		{"non-positive C", func(c *Config) { c.LogRegC = 0 }, []string{"logreg_c"}},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, []string{"log_level"}},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, []string{"log_format"}},
		{"artifacts without dir", func(c *Config) { c.OutputDir = "" }, []string{"output_dir"}},
		{"several at once", func(c *Config) {
			c.DataPath = ""
			c.Target = ""
			c.LogRegMaxIter = 0
			c.PlotWidth = -1
		}, []string{"data_path", "target", "logreg_max_iter", "plot_size"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ElementsMatch(t, tt.params, invalidParams(t, cfg.Validate()))
		})
	}

	t.Run("no output dir needed without artifacts", func(t *testing.T) {
		cfg := Default()
		cfg.OutputDir = ""
		cfg.SavePlots = false
		assert.NoError(t, cfg.Validate())
	})
}

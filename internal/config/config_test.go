package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/gate"
)

const sampleYAML = `
database: audits.db
mode: parallel
parallelism: 4
log:
  level: debug
audit:
  name: credit
  metrics: [tpr, pr]
  reducers: [max, std]
  grouping: intersectional
  columns:
    predictions: approved
    labels: repaid
    sensitive: [gender, race]
gate:
  thresholds:
    - reducer: std
      metric: "*"
      max: 0.05
render:
  format: json
  depth: 3
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fairaudit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, fork.ModeSerial, cfg.ForkMode())
	assert.Equal(t, gate.DefaultGateConfig(), cfg.Gate)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "audits.db", cfg.Database)
	assert.Equal(t, fork.ModeParallel, cfg.ForkMode())
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, "debug", cfg.Logging().Level)
	assert.Equal(t, []string{"gender", "race"}, cfg.Columns().Sensitive)
	assert.Equal(t, "approved", cfg.Columns().Predictions)

	want := []gate.Threshold{{Reducer: "std", Metric: "*", Max: gate.Bound(0.05)}}
	if diff := cmp.Diff(want, cfg.Gate.Thresholds); diff != "" {
		t.Fatalf("thresholds (-want +got):\n%s", diff)
	}

	metrics, err := cfg.Metrics()
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "tpr", metrics[0].Name)

	// unset sections keep their defaults
	assert.Equal(t, "localhost:50061", cfg.Serve.Listen)
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"FAIRAUDIT_DB":          "/tmp/x.db",
		"FAIRAUDIT_MODE":        "distributed",
		"FAIRAUDIT_PARALLELISM": "8",
		"FAIRAUDIT_WORKERS":     "w1:50061, w2:50061,",
		"FAIRAUDIT_LOG_LEVEL":   "warn",
	}
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "/tmp/x.db", cfg.Database)
	assert.Equal(t, fork.ModeDistributed, cfg.ForkMode())
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, []string{"w1:50061", "w2:50061"}, cfg.Workers)
	assert.Equal(t, "warn", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv("FAIRAUDIT_DB", "env.db")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"mode":            func(c *Config) { c.Mode = "gpu" },
		"distributed":     func(c *Config) { c.Mode = "distributed" },
		"metric":          func(c *Config) { c.Audit.Metrics = []string{"auc"} },
		"reducer":         func(c *Config) { c.Audit.Reducers = []string{"median"} },
		"grouping":        func(c *Config) { c.Audit.Grouping = "pairs" },
		"threshold name":  func(c *Config) { c.Gate.Thresholds = []gate.Threshold{{Metric: "*", Max: gate.Bound(1)}} },
		"threshold bound": func(c *Config) { c.Gate.Thresholds = []gate.Threshold{{Reducer: "std", Metric: "*"}} },
		"format":          func(c *Config) { c.Render.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "mode: [unclosed"))
	assert.Error(t, err)

	cfg := Default()
	assert.ErrorIs(t, cfg.applyEnv(func(k string) string {
		if k == "FAIRAUDIT_PARALLELISM" {
			return "many"
		}
		return ""
	}), ErrInvalid)
}

func TestHashTracksContent(t *testing.T) {
	a := Default()
	b := Default()
	assert.Equal(t, a.Hash(), b.Hash())
	b.Audit.Metrics = []string{"tpr"}
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 16)
}

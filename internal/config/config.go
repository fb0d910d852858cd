package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/fairaudit/internal/dataset"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/gate"
	"github.com/danielpatrickdp/fairaudit/internal/logging"
	"github.com/danielpatrickdp/fairaudit/internal/metric"
	"github.com/danielpatrickdp/fairaudit/internal/reduce"
)

var ErrInvalid = errors.New("config: invalid")

// #region types
// Config is the fairaudit.yaml document.
type Config struct {
	Database    string          `yaml:"database"`
	Mode        string          `yaml:"mode"`
	Parallelism int             `yaml:"parallelism"`
	Workers     []string        `yaml:"workers"`
	Log         LogConfig       `yaml:"log"`
	Audit       AuditConfig     `yaml:"audit"`
	Gate        gate.GateConfig `yaml:"gate"`
	Render      RenderConfig    `yaml:"render"`
	Serve       ServeConfig     `yaml:"serve"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// AuditConfig selects what an audit computes.
type AuditConfig struct {
	Name          string        `yaml:"name"`
	Metrics       []string      `yaml:"metrics"`
	Reducers      []string      `yaml:"reducers"`
	Grouping      string        `yaml:"grouping"`
	MaxPrediction float64       `yaml:"max_prediction"`
	Columns       ColumnsConfig `yaml:"columns"`
}

// ColumnsConfig names the CSV columns.
type ColumnsConfig struct {
	Predictions string   `yaml:"predictions"`
	Labels      string   `yaml:"labels"`
	Sensitive   []string `yaml:"sensitive"`
}

// RenderConfig selects the output format.
type RenderConfig struct {
	Format  string `yaml:"format"`
	Depth   int    `yaml:"depth"`
	Details bool   `yaml:"details"`
}

// ServeConfig is the worker's listen addresses.
type ServeConfig struct {
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metrics_listen"`
}
// #endregion types

// #region defaults
// Default returns a serial, local audit writing text output.
func Default() Config {
	return Config{
		Database: "fairaudit.db",
		Mode:     string(fork.ModeSerial),
		Log:      LogConfig{Level: "info"},
		Audit: AuditConfig{
			Name:     "audit",
			Grouping: string(dataset.GroupCategories),
			Columns:  ColumnsConfig{Predictions: "prediction", Labels: "label"},
		},
		Gate:   gate.DefaultGateConfig(),
		Render: RenderConfig{Format: "text", Depth: 2},
		Serve:  ServeConfig{Listen: "localhost:50061", MetricsListen: "localhost:9464"},
	}
}
// #endregion defaults

// #region load
// Load reads path over the defaults, then applies environment overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from FAIRAUDIT_* variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("FAIRAUDIT_DB"); v != "" {
		c.Database = v
	}
	if v := getenv("FAIRAUDIT_MODE"); v != "" {
		c.Mode = v
	}
	if v := getenv("FAIRAUDIT_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: FAIRAUDIT_PARALLELISM=%q", ErrInvalid, v)
		}
		c.Parallelism = n
	}
	if v := getenv("FAIRAUDIT_WORKERS"); v != "" {
		c.Workers = nil
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				c.Workers = append(c.Workers, addr)
			}
		}
	}
	if v := getenv("FAIRAUDIT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}
// #endregion load

// #region validate
// Validate checks names against the built-in metrics, reducers and modes.
func (c Config) Validate() error {
	mode, err := fork.ParseMode(c.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if mode == fork.ModeDistributed && len(c.Workers) == 0 {
		return fmt.Errorf("%w: distributed mode needs workers", ErrInvalid)
	}
	if _, err := c.Metrics(); err != nil {
		return err
	}
	if _, err := c.Reducers(); err != nil {
		return err
	}
	if _, err := dataset.ParseGrouping(c.Audit.Grouping); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for _, th := range c.Gate.Thresholds {
		if th.Reducer == "" || th.Metric == "" {
			return fmt.Errorf("%w: gate threshold needs reducer and metric", ErrInvalid)
		}
		if th.Min == nil && th.Max == nil {
			return fmt.Errorf("%w: gate threshold %s/%s has no bound", ErrInvalid, th.Reducer, th.Metric)
		}
	}
	switch c.Render.Format {
	case "text", "json", "console", "help":
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalid, c.Render.Format)
	}
	return nil
}
// #endregion validate

// #region resolve
// Metrics resolves the configured metric names; none means the defaults.
func (c Config) Metrics() ([]metric.Metric, error) {
	out := make([]metric.Metric, 0, len(c.Audit.Metrics))
	for _, name := range c.Audit.Metrics {
		m, ok := metric.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalid, name)
		}
		out = append(out, m)
	}
	return out, nil
}

// Reducers resolves the configured reducer names; none means the defaults.
func (c Config) Reducers() ([]reduce.Reducer, error) {
	out := make([]reduce.Reducer, 0, len(c.Audit.Reducers))
	for _, name := range c.Audit.Reducers {
		r, ok := reduce.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown reducer %q", ErrInvalid, name)
		}
		out = append(out, r)
	}
	return out, nil
}

// ForkMode is the parsed execution mode.
func (c Config) ForkMode() fork.Mode {
	m, _ := fork.ParseMode(c.Mode)
	return m
}

// Logging converts the log section.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Development: c.Log.Development}
}

// Columns converts the column section.
func (c Config) Columns() dataset.Columns {
	return dataset.Columns{
		Predictions: c.Audit.Columns.Predictions,
		Labels:      c.Audit.Columns.Labels,
		Sensitive:   c.Audit.Columns.Sensitive,
	}
}

// Hash identifies the effective configuration in the provenance log.
func (c Config) Hash() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
// #endregion resolve

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/fairaudit/internal/config"
	"github.com/danielpatrickdp/fairaudit/internal/dataset"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/logging"
	"github.com/danielpatrickdp/fairaudit/internal/replay"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type exportFlags struct {
	config  string
	csv     string
	out     string
	name    string
	depth   int
	appendF bool
}

func newRootCmd() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:          "fixture-export --csv data.csv --out fixture.json",
		Short:        "Record an audit of a CSV as a replay fixture",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.config)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.config, "config", "", "path to fairaudit.yaml")
	cmd.Flags().StringVar(&f.csv, "csv", "", "audit table to record")
	cmd.Flags().StringVar(&f.out, "out", "", "output fixture JSON path")
	cmd.Flags().StringVar(&f.name, "case", "", "case name (defaults to the CSV file name)")
	cmd.Flags().IntVar(&f.depth, "depth", 2, "longest key path to pin")
	cmd.Flags().BoolVar(&f.appendF, "append", false, "add the case to an existing fixture")
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// #endregion main

// #region extract

func run(ctx context.Context, cfg config.Config, f exportFlags, w io.Writer) error {
	log, err := logging.New(cfg.Logging())
	if err != nil {
		return err
	}
	defer log.Sync()

	data, err := dataset.LoadCSV(f.csv, cfg.Columns())
	if err != nil {
		return err
	}

	fixture := &replay.Fixture{Config: fixtureConfig(cfg)}
	if f.appendF {
		existing, err := replay.LoadFixture(f.out)
		if err != nil {
			return err
		}
		if err := sameConfig(existing.Config, fixture.Config); err != nil {
			return err
		}
		fixture = existing
	}

	rc, err := fixture.Config.ToReplayConfig()
	if err != nil {
		return fmt.Errorf("fixture config: %w", err)
	}
	rc.Logger = logging.Component(log, "fixture-export")

	name := f.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(f.csv), filepath.Ext(f.csv))
	}
	for _, c := range fixture.Cases {
		if c.Name == name {
			return fmt.Errorf("case %q already in %s", name, f.out)
		}
	}

	recorded, err := replay.Record(ctx, replay.CaseFromData(name, *data), rc, f.depth)
	if err != nil {
		return err
	}
	fixture.Cases = append(fixture.Cases, recorded)
	if fixture.Description == "" {
		fixture.Description = fmt.Sprintf("Recorded audit of %s", filepath.Base(f.csv))
	}

	fmt.Fprintf(w, "Recorded case %s: %d expectations, gate %s\n", name, len(recorded.Expected), orNone(recorded.ExpectedGate))
	return writeFixture(w, fixture, f.out)
}

// fixtureConfig mirrors the audit settings. Distributed audits are recorded
// as parallel ones since a fixture must replay without workers.
func fixtureConfig(cfg config.Config) replay.FixtureConfig {
	mode := cfg.Mode
	if cfg.ForkMode() == fork.ModeDistributed {
		mode = string(fork.ModeParallel)
	}
	fc := replay.FixtureConfig{
		Metrics:       cfg.Audit.Metrics,
		Reducers:      cfg.Audit.Reducers,
		Mode:          mode,
		Workers:       cfg.Parallelism,
		Grouping:      cfg.Audit.Grouping,
		MaxPrediction: cfg.Audit.MaxPrediction,
	}
	if len(cfg.Gate.Thresholds) > 0 {
		fc.Gate = replay.GateFixture(cfg.Gate)
	}
	return fc
}

func sameConfig(a, b replay.FixtureConfig) error {
	ja, err := json.Marshal(a)
	if err != nil {
		return err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if string(ja) != string(jb) {
		return errors.New("fixture config differs from the current audit config; record into a new fixture")
	}
	return nil
}

// #endregion extract

// #region output

func writeFixture(w io.Writer, fixture *replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Fprintf(w, "Wrote fixture to %s (%d bytes, %d cases)\n", outPath, len(data), len(fixture.Cases))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// #endregion output

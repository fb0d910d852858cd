package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/fairaudit/internal/config"
	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/gate"
	"github.com/danielpatrickdp/fairaudit/internal/logging"
	"github.com/danielpatrickdp/fairaudit/internal/replay"
	"github.com/danielpatrickdp/fairaudit/internal/snapshot"
)

// exitError carries the process exit code: 1 for divergence, 2 for errors.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var errDiverged = errors.New("replay diverged")

// #region main

func main() {
	err := newRootCmd().Execute()
	var ee *exitError
	switch {
	case err == nil:
	case errors.As(err, &ee):
		os.Exit(ee.code)
	default:
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath, fixturePath, configPath string
	var limit int
	var current, verbose bool
	cmd := &cobra.Command{
		Use:   "replay (--fixture path | --db path)",
		Short: "Replay audit fixtures or re-gate archived reports",
		Long: "Fixture mode rebuilds every case and checks its expected values. " +
			"DB mode re-evaluates the gate over archived reports and compares with the logged decision.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (dbPath == "") == (fixturePath == "") {
				return &exitError{code: 2, err: errors.New("exactly one of --db or --fixture is required")}
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			level := cfg.Logging()
			if verbose {
				level.Level = "debug"
			}
			logger, err := logging.New(level)
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			defer logger.Sync()

			out := cmd.OutOrStdout()
			if fixturePath != "" {
				return runFixtureMode(cmd.Context(), out, fixturePath, logger)
			}
			var override *gate.GateConfig
			if current {
				override = &cfg.Gate
			}
			return runDBMode(out, dbPath, limit, override)
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to fixture JSON (fixture mode)")
	cmd.Flags().StringVar(&dbPath, "db", "", "path to snapshot database (DB mode)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to fairaudit.yaml")
	cmd.Flags().IntVar(&limit, "last", 100, "DB mode: number of recent snapshots to re-gate")
	cmd.Flags().BoolVar(&current, "current", false, "DB mode: use the configured gate instead of the logged thresholds")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "debug logging")
	return cmd
}

// #endregion main

// #region fixture-mode

func runFixtureMode(ctx context.Context, w io.Writer, path string, logger *zap.Logger) error {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	cfg, err := f.Config.ToReplayConfig()
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("fixture config: %w", err)}
	}
	cfg.Logger = logger
	cases, err := f.BuildCases(cfg)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	results := replay.Replay(ctx, cases, cfg)

	fmt.Fprintf(w, "%-28s| %-10s| %s\n", "Case", "Result", "Reason")
	fmt.Fprintf(w, "%-28s+%-11s+%s\n", "----------------------------", "-----------", "--------------------")
	for _, r := range results {
		fmt.Fprintf(w, "%-28s| %-10s| %s\n", r.Name, r.Action, r.Reason)
	}
	s := replay.Summarize(results)
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d mismatch, %d error\n", s.TotalCases, s.Matches, s.Mismatches, s.Errors)

	if s.Mismatches+s.Errors > 0 {
		return &exitError{code: 1, err: errDiverged}
	}
	return nil
}

// #endregion fixture-mode

// #region db-mode

// runDBMode re-evaluates the gate over every archived report that has a
// logged gate decision. By default the thresholds come from the logged gate
// record, so a divergence means the report or the gate changed behavior.
func runDBMode(w io.Writer, dbPath string, limit int, override *gate.GateConfig) error {
	store, err := snapshot.NewStore(dbPath)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	defer store.Close()

	snaps, err := store.ListWithProvenance(limit)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	fmt.Fprintf(w, "%-10s| %-16s| %-9s| %-9s| %s\n", "Snapshot", "Name", "Logged", "Replayed", "Match")
	fmt.Fprintf(w, "%-10s+%-17s+%-10s+%-10s+%s\n", "----------", "-----------------", "----------", "----------", "------")

	total, matches := 0, 0
	for i := len(snaps) - 1; i >= 0; i-- {
		sp := snaps[i]
		if sp.GateJSON == "" {
			continue
		}
		var rec logging.GateRecord
		if err := json.Unmarshal([]byte(sp.GateJSON), &rec); err != nil {
			return &exitError{code: 2, err: fmt.Errorf("snapshot %s gate record: %w", sp.SnapshotID, err)}
		}
		gc := thresholdsOf(rec)
		if override != nil {
			gc = *override
		}
		v, err := sp.Tree(descriptor.NewRegistry())
		if err != nil {
			return &exitError{code: 2, err: err}
		}
		got := gate.NewGate(gc).Evaluate(v).Action

		total++
		match := "DIFF"
		if got == sp.Decision {
			match = "OK"
			matches++
		}
		fmt.Fprintf(w, "%-10s| %-16s| %-9s| %-9s| %s\n", shortID(sp.SnapshotID), sp.Name, sp.Decision, got, match)
	}

	if total == 0 {
		fmt.Fprintln(w, "no gated snapshots found")
		return &exitError{code: 2, err: errors.New("nothing to replay")}
	}
	diverge := total - matches
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", total, matches, diverge)
	if diverge > 0 {
		return &exitError{code: 1, err: errDiverged}
	}
	return nil
}

func thresholdsOf(rec logging.GateRecord) gate.GateConfig {
	var gc gate.GateConfig
	for _, th := range rec.Thresholds {
		gc.Thresholds = append(gc.Thresholds, gate.Threshold{
			Reducer: th.Reducer,
			Metric:  th.Metric,
			Min:     th.Min,
			Max:     th.Max,
		})
	}
	return gc
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion db-mode

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/fairaudit/internal/config"
	"github.com/danielpatrickdp/fairaudit/internal/dataset"
	"github.com/danielpatrickdp/fairaudit/internal/fork"
	"github.com/danielpatrickdp/fairaudit/internal/gate"
	"github.com/danielpatrickdp/fairaudit/internal/logging"
	"github.com/danielpatrickdp/fairaudit/internal/metric"
	"github.com/danielpatrickdp/fairaudit/internal/render"
	"github.com/danielpatrickdp/fairaudit/internal/report"
	"github.com/danielpatrickdp/fairaudit/internal/snapshot"
	"github.com/danielpatrickdp/fairaudit/internal/worker"
)

var errGateFailed = errors.New("fairness gate failed")

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errGateFailed) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
// #endregion main

// #region flags
type auditFlags struct {
	configPath string
	csvPath    string
	noStore    bool
	gate       bool

	name        string
	database    string
	mode        string
	parallelism int
	workers     []string
	grouping    string
	metrics     []string
	reducers    []string
	predictions string
	labels      string
	sensitive   []string
	format      string
	depth       int
	details     bool
}

func newRootCmd() *cobra.Command {
	var f auditFlags
	cmd := &cobra.Command{
		Use:          "audit --csv data.csv --sensitive gender",
		Short:        "Audit model predictions for fairness across groups",
		Long:         "Builds a fairness report from a CSV of predictions, labels and sensitive attributes, prints it, archives it and optionally gates on disparity thresholds.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging())
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runAudit(cmd.Context(), cfg, runOptions{
				CSV:   f.csvPath,
				Store: !f.noStore,
				Gate:  f.gate,
			}, cmd.OutOrStdout(), logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "path to fairaudit.yaml")
	fl.StringVar(&f.csvPath, "csv", "", "CSV file with predictions, labels and sensitive columns")
	fl.BoolVar(&f.noStore, "no-store", false, "do not archive the report")
	fl.BoolVar(&f.gate, "gate", false, "evaluate gate thresholds and exit 3 when they fail")
	fl.StringVar(&f.name, "name", "", "audit name used for snapshot lineage")
	fl.StringVar(&f.database, "db", "", "snapshot database path")
	fl.StringVar(&f.mode, "mode", "", "execution mode: serial, parallel or distributed")
	fl.IntVar(&f.parallelism, "parallelism", 0, "concurrent branches for parallel and distributed modes")
	fl.StringSliceVar(&f.workers, "workers", nil, "worker addresses for distributed mode")
	fl.StringVar(&f.grouping, "grouping", "", "categories, intersectional or subgroups")
	fl.StringSliceVar(&f.metrics, "metrics", nil, "metrics to compute")
	fl.StringSliceVar(&f.reducers, "reducers", nil, "reducers to apply across groups")
	fl.StringVar(&f.predictions, "predictions", "", "prediction column")
	fl.StringVar(&f.labels, "labels", "", "label column")
	fl.StringSliceVar(&f.sensitive, "sensitive", nil, "sensitive attribute columns")
	fl.StringVar(&f.format, "format", "", "output format: text, json, console or help")
	fl.IntVar(&f.depth, "depth", 0, "numeric levels to expand")
	fl.BoolVar(&f.details, "details", false, "include descriptor details")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

// resolve loads the config and lets explicitly set flags override it.
func (f *auditFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	changed := cmd.Flags().Changed
	if changed("name") {
		cfg.Audit.Name = f.name
	}
	if changed("db") {
		cfg.Database = f.database
	}
	if changed("mode") {
		cfg.Mode = f.mode
	}
	if changed("parallelism") {
		cfg.Parallelism = f.parallelism
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("grouping") {
		cfg.Audit.Grouping = f.grouping
	}
	if changed("metrics") {
		cfg.Audit.Metrics = f.metrics
	}
	if changed("reducers") {
		cfg.Audit.Reducers = f.reducers
	}
	if changed("predictions") {
		cfg.Audit.Columns.Predictions = f.predictions
	}
	if changed("labels") {
		cfg.Audit.Columns.Labels = f.labels
	}
	if changed("sensitive") {
		cfg.Audit.Columns.Sensitive = f.sensitive
	}
	if changed("format") {
		cfg.Render.Format = f.format
	}
	if changed("depth") {
		cfg.Render.Depth = f.depth
	}
	if changed("details") {
		cfg.Render.Details = f.details
	}
	return cfg, cfg.Validate()
}
// #endregion flags

// #region run
type runOptions struct {
	CSV   string
	Store bool
	Gate  bool
}

func runAudit(ctx context.Context, cfg config.Config, opts runOptions, out io.Writer, log *zap.Logger) error {
	log = logging.Component(log, "audit")

	data, err := dataset.LoadCSV(opts.CSV, cfg.Columns())
	if err != nil {
		return err
	}
	grouping, _ := dataset.ParseGrouping(cfg.Audit.Grouping)
	groups, err := dataset.Groups(data.Attributes, grouping)
	if err != nil {
		return err
	}

	metrics, _ := cfg.Metrics()
	reducers, _ := cfg.Reducers()
	var evaluator metric.Evaluator
	if cfg.ForkMode() == fork.ModeDistributed {
		remote, err := worker.Dial(cfg.Workers)
		if err != nil {
			return err
		}
		defer remote.Close()
		evaluator = remote
	}

	ctx = fork.WithMode(ctx, cfg.ForkMode(), cfg.Parallelism)
	v, err := report.Build(ctx, report.Input{
		Predictions:   data.Predictions,
		Labels:        data.Labels,
		Sensitive:     groups,
		MaxPrediction: cfg.Audit.MaxPrediction,
	}, report.Options{
		Metrics:   metrics,
		Reducers:  reducers,
		Evaluator: evaluator,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	log.Info("report built",
		zap.String("name", cfg.Audit.Name),
		zap.Int("groups", groups.Len()),
		zap.String("mode", cfg.Mode))

	if err := render.Write(out, v, render.Format(cfg.Render.Format), cfg.Render.Depth, cfg.Render.Details); err != nil {
		return err
	}

	var decision *gate.GateDecision
	g := gate.NewGate(cfg.Gate)
	if opts.Gate {
		d := g.Evaluate(v)
		decision = &d
		log.Info("gate evaluated", zap.String("action", d.Action), zap.String("reason", d.Reason))
	}

	if opts.Store {
		if err := archive(cfg, v.Serialize(math.MaxInt32, true), groups.Len(), g, decision, log); err != nil {
			return err
		}
	}

	if decision != nil && !decision.Passed() {
		return fmt.Errorf("%w: %s", errGateFailed, decision.Reason)
	}
	return nil
}

// archive saves the report and logs the gate decision against it.
func archive(cfg config.Config, node any, groups int, g *gate.Gate, decision *gate.GateDecision, log *zap.Logger) error {
	raw, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	store, err := snapshot.NewStore(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Save(snapshot.Record{
		Name:       cfg.Audit.Name,
		ReportJSON: string(raw),
		Mode:       cfg.Mode,
		Groups:     groups,
	})
	if err != nil {
		return err
	}

	entry := logging.ProvenanceEntry{
		SnapshotID:  rec.SnapshotID,
		ConfigHash:  cfg.Hash(),
		TriggerType: "cli",
		Decision:    "archived",
	}
	if decision != nil {
		gateJSON, err := json.Marshal(g.Record(*decision, cfg.Audit.Name, cfg.Mode, groups))
		if err != nil {
			return fmt.Errorf("encode gate record: %w", err)
		}
		entry.GateJSON = string(gateJSON)
		entry.Decision = decision.Action
		entry.Reason = decision.Reason
	}
	if err := logging.LogDecision(store.DB(), entry); err != nil {
		return err
	}
	log.Info("snapshot saved", zap.String("snapshot_id", rec.SnapshotID), zap.String("parent_id", rec.ParentID))
	return nil
}
// #endregion run

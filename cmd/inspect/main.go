package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/fairaudit/internal/config"
	"github.com/danielpatrickdp/fairaudit/internal/descriptor"
	"github.com/danielpatrickdp/fairaudit/internal/logging"
	"github.com/danielpatrickdp/fairaudit/internal/render"
	"github.com/danielpatrickdp/fairaudit/internal/snapshot"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbPath string
	root := &cobra.Command{
		Use:          "inspect",
		Short:        "Browse archived fairness reports",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "snapshot database (default from FAIRAUDIT_DB or fairaudit.db)")

	open := func() (*snapshot.Store, error) {
		path := dbPath
		if path == "" {
			cfg, err := config.Load("")
			if err != nil {
				return nil, err
			}
			path = cfg.Database
		}
		return snapshot.NewStore(path)
	}

	root.AddCommand(newListCmd(open), newShowCmd(open))
	return root
}

type opener func() (*snapshot.Store, error)

// #endregion main

// #region list-mode

type listRow struct {
	SnapshotID string `json:"snapshot_id"`
	ParentID   string `json:"parent_id,omitempty"`
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	Groups     int    `json:"groups"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func newListCmd(open opener) *cobra.Command {
	var last int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()
			return runListMode(cmd.OutOrStdout(), store, last, jsonOut)
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent snapshots")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

func runListMode(w io.Writer, store *snapshot.Store, last int, jsonOut bool) error {
	snaps, err := store.ListWithProvenance(last)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(w, "no snapshots found")
		return nil
	}

	// Store returns newest first, reverse for chronological
	rows := make([]listRow, len(snaps))
	for i, sp := range snaps {
		rows[len(snaps)-1-i] = listRow{
			SnapshotID: sp.SnapshotID,
			ParentID:   sp.ParentID,
			Name:       sp.Name,
			Mode:       sp.Mode,
			Groups:     sp.Groups,
			Decision:   sp.Decision,
			Reason:     sp.Reason,
			CreatedAt:  sp.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-10s  %-10s  %-16s  %-12s  %6s  %-9s  %s\n",
		"Snapshot", "Parent", "Name", "Mode", "Groups", "Decision", "Time")
	fmt.Fprintf(w, "%-10s+-%-10s+-%-16s+-%-12s+-%6s+-%-9s+-%s\n",
		"----------", "----------", "----------------", "------------", "------", "---------", "--------------------")
	for _, r := range rows {
		parent := "-"
		if r.ParentID != "" {
			parent = shortID(r.ParentID)
		}
		decision := r.Decision
		if decision == "" {
			decision = "-"
		}
		fmt.Fprintf(w, "%-10s  %-10s  %-16s  %-12s  %6d  %-9s  %s\n",
			shortID(r.SnapshotID), parent, r.Name, r.Mode, r.Groups, decision, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func newShowCmd(open opener) *cobra.Command {
	var format string
	var depth int
	var details, latest bool
	cmd := &cobra.Command{
		Use:   "show <snapshot-id | name>",
		Short: "Render one archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			id := args[0]
			if latest {
				rec, err := store.Latest(args[0])
				if err != nil {
					return err
				}
				id = rec.SnapshotID
			}
			return runDetailMode(cmd.OutOrStdout(), store, id, render.Format(format), depth, details)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "text, json, console or help")
	cmd.Flags().IntVar(&depth, "depth", 2, "numeric levels to expand")
	cmd.Flags().BoolVar(&details, "details", false, "include descriptor details")
	cmd.Flags().BoolVar(&latest, "latest", false, "treat the argument as an audit name and show its latest snapshot")
	return cmd
}

func runDetailMode(w io.Writer, store *snapshot.Store, id string, format render.Format, depth int, details bool) error {
	sp, err := store.GetWithProvenance(id)
	if err != nil {
		return err
	}
	v, err := sp.Tree(descriptor.NewRegistry())
	if err != nil {
		return err
	}

	if format == render.FormatText {
		fmt.Fprintf(w, "Snapshot:   %s\n", sp.SnapshotID)
		fmt.Fprintf(w, "Parent:     %s\n", sp.ParentID)
		fmt.Fprintf(w, "Name:       %s\n", sp.Name)
		fmt.Fprintf(w, "Created:    %s\n", sp.CreatedAt.Format("2006-01-02T15:04:05Z"))
		fmt.Fprintf(w, "Mode:       %s (%d groups)\n", sp.Mode, sp.Groups)
		if sp.Decision != "" {
			fmt.Fprintf(w, "Decision:   %s\n", sp.Decision)
			fmt.Fprintf(w, "Reason:     %s\n", sp.Reason)
		}
		if gr := parseGateRecord(sp.GateJSON); gr != nil {
			fmt.Fprintf(w, "\nGate checks:\n")
			for _, c := range gr.Checks {
				mark := "ok"
				if !c.Pass {
					mark = "FAIL"
				}
				fmt.Fprintf(w, "  %-8s %-12s %.4f  %s\n", c.Reducer, c.Metric, c.Value, mark)
			}
		}
		history, err := logging.History(store.DB(), sp.SnapshotID)
		if err != nil {
			return err
		}
		if len(history) > 1 {
			fmt.Fprintf(w, "\nHistory:\n")
			for _, h := range history {
				fmt.Fprintf(w, "  %s  %-8s %-9s %s\n", h.CreatedAt.Format("2006-01-02T15:04:05Z"), h.TriggerType, h.Decision, h.Reason)
			}
		}
		fmt.Fprintln(w)
	}
	return render.Write(w, v, format, depth, details)
}

// #endregion detail-mode

// #region output

func parseGateRecord(gateJSON string) *logging.GateRecord {
	if gateJSON == "" {
		return nil
	}
	var gr logging.GateRecord
	if err := json.Unmarshal([]byte(gateJSON), &gr); err == nil && gr.Action != "" {
		return &gr
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent reconciliation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "history: open store")
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "history")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show per-case outcomes of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "history: open store")
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "history show")
		}
		outcomes, err := st.ListOutcomes(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "history show")
		}
		formatRunsList(os.Stdout, []model.Run{*run})
		formatOutcomes(os.Stdout, outcomes)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "max runs to list")
	historyCmd.Flags().String("status", "", "filter by status (complete, cancelled, failed)")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func formatRunsList(w io.Writer, runs []model.Run) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		duration := ""
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			id,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			string(r.Status),
			r.InputPath,
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.Submitted),
			strconv.Itoa(r.Found),
			strconv.Itoa(r.NotFound),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Abandoned),
			duration,
			r.Error,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Started", "Status", "Input", "Rows", "Submitted", "Found", "Not Found", "Failed", "Abandoned", "Took", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}

func formatOutcomes(w io.Writer, outcomes []model.RecordOutcome) {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			strconv.Itoa(o.RowIndex + 1),
			o.CaseID,
			o.Name,
			string(o.Outcome),
			strconv.Itoa(o.Attempts),
			o.Reason,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Row", "Case ID", "Name", "Outcome", "Attempts", "Reason"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
	))
}

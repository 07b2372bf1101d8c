package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeromebarre/get-obs/internal/config"
	"github.com/jeromebarre/get-obs/internal/models"
	"github.com/jeromebarre/get-obs/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show the windows and commands of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var (
	historyLedger string
	historyLimit  int
	showExecs     bool
)

func init() {
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.PersistentFlags().StringVar(&historyLedger, "ledger", config.DefaultConfig().Ledger, "Path to the ledger database")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list (0 for all)")
	historyShowCmd.Flags().BoolVar(&showExecs, "execs", false, "Also list every external command")
}

func openLedger() (*store.Store, error) {
	if historyLedger == "" || historyLedger == config.LedgerDisabled {
		return nil, fmt.Errorf("no ledger configured")
	}
	return store.New(historyLedger)
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openLedger()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINSTRUMENT\tPLATFORM\tOBSERVABLE\tSPAN\tSTATUS\tWINDOWS\tFAILED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.Instrument,
			r.Platform,
			r.Observable,
			r.Start.Format("2006-01-02T15")+".."+r.End.Format("2006-01-02T15"),
			statusStyle(string(r.Status)).Render(string(r.Status)),
			r.Windows,
			r.Failed,
			r.StartedAt.Local().Format(time.DateTime),
		)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	s, err := openLedger()
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := findRun(s, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:         %s\n", run.ID)
	fmt.Fprintf(out, "Instrument: %s %s %s\n", run.Instrument, run.Platform, run.Observable)
	fmt.Fprintf(out, "Span:       %s .. %s\n", run.Start.Format(time.RFC3339), run.End.Format(time.RFC3339))
	fmt.Fprintf(out, "Status:     %s\n", statusStyle(string(run.Status)).Render(string(run.Status)))
	fmt.Fprintf(out, "Started:    %s\n", run.StartedAt.Format(time.RFC3339))
	if !run.EndedAt.IsZero() {
		fmt.Fprintf(out, "Ended:      %s\n", run.EndedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)

	windows, err := s.GetWindowsForRun(run.ID)
	if err != nil {
		return err
	}
	for _, win := range windows {
		fmt.Fprintf(out, "=== Window %d (%s) %s ===\n", win.Window.Index, win.Window.Stamp(),
			statusStyle(string(win.Status)).Render(string(win.Status)))
		fmt.Fprintf(out, "Requests: %d, fetch failures: %d\n", win.Requests, win.FetchFailures)
		for _, o := range win.Outputs {
			fmt.Fprintf(out, "Output:   %s\n", o)
		}
		for _, e := range win.Errors {
			fmt.Fprintf(out, "Error:    %s\n", truncate(e, 200))
		}
	}

	if !showExecs {
		return nil
	}
	execs, err := s.GetExecsForRun(run.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WINDOW\tPHASE\tEXIT\tCOMMAND")
	for _, e := range execs {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", e.Window, e.Phase, e.ExitCode, truncate(e.Command, 60))
	}
	return w.Flush()
}

// findRun resolves a full run id or a unique prefix as printed by history.
func findRun(s *store.Store, id string) (*models.Run, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}

	runs, err := s.ListRuns(0)
	if err != nil {
		return nil, err
	}
	var found *models.Run
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			if found != nil {
				return nil, fmt.Errorf("run id %q is ambiguous", id)
			}
			found = &runs[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return found, nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

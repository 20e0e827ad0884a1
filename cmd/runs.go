package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/internal/monitoring"
	"github.com/sells-group/vitals-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect audit and recovery run history",
	Long:  "Commands for listing, viewing, and summarizing runs recorded in the run ledger.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("runs")
	},
}

func openLedger(cmd *cobra.Command) (store.Store, error) {
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		kind, _ := cmd.Flags().GetString("kind")
		spreadsheet, _ := cmd.Flags().GetString("spreadsheet")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:      model.RunStatus(status),
			Kind:        model.RunKind(kind),
			Spreadsheet: spreadsheet,
			Limit:       limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

// runDetail is what runs show prints.
type runDetail struct {
	Run      *model.Run         `json:"run" yaml:"run"`
	Outcomes []model.RowOutcome `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		detail := runDetail{Run: run}

		if rows, _ := cmd.Flags().GetString("rows"); rows != "" {
			filter := store.OutcomeFilter{Limit: 10000}
			if rows != "all" {
				src, ok := model.SourceFromTag(rows)
				if !ok {
					return eris.Errorf("unknown --rows tag %q (Field, Lab, Web.dev, Error or all)", rows)
				}
				filter.Source = src
			}
			detail.Outcomes, err = st.ListOutcomes(ctx, run.ID, filter)
			if err != nil {
				return eris.Wrap(err, "runs show: outcomes")
			}
		}

		format, _ := cmd.Flags().GetString("format")
		return writeDetail(os.Stdout, detail, format)
	},
}

func writeDetail(out io.Writer, detail runDetail, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(detail)
	default:
		return eris.Errorf("unknown format %q (json or yaml)", format)
	}
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours := cfg.Monitoring.LookbackHours
		if since, _ := cmd.Flags().GetDuration("since"); cmd.Flags().Changed("since") {
			hours = int(since.Hours())
		}

		snap, err := monitoring.NewCollector(st).Collect(cmd.Context(), hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		formatRunStats(os.Stdout, snap)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, cancelled, failed)")
	runsListCmd.Flags().String("kind", "", "filter by run kind (audit, recover)")
	runsListCmd.Flags().String("spreadsheet", "", "filter by spreadsheet id or path")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().String("format", "json", "output format (json, yaml)")
	runsShowCmd.Flags().String("rows", "", "include row outcomes with this tag (Field, Lab, Web.dev, Error, all)")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSPREADSHEET\tSTATUS\tROWS\tERRORS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t-----------\t------\t----\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		rows, errs := "-", "-"
		if r.Summary != nil {
			rows = fmt.Sprintf("%d/%d", r.Summary.Processed, r.Summary.Total)
			errs = fmt.Sprintf("%d", r.Summary.Errors())
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Kind,
			truncate(r.Spreadsheet, 30),
			r.Status,
			rows,
			errs,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s *monitoring.MetricsSnapshot) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.RunsTotal)
	_, _ = fmt.Fprintf(w, "  Audit:\t%d\n", s.AuditRuns)
	_, _ = fmt.Fprintf(w, "  Recover:\t%d\n", s.RecoverRuns)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.RunsComplete)
	_, _ = fmt.Fprintf(w, "Cancelled:\t%d\n", s.RunsCancelled)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.RunsFailed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.RunsRunning)
	_, _ = p.Fprintf(w, "Rows audited:\t%d\n", s.RowsProcessed)
	for _, src := range []model.Source{model.SourceField, model.SourceLab, model.SourceBrowser, model.SourceError} {
		_, _ = p.Fprintf(w, "  %s:\t%d\n", src.Tag(), s.RowsBySource[src])
	}
	_, _ = fmt.Fprintf(w, "Row error rate:\t%.1f%%\n", s.RowErrorRate*100)
	if s.AvgDurationMs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", float64(s.AvgDurationMs)/1000)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

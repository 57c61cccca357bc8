package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewMonitorCommand creates the monitor command and its subcommands.
func NewMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run and manage query monitoring",
		Long: `Run the monitoring cycle and manage per-query monitoring settings.

Each run takes a fresh snapshot of every due query, compares it to the
previous snapshot, records the detected changes, and optionally emails a
change report.`,
	}

	cmd.AddCommand(newMonitorRunCommand())
	cmd.AddCommand(newMonitorStatusCommand())
	cmd.AddCommand(newMonitorToggleCommand("enable", true))
	cmd.AddCommand(newMonitorToggleCommand("disable", false))
	cmd.AddCommand(newMonitorNotifyCommand())
	cmd.AddCommand(newMonitorHistoryCommand())

	return cmd
}

func newMonitorRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [QUERY]",
		Short: "Run monitoring for all enabled queries, or one query",
		Long: `Run one monitoring cycle.

Without arguments every monitoring-enabled saved query is processed in
turn. With a query id or name only that query runs, regardless of its
enabled flag.`,
		Example: `  # Process every enabled query
  rosterwatch monitor run

  # Force a single query
  rosterwatch monitor run basketball-coaches`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			sched, err := app.Scheduler(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			if len(args) == 1 {
				q, err := resolveQuery(app.Store, args[0])
				if err != nil {
					return err
				}
				rec, err := sched.RunQuery(cmd.Context(), q.ID)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%s: %d new, %d modified, %d deleted\n",
					q.Name, rec.NewCount, rec.ModifiedCount, rec.DeletedCount)
				return nil
			}

			sum, err := sched.Tick(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "Monitoring cycle complete: %d ran, %d failed, %d skipped\n",
				sum.Ran, sum.Failed, sum.Skipped)
			if sum.Failed > 0 {
				return fmt.Errorf("%d quer(ies) failed, see log for details", sum.Failed)
			}
			return nil
		},
	}

	return cmd
}

func newMonitorStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show monitoring state for all saved queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			queries, err := app.Store.ListQueries()
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No saved queries.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"NAME", "ENABLED", "EMAIL", "STATUS", "LAST RUN", "NEXT RUN"})

			for _, q := range queries {
				ms, err := app.Store.MonitoringStateFor(q.ID)
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{
					q.Name,
					yesNo(ms.Enabled),
					yesNo(ms.EmailNotifications),
					string(ms.Status),
					formatRunTime(ms.LastRun),
					formatRunTime(ms.NextRun),
				})
			}
			t.Render()
			return nil
		},
	}
}

func newMonitorToggleCommand(verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " QUERY",
		Short: verb + " monitoring for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			q, err := resolveQuery(app.Store, args[0])
			if err != nil {
				return err
			}
			if err := app.Store.SetMonitoringEnabled(q.ID, enabled); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Monitoring %sd for %q\n", verb, q.Name)
			return nil
		},
	}
}

func newMonitorNotifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notify QUERY on|off",
		Short: "Toggle email notifications for a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[1] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("expected 'on' or 'off', got %q", args[1])
			}

			app, err := OpenApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			q, err := resolveQuery(app.Store, args[0])
			if err != nil {
				return err
			}
			if err := app.Store.SetEmailNotifications(q.ID, enabled); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Email notifications %s for %q\n", args[1], q.Name)
			return nil
		},
	}
}

func newMonitorHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history QUERY",
		Short: "Show recorded change history for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			q, err := resolveQuery(app.Store, args[0])
			if err != nil {
				return err
			}

			records, err := app.Store.ChangeRecords(q.ID, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No monitoring history yet.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"DETECTED", "NEW", "MODIFIED", "DELETED", "NOTIFIED"})

			for _, rec := range records {
				kind := "yes"
				if !rec.NotificationSent {
					kind = "no"
				}
				if rec.PreviousSnapshotID == "" {
					kind = "baseline"
				}
				t.AppendRow(table.Row{
					rec.DetectedAt.Format("2006-01-02 15:04:05"),
					rec.NewCount,
					rec.ModifiedCount,
					rec.DeletedCount,
					kind,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum records to show")

	return cmd
}

func formatRunTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

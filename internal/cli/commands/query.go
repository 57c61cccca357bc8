package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rosterlabs/rosterwatch/internal/query"
	"github.com/rosterlabs/rosterwatch/internal/state"
)

// NewQueryCommand creates the query command and its subcommands.
func NewQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Manage and run saved queries",
		Long: `Manage saved roster queries and run them against the target database.

A saved query is either a structured definition (fields plus condition
groups, compiled to SQL at run time) or a raw custom SELECT statement.`,
	}

	cmd.AddCommand(newQuerySaveCommand())
	cmd.AddCommand(newQueryListCommand())
	cmd.AddCommand(newQueryShowCommand())
	cmd.AddCommand(newQueryDeleteCommand())
	cmd.AddCommand(newQueryRunCommand())
	cmd.AddCommand(newQuerySQLCommand())

	return cmd
}

func newQuerySaveCommand() *cobra.Command {
	var specFile string
	var customSQL string

	cmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Save or update a query",
		Long: `Save a query definition under a name. Saving an existing name updates
it in place and keeps its snapshot history.

Exactly one of --spec or --sql must be given.`,
		Example: `  # Save a structured definition from a JSON file
  rosterwatch query save basketball-coaches --spec coaches.json

  # Save a raw SELECT
  rosterwatch query save all-schools --sql "SELECT * FROM schools"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (specFile == "") == (customSQL == "") {
				return errors.New("exactly one of --spec or --sql is required")
			}

			app, err := OpenApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var spec *query.Spec
			if specFile != "" {
				spec, err = readSpecFile(cmd, specFile)
				if err != nil {
					return err
				}
				// Compile up front so a broken definition is rejected at
				// save time, not on the first monitoring run.
				if _, err := app.Compiler.CompileData(*spec, nil); err != nil {
					return fmt.Errorf("invalid query definition: %w", err)
				}
			}

			saved, err := app.Store.SaveQuery(args[0], spec, customSQL)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved query %q (%s)\n", saved.Name, saved.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&specFile, "spec", "", "JSON query definition file (- for stdin)")
	cmd.Flags().StringVar(&customSQL, "sql", "", "Raw SELECT statement")

	return cmd
}

func newQueryListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved queries",
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
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No saved queries. Use 'rosterwatch query save' to create one.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "NAME", "MONITORED"})
			for _, q := range queries {
				t.AppendRow(table.Row{q.ID, q.Name, yesNo(q.Monitored)})
			}
			t.Render()
			return nil
		},
	}
}

func newQueryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show QUERY",
		Short: "Show a saved query definition",
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

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "ID:      %s\n", q.ID)
			_, _ = fmt.Fprintf(w, "Name:    %s\n", q.Name)
			_, _ = fmt.Fprintf(w, "Created: %s\n", q.CreatedAt.Format("2006-01-02 15:04:05"))
			_, _ = fmt.Fprintf(w, "Updated: %s\n", q.UpdatedAt.Format("2006-01-02 15:04:05"))

			if q.CustomSQL != "" {
				_, _ = fmt.Fprintf(w, "SQL:     %s\n", q.CustomSQL)
				return nil
			}

			out, err := json.MarshalIndent(q.Spec, "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "Definition:\n%s\n", out)
			return nil
		},
	}
}

func newQueryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete QUERY",
		Short: "Delete a saved query and its history",
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
			if err := app.Store.DeleteQuery(q.ID); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted query %q\n", q.Name)
			return nil
		},
	}
}

func newQueryRunCommand() *cobra.Command {
	var format string
	var page int
	var pageSize int
	var count bool

	cmd := &cobra.Command{
		Use:   "run QUERY",
		Short: "Run a saved query against the target database",
		Example: `  # First page of results as a table
  rosterwatch query run basketball-coaches

  # Third page, 50 rows per page, as JSON
  rosterwatch query run basketball-coaches --page 3 --page-size 50 --format json

  # Just the unpaginated row count
  rosterwatch query run basketball-coaches --count`,
		Args: cobra.ExactArgs(1),
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

			gw, err := app.Gateway(cmd.Context())
			if err != nil {
				return err
			}

			if q.CustomSQL != "" {
				if count {
					return errors.New("--count is not supported for custom SQL queries")
				}
				rows, err := gw.ExecuteSelect(cmd.Context(), q.CustomSQL)
				if err != nil {
					return err
				}
				return renderRows(cmd.OutOrStdout(), rows, format)
			}

			if count {
				sqlStr, err := app.Compiler.CompileCount(*q.Spec)
				if err != nil {
					return err
				}
				n, err := gw.Count(cmd.Context(), sqlStr)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			}

			sqlStr, err := app.Compiler.CompileData(*q.Spec, &query.Page{Number: page, Size: pageSize})
			if err != nil {
				return err
			}
			rows, err := gw.Execute(cmd.Context(), sqlStr)
			if err != nil {
				return err
			}
			return renderRows(cmd.OutOrStdout(), rows, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json, csv")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 25, "Rows per page")
	cmd.Flags().BoolVar(&count, "count", false, "Print the unpaginated row count instead of rows")

	return cmd
}

func newQuerySQLCommand() *cobra.Command {
	var count bool

	cmd := &cobra.Command{
		Use:   "sql QUERY",
		Short: "Print the SQL a saved query compiles to",
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

			if q.CustomSQL != "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), q.CustomSQL)
				return nil
			}

			var sqlStr string
			if count {
				sqlStr, err = app.Compiler.CompileCount(*q.Spec)
			} else {
				sqlStr, err = app.Compiler.CompileData(*q.Spec, nil)
			}
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), sqlStr)
			return nil
		},
	}

	cmd.Flags().BoolVar(&count, "count", false, "Print the count variant instead of the data query")

	return cmd
}

// resolveQuery looks a query up by id first, then by name.
func resolveQuery(store state.Store, ref string) (*state.SavedQuery, error) {
	q, err := store.GetQuery(ref)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}

	summaries, err := store.ListQueries()
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		if s.Name == ref {
			return store.GetQuery(s.ID)
		}
	}
	return nil, fmt.Errorf("%w: query %q", state.ErrNotFound, ref)
}

func readSpecFile(cmd *cobra.Command, path string) (*query.Spec, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read query definition: %w", err)
	}

	var spec query.Spec
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse query definition: %w", err)
	}
	return &spec, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

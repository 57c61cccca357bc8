package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/rosterlabs/rosterwatch/internal/rowset"
)

func renderRows(w io.Writer, rows []*rowset.Row, format string) error {
	switch format {
	case "json":
		return renderRowsJSON(w, rows)
	case "csv":
		return renderRowsCSV(w, rows)
	default:
		return renderRowsTable(w, rows)
	}
}

func renderRowsTable(w io.Writer, rows []*rowset.Row) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	cols := rows[0].Columns()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		out := make(table.Row, len(cols))
		for i, col := range cols {
			v, _ := row.Get(col)
			out[i] = formatValue(v)
		}
		t.AppendRow(out)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

func renderRowsJSON(w io.Writer, rows []*rowset.Row) error {
	if rows == nil {
		rows = []*rowset.Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func renderRowsCSV(w io.Writer, rows []*rowset.Row) error {
	if len(rows) == 0 {
		return nil
	}

	cols := rows[0].Columns()
	_, _ = fmt.Fprintln(w, strings.Join(cols, ","))

	for _, row := range rows {
		values := make([]string, len(cols))
		for i, col := range cols {
			v, _ := row.Get(col)
			values[i] = escapeCSV(formatValue(v))
		}
		_, _ = fmt.Fprintln(w, strings.Join(values, ","))
	}
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

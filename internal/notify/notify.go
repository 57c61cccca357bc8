// Package notify formats change reports and delivers them to subscribed
// recipients.
package notify

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/rosterlabs/rosterwatch/internal/diff"
	"github.com/rosterlabs/rosterwatch/internal/notify/email"
	"github.com/rosterlabs/rosterwatch/internal/rowset"
)

// sampleLimit caps how many rows of each change class appear in the report.
const sampleLimit = 10

// Recipient is one notification target.
type Recipient struct {
	Address     string `koanf:"address" json:"address"`
	DisplayName string `koanf:"name" json:"name"`
}

// Dispatcher sends one report per recipient. Delivery failures are logged
// per recipient and never block delivery to the others.
type Dispatcher struct {
	sender email.Sender
	from   string
	logger *slog.Logger
}

// NewDispatcher returns a dispatcher sending through the given sender.
func NewDispatcher(sender email.Sender, from string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{sender: sender, from: from, logger: logger}
}

// Notify formats the change set and delivers it to every recipient. The
// returned count is how many deliveries succeeded; an error is returned only
// when the report itself could not be built.
func (d *Dispatcher) Notify(ctx context.Context, queryName string, recipients []Recipient, cs *diff.ChangeSet) (int, error) {
	body, err := renderReport(queryName, cs)
	if err != nil {
		return 0, fmt.Errorf("failed to render report: %w", err)
	}
	subject := fmt.Sprintf("[rosterwatch] %d change(s) detected for %q", cs.TotalChanges(), queryName)

	sent := 0
	for _, r := range recipients {
		msg := email.Message{
			From:     d.from,
			To:       r.Address,
			ToName:   r.DisplayName,
			Subject:  subject,
			HTMLBody: body,
		}
		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.Error("notification delivery failed",
				"query", queryName, "recipient", r.Address, "error", err)
			continue
		}
		sent++
	}

	d.logger.Info("notifications dispatched",
		"query", queryName, "recipients", len(recipients), "delivered", sent)
	return sent, nil
}

var reportTmpl = template.Must(template.New("report").Parse(`<html>
<body>
<h2>Changes detected for {{.QueryName}}</h2>
<p>
  New: <b>{{.NewCount}}</b> &middot;
  Modified: <b>{{.ModifiedCount}}</b> &middot;
  Deleted: <b>{{.DeletedCount}}</b><br>
  Result set: {{.PreviousTotal}} &rarr; {{.CurrentTotal}} rows
</p>
{{range .Sections}}
<h3>{{.Title}}</h3>
<table border="1" cellpadding="4" cellspacing="0">
  <tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
  {{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
  {{end}}
</table>
{{if .Truncated}}<p><i>Showing first {{len .Rows}} of {{.Total}}.</i></p>{{end}}
{{end}}
</body>
</html>`))

type reportSection struct {
	Title     string
	Columns   []string
	Rows      [][]string
	Truncated bool
	Total     int
}

type reportData struct {
	QueryName     string
	NewCount      int
	ModifiedCount int
	DeletedCount  int
	PreviousTotal int
	CurrentTotal  int
	Sections      []reportSection
}

func renderReport(queryName string, cs *diff.ChangeSet) (string, error) {
	data := reportData{
		QueryName:     queryName,
		NewCount:      len(cs.New),
		ModifiedCount: len(cs.Modified),
		DeletedCount:  len(cs.Deleted),
		PreviousTotal: cs.PreviousTotal,
		CurrentTotal:  cs.CurrentTotal,
	}

	if sec, ok := rowSection("New records", cs.New); ok {
		data.Sections = append(data.Sections, sec)
	}
	if sec, ok := modifiedSection(cs.Modified); ok {
		data.Sections = append(data.Sections, sec)
	}
	if sec, ok := rowSection("Deleted records", cs.Deleted); ok {
		data.Sections = append(data.Sections, sec)
	}

	var b strings.Builder
	if err := reportTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func rowSection(title string, rows []*rowset.Row) (reportSection, bool) {
	if len(rows) == 0 {
		return reportSection{}, false
	}
	sec := reportSection{Title: title, Total: len(rows)}
	sec.Columns = rows[0].Columns()

	limit := len(rows)
	if limit > sampleLimit {
		limit = sampleLimit
		sec.Truncated = true
	}
	for _, row := range rows[:limit] {
		cells := make([]string, 0, len(sec.Columns))
		for _, col := range sec.Columns {
			v, _ := row.Get(col)
			cells = append(cells, formatValue(v))
		}
		sec.Rows = append(sec.Rows, cells)
	}
	return sec, true
}

func modifiedSection(mods []diff.ModifiedRow) (reportSection, bool) {
	if len(mods) == 0 {
		return reportSection{}, false
	}
	sec := reportSection{
		Title:   "Modified records",
		Columns: []string{"record", "field", "previous", "current"},
		Total:   len(mods),
	}

	limit := len(mods)
	if limit > sampleLimit {
		limit = sampleLimit
		sec.Truncated = true
	}
	for _, m := range mods[:limit] {
		label := rowLabel(m.Current)
		for _, fd := range m.Diffs {
			sec.Rows = append(sec.Rows, []string{
				label, fd.Field, formatValue(fd.Previous), formatValue(fd.Current),
			})
		}
	}
	return sec, true
}

// rowLabel picks a human-friendly identifier for a row: the first non-empty
// value whose column looks like a name, else the first column's value.
func rowLabel(row *rowset.Row) string {
	for _, col := range row.Columns() {
		if strings.Contains(strings.ToLower(col), "name") {
			if v, _ := row.Get(col); v != nil {
				return formatValue(v)
			}
		}
	}
	if cols := row.Columns(); len(cols) > 0 {
		v, _ := row.Get(cols[0])
		return formatValue(v)
	}
	return ""
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

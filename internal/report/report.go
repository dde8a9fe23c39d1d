// Package report renders probe results and data source selections for the
// terminal, either as an aligned table or as JSON.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/dashprobe/dashprobe/internal/datasource"
	"github.com/dashprobe/dashprobe/internal/probe"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

// Row is one line of a rendered report.
type Row struct {
	Check  string
	Target string
	OK     bool
	Detail string
}

// Printer writes results to w.
type Printer struct {
	w      io.Writer
	format Format
	styled bool
}

// NewPrinter returns a Printer for w. Text output is colored only when w is
// a terminal.
func NewPrinter(w io.Writer, format Format) *Printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	if format == "" {
		format = FormatText
	}
	return &Printer{w: w, format: format, styled: styled}
}

// JSON writes v as indented JSON regardless of the printer's format.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Report prints a plan run.
func (p *Printer) Report(r *probe.Report) error {
	if p.format == FormatJSON {
		return p.JSON(r)
	}

	rows := Rows(r)
	ok := 0
	for _, row := range rows {
		if row.OK {
			ok++
		}
	}

	footer := []string{"", "", fmt.Sprintf("%d/%d OK", ok, len(rows)), fmt.Sprintf("%s in %dms", r.Driver, r.DurationMS)}
	if r.Mode != "" {
		footer[1] = r.Mode
	}
	_, err := io.WriteString(p.w, p.table(rows, footer))
	return err
}

// Rows flattens a report into display rows, in plan order.
func Rows(r *probe.Report) []Row {
	var rows []Row
	for _, t := range r.Tables {
		rows = append(rows, TableRow(t))
	}
	for _, c := range r.Columns {
		rows = append(rows, ColumnRow(c))
	}
	for _, rel := range r.Relationships {
		rows = append(rows, RelationshipRow(rel))
	}
	for _, d := range r.Duplicates {
		rows = append(rows, DuplicateRow(d))
	}
	return rows
}

func TableRow(t probe.TableResult) Row {
	row := Row{Check: "table", Target: t.Table, OK: t.Exists}
	if t.Exists && t.RowCount != nil {
		row.Detail = fmt.Sprintf("%d rows", *t.RowCount)
	} else {
		row.Detail = reason(t.Kind, t.Error)
	}
	return row
}

func ColumnRow(c probe.ColumnResult) Row {
	row := Row{
		Check:  "columns",
		Target: fmt.Sprintf("%s(%s)", c.Table, strings.Join(c.Columns, ", ")),
		OK:     c.Exists,
	}
	if !c.Exists {
		row.Detail = reason(c.Kind, c.Error)
	}
	return row
}

func RelationshipRow(r probe.RelationshipResult) Row {
	row := Row{
		Check:  "relationship",
		Target: fmt.Sprintf("%s.%s -> %s", r.Child, r.ForeignKey, r.Parent),
		OK:     r.OK(),
	}

	switch {
	case r.Error != "":
		row.Detail = reason(r.Mismatch(), r.Error)
	case row.OK:
		row.Detail = fmt.Sprintf("key %s resolves via lookup and join", r.SampleKey)
	default:
		parts := []string{string(r.Mismatch()), "key " + r.SampleKey}
		if r.LookupSucceeded {
			parts = append(parts, "lookup ok")
		} else {
			parts = append(parts, "lookup: "+r.LookupError)
		}
		switch {
		case !r.JoinSucceeded:
			parts = append(parts, "join: "+r.JoinError)
		case !r.JoinResolvedParent:
			parts = append(parts, "join: no parent row")
		default:
			parts = append(parts, "join ok")
		}
		row.Detail = strings.Join(parts, "; ")
	}
	return row
}

func DuplicateRow(d probe.DuplicateResult) Row {
	row := Row{
		Check:  "duplicates",
		Target: fmt.Sprintf("%s.%s = %q", d.Table, d.Column, d.Value),
		OK:     d.Error == "" && !d.HasDuplicates(),
	}
	if d.Error != "" {
		row.Detail = reason(d.Kind, d.Error)
	} else {
		row.Detail = fmt.Sprintf("%d rows", d.Count)
	}
	return row
}

func reason(kind probe.Kind, msg string) string {
	if kind == probe.KindNone {
		return msg
	}
	return string(kind) + ": " + msg
}

func (p *Printer) table(rows []Row, footer []string) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"CHECK", "TARGET", "STATUS", "DETAIL"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_LEFT,
	})

	for _, row := range rows {
		table.Append([]string{row.Check, row.Target, p.status(row.OK), row.Detail})
	}
	if footer != nil {
		table.SetFooter(footer)
	}
	table.Render()
	return buf.String()
}

func (p *Printer) status(ok bool) string {
	switch {
	case ok && p.styled:
		return okStyle.Render("OK")
	case ok:
		return "OK"
	case p.styled:
		return failStyle.Render("FAIL")
	default:
		return "FAIL"
	}
}

// PrintRows prints individual probe rows without a footer.
func (p *Printer) PrintRows(rows ...Row) error {
	_, err := io.WriteString(p.w, p.table(rows, nil))
	return err
}

// Selection prints the resolved data source.
func (p *Printer) Selection(sel *datasource.Selection) error {
	sum := sel.Summary()
	if p.format == FormatJSON {
		return p.JSON(sum)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Mode:              %s\n", sum.Mode)
	fmt.Fprintf(&b, "Display name:      %s\n", sum.DisplayName)
	fmt.Fprintf(&b, "Expected records:  %d\n", sum.ExpectedRecordCount)
	fmt.Fprintf(&b, "Description:       %s\n", p.dim(sum.Description))
	if sum.Host != "" {
		fmt.Fprintf(&b, "Host:              %s (production: %t)\n", sum.Host, sum.Production)
	}
	for _, w := range sum.Warnings {
		fmt.Fprintf(&b, "%s %s\n", p.style(warnStyle, "WARNING:"), w)
	}
	for _, issue := range sum.Issues {
		fmt.Fprintf(&b, "%s %s\n", p.style(failStyle, "ERROR:"), issue)
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *Printer) dim(text string) string { return p.style(dimStyle, text) }

package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/roach88/narrator/internal/item"
)

// Table renders revealed rows as a markdown table through glamour. The
// active row is emphasised.
type Table struct {
	Columns []item.Column
	Style   Style

	md *glamour.TermRenderer
}

// NewTable creates a table renderer. Empty columns are derived from the data
// on each render.
func NewTable(columns []item.Column, width int, style Style) (*Table, error) {
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle("notty")}
	if style.out != nil && style.out.Profile != termenv.Ascii {
		opts = []glamour.TermRendererOption{glamour.WithAutoStyle()}
	}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create table renderer: %w", err)
	}
	return &Table{Columns: columns, Style: style, md: md}, nil
}

// Markdown returns the table source for f, before styling.
func (t *Table) Markdown(f Frame) string {
	cols := t.Columns
	if len(cols) == 0 {
		cols = item.ColumnsFor(f.Sequence)
	}

	var sb strings.Builder
	if f.Title != "" {
		sb.WriteString("## " + f.Title + "\n\n")
	}
	if len(cols) == 0 {
		return sb.String()
	}

	sb.WriteString("|")
	for _, c := range cols {
		sb.WriteString(" " + escapeCell(c.Heading()) + " |")
	}
	sb.WriteString("\n|")
	for range cols {
		sb.WriteString(" --- |")
	}
	sb.WriteByte('\n')

	for i, it := range f.Revealed {
		sb.WriteString("|")
		for _, c := range cols {
			cell := escapeCell(it.Label(c.Key))
			if i == f.Active && cell != "" {
				cell = "**" + cell + "**"
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (t *Table) Render(f Frame) (string, error) {
	out, err := t.md.Render(t.Markdown(f))
	if err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(out)
	if f.Active >= 0 && f.Active < len(f.Revealed) {
		sb.WriteString(fmt.Sprintf("  row %d%s\n", f.Active+1, t.Style.marker(f, f.Active)))
	}
	writeFooter(&sb, t.Style, f)
	return sb.String(), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

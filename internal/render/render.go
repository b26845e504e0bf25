// Package render draws the revealed prefix of a sequence in the terminal as
// a bar chart, a line chart or a table, highlighting the active item.
package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/roach88/narrator/internal/item"
)

// Kind names a visualization.
type Kind string

const (
	KindBar   Kind = "bar"
	KindLine  Kind = "line"
	KindTable Kind = "table"
)

// Kinds lists every visualization in display order.
var Kinds = []Kind{KindBar, KindLine, KindTable}

// ParseKind validates a visualization name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == strings.ToLower(strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown visualization %q (want bar, line or table)", s)
}

// Frame is everything a renderer needs to draw one state.
type Frame struct {
	Title string

	// Sequence is the full run, used for scaling so bars do not resize as
	// items appear.
	Sequence item.Sequence

	// Revealed is the prefix shown so far.
	Revealed []item.Item

	// Active is the index of the highlighted item, or -1.
	Active    int
	Narrating bool
	Done      bool
}

// Renderer turns a Frame into terminal text.
type Renderer interface {
	Render(f Frame) (string, error)
}

// Style holds the termenv output renderers colour through.
type Style struct {
	out *termenv.Output
}

// NewStyle styles for out. A nil out renders plain ASCII.
func NewStyle(out *termenv.Output) Style {
	if out == nil {
		out = termenv.NewOutput(os.Stdout, termenv.WithProfile(termenv.Ascii))
	}
	return Style{out: out}
}

func (s Style) title(text string) string {
	return s.out.String(text).Bold().Foreground(s.out.Color("#818cf8")).String()
}

func (s Style) active(text string) string {
	return s.out.String(text).Bold().Foreground(s.out.Color("#f472b6")).String()
}

func (s Style) muted(text string) string {
	return s.out.String(text).Faint().String()
}

func (s Style) accent(text string) string {
	return s.out.String(text).Foreground(s.out.Color("#a78bfa")).String()
}

// Speech formats a line spoken outside any visualization.
func (s Style) Speech(text string) string {
	return s.accent("> " + text)
}

// Caption formats free-standing on-screen text.
func (s Style) Caption(text string) string {
	return s.muted(text)
}

// marker returns the suffix drawn after the active item.
func (s Style) marker(f Frame, index int) string {
	if index != f.Active {
		return ""
	}
	if f.Narrating {
		return " " + s.active("<< speaking")
	}
	return " " + s.active("<<")
}

// DefaultWidth is used when the terminal size cannot be read.
const DefaultWidth = 80

// TerminalWidth returns the width of f, or DefaultWidth if f is not a
// terminal.
func TerminalWidth(f *os.File) int {
	if f == nil {
		return DefaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return DefaultWidth
	}
	return w
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// New builds the renderer for kind.
func New(kind Kind, fields item.FieldMap, columns []item.Column, width int, style Style) (Renderer, error) {
	switch kind {
	case KindBar:
		return &BarChart{Fields: fields.WithDefaults(), Width: width, Style: style}, nil
	case KindLine:
		return &LineChart{Fields: fields.WithDefaults(), Width: width, Style: style}, nil
	case KindTable:
		return NewTable(columns, width, style)
	default:
		return nil, fmt.Errorf("unknown visualization %q", kind)
	}
}

func maxLabelWidth(items []item.Item, key string) int {
	w := 0
	for _, it := range items {
		if n := len([]rune(it.Label(key))); n > w {
			w = n
		}
	}
	return w
}

func pad(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

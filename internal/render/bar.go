package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/narrator/internal/item"
)

// minBar is the narrowest bar area drawn, however small the terminal.
const minBar = 10

// BarChart draws one horizontal bar per revealed item, scaled to the largest
// value in the whole sequence.
type BarChart struct {
	Fields item.FieldMap
	Width  int
	Style  Style
}

func (b *BarChart) Render(f Frame) (string, error) {
	all := f.Sequence
	if len(all) == 0 {
		all = f.Revealed
	}

	fields := b.Fields.WithDefaults()
	labelW := maxLabelWidth(all, fields.X)
	valueW := maxLabelWidth(all, fields.Y)
	width := b.Width
	if width <= 0 {
		width = DefaultWidth
	}
	barW := width - labelW - valueW - len(" << speaking") - 3
	if barW < minBar {
		barW = minBar
	}

	peak := 0.0
	for _, it := range all {
		if v, ok := it.Number(fields.Y); ok && v > peak {
			peak = v
		}
	}

	var sb strings.Builder
	writeTitle(&sb, b.Style, f.Title)

	for i, it := range f.Revealed {
		n := 0
		if v, ok := it.Number(fields.Y); ok && peak > 0 && v > 0 {
			n = int(math.Round(v / peak * float64(barW)))
			if n == 0 {
				n = 1
			}
		}
		bar := strings.Repeat("█", n)
		if i == f.Active {
			bar = b.Style.active(bar)
		} else {
			bar = b.Style.accent(bar)
		}
		line := fmt.Sprintf("%s %s %s", pad(it.Label(fields.X), labelW), bar, it.Label(fields.Y))
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteString(b.Style.marker(f, i))
		sb.WriteByte('\n')
	}

	writeFooter(&sb, b.Style, f)
	return sb.String(), nil
}

func writeTitle(sb *strings.Builder, s Style, title string) {
	if title == "" {
		return
	}
	sb.WriteString(s.title(title))
	sb.WriteString("\n\n")
}

func writeFooter(sb *strings.Builder, s Style, f Frame) {
	switch {
	case f.Done:
		sb.WriteString(s.muted(fmt.Sprintf("%d/%d shown, done", len(f.Revealed), len(f.Sequence))))
	case len(f.Sequence) > 0:
		sb.WriteString(s.muted(fmt.Sprintf("%d/%d shown", len(f.Revealed), len(f.Sequence))))
	default:
		return
	}
	sb.WriteByte('\n')
}

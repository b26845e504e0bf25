package render

import (
	"math"
	"strings"

	"github.com/roach88/narrator/internal/item"
)

// lineHeight is the number of rows in the plot area.
const lineHeight = 8

// LineChart plots revealed items as points on a fixed grid, one column per
// item, with x labels underneath.
type LineChart struct {
	Fields item.FieldMap
	Width  int
	Style  Style
}

func (l *LineChart) Render(f Frame) (string, error) {
	all := f.Sequence
	if len(all) == 0 {
		all = f.Revealed
	}
	fields := l.Fields.WithDefaults()

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, it := range all {
		if v, ok := it.Number(fields.Y); ok {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 0) {
		lo, hi = 0, 0
	}

	// Column width fits the widest x label, capped so wide data still fits.
	colW := maxLabelWidth(all, fields.X) + 1
	if colW < 4 {
		colW = 4
	}
	if w := l.Width; w > 0 && len(all) > 0 && colW*len(all) > w {
		colW = max(2, w/len(all))
	}

	rows := make([][]string, lineHeight)
	for r := range rows {
		rows[r] = make([]string, len(all))
		for c := range rows[r] {
			rows[r][c] = strings.Repeat(" ", colW)
		}
	}

	for i, it := range f.Revealed {
		v, ok := it.Number(fields.Y)
		if !ok {
			continue
		}
		level := 0
		if hi > lo {
			level = int(math.Round((v - lo) / (hi - lo) * float64(lineHeight-1)))
		}
		point := l.Style.accent("o")
		if i == f.Active {
			point = l.Style.active("@")
		}
		rows[lineHeight-1-level][i] = point + strings.Repeat(" ", colW-1)
	}

	var sb strings.Builder
	writeTitle(&sb, l.Style, f.Title)

	for _, row := range rows {
		sb.WriteString("| ")
		sb.WriteString(strings.TrimRight(strings.Join(row, ""), " "))
		sb.WriteByte('\n')
	}
	sb.WriteString("+-")
	sb.WriteString(strings.Repeat("-", colW*len(all)))
	sb.WriteByte('\n')

	sb.WriteString("  ")
	var labels strings.Builder
	for i, it := range f.Revealed {
		label := []rune(it.Label(fields.X))
		if len(label) > colW-1 {
			label = label[:colW-1]
		}
		cell := pad(string(label), colW)
		if i == f.Active {
			cell = l.Style.active(string(label)) + strings.Repeat(" ", colW-len(label))
		}
		labels.WriteString(cell)
	}
	sb.WriteString(strings.TrimRight(labels.String(), " "))
	sb.WriteByte('\n')

	if f.Active >= 0 && f.Active < len(f.Revealed) {
		it := f.Revealed[f.Active]
		sb.WriteString("  " + it.Label(fields.X) + ": " + it.Label(fields.Y) + l.Style.marker(f, f.Active) + "\n")
	}

	writeFooter(&sb, l.Style, f)
	return sb.String(), nil
}

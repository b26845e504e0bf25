package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
)

func plain() Style {
	return NewStyle(termenv.NewOutput(&bytes.Buffer{}, termenv.WithProfile(termenv.Ascii)))
}

func point(x string, y any, text string) item.Item {
	return item.New(map[string]any{"month": x, "desktop": y}, text)
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(" " + strings.ToUpper(string(k)) + " ")
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("pie")
	assert.ErrorContains(t, err, "unknown visualization")
}

func TestBarChart(t *testing.T) {
	seq := item.Sequence{point("Jan", 50, ""), point("Feb", 100, "")}
	b := &BarChart{Width: 40, Style: plain()}

	out, err := b.Render(Frame{
		Title:     "Sales",
		Sequence:  seq,
		Revealed:  seq,
		Active:    1,
		Narrating: true,
	})
	require.NoError(t, err)

	want := "Sales\n\n" +
		"Jan " + strings.Repeat("█", 10) + " 50\n" +
		"Feb " + strings.Repeat("█", 19) + " 100 << speaking\n" +
		"2/2 shown\n"
	assert.Equal(t, want, out)
}

func TestBarChart_ScalesToWholeSequence(t *testing.T) {
	seq := item.Sequence{point("a", 10, ""), point("b", 40, "")}
	b := &BarChart{Width: 40, Style: plain()}

	out, err := b.Render(Frame{Sequence: seq, Revealed: seq[:1], Active: 0})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	// The first bar is a quarter of the widest, not full width.
	assert.Equal(t, 6, strings.Count(lines[0], "█"), lines[0])
	assert.Contains(t, lines[0], "<<")
}

func TestBarChart_NonNumericValues(t *testing.T) {
	seq := item.Sequence{point("a", "n/a", "")}
	out, err := (&BarChart{Style: plain()}).Render(Frame{Sequence: seq, Revealed: seq, Active: -1, Done: true})
	require.NoError(t, err)
	assert.Equal(t, "a  n/a\n1/1 shown, done\n", out)
}

func TestLineChart(t *testing.T) {
	seq := item.Sequence{point("a", 1, ""), point("b", 3, ""), point("c", 2, "")}
	l := &LineChart{Style: plain()}

	out, err := l.Render(Frame{Sequence: seq, Revealed: seq[:2], Active: 1})
	require.NoError(t, err)

	want := []string{
		"|     @",
		"| ",
		"| ",
		"| ",
		"| ",
		"| ",
		"| ",
		"| o",
		"+-" + strings.Repeat("-", 12),
		"  a   b",
		"  b: 3 <<",
		"2/3 shown",
		"",
	}
	assert.Equal(t, strings.Join(want, "\n"), out)
}

func TestLineChart_FlatSeries(t *testing.T) {
	seq := item.Sequence{point("a", 5, ""), point("b", 5, "")}
	out, err := (&LineChart{Style: plain()}).Render(Frame{Sequence: seq, Revealed: seq, Active: -1})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "| o   o", lines[lineHeight-1], "equal values sit on the baseline")
}

func TestTable_Markdown(t *testing.T) {
	seq := item.Sequence{
		item.New(map[string]any{"method": "UPI", "sr": "45%"}, "UPI has a success rate of 45 percent"),
		item.New(map[string]any{"method": "Card|Debit", "sr": "78%"}, ""),
	}
	tbl, err := NewTable([]item.Column{{Key: "method", Label: "Payment Method"}, {Key: "sr"}}, 80, plain())
	require.NoError(t, err)

	md := tbl.Markdown(Frame{Title: "Success rate", Sequence: seq, Revealed: seq, Active: 1})
	assert.Equal(t, "## Success rate\n\n"+
		"| Payment Method | sr |\n"+
		"| --- | --- |\n"+
		"| UPI | 45% |\n"+
		`| **Card\|Debit** | **78%** |`+"\n", md)
}

func TestTable_DerivesColumns(t *testing.T) {
	seq := item.Sequence{item.New(map[string]any{"b": 1, "a": 2}, "")}
	tbl, err := NewTable(nil, 0, plain())
	require.NoError(t, err)

	md := tbl.Markdown(Frame{Sequence: seq, Revealed: seq, Active: -1})
	assert.True(t, strings.HasPrefix(md, "| a | b |\n"), md)
}

func TestTable_Render(t *testing.T) {
	seq := item.Sequence{
		item.New(map[string]any{"method": "UPI", "sr": "45%"}, ""),
		item.New(map[string]any{"method": "Card", "sr": "78%"}, ""),
	}
	tbl, err := NewTable(nil, 60, plain())
	require.NoError(t, err)

	out, err := tbl.Render(Frame{Sequence: seq, Revealed: seq[:1], Active: 0, Narrating: true})
	require.NoError(t, err)

	assert.Contains(t, out, "UPI")
	assert.Contains(t, out, "45%")
	assert.NotContains(t, out, "Card")
	assert.Contains(t, out, "row 1 << speaking")
	assert.Contains(t, out, "1/2 shown")
}

func TestNew(t *testing.T) {
	for _, k := range Kinds {
		r, err := New(k, item.FieldMap{}, nil, 80, plain())
		require.NoError(t, err)
		assert.NotNil(t, r)
	}
	_, err := New("pie", item.FieldMap{}, nil, 80, plain())
	assert.Error(t, err)
}

func TestView_FollowsHooks(t *testing.T) {
	var buf bytes.Buffer
	seq := item.Sequence{point("Jan", 1, "one"), point("Feb", 2, "")}
	v := NewView(&BarChart{Width: 40, Style: plain()}, &buf, "Chart")
	h := v.Hooks()

	h.OnStart("run-1", seq)
	h.OnReveal("run-1", 0, seq[0])
	h.OnNarrationStart("run-1", 0, seq[0], "")
	assert.True(t, v.Frame().Narrating)

	h.OnNarrationEnd("run-1", 0, narration.Completed())
	h.OnReveal("run-1", 1, seq[1])
	h.OnNarrationStart("run-1", 1, seq[1], narration.ReasonNoText)
	assert.False(t, v.Frame().Narrating, "skipped items are not shown as speaking")

	h.OnComplete("run-1", 2)

	f := v.Frame()
	assert.True(t, f.Done)
	assert.Equal(t, -1, f.Active)
	assert.Len(t, f.Revealed, 2)
	assert.Contains(t, buf.String(), "Jan")
	assert.Contains(t, buf.String(), "2/2 shown, done")
	assert.Equal(t, 6, strings.Count(buf.String(), "Chart\n"), "one frame per hook that draws")
}

func TestView_RestartClearsFrame(t *testing.T) {
	var buf bytes.Buffer
	v := NewView(&BarChart{Style: plain()}, &buf, "")
	h := v.Hooks()

	seq := item.Sequence{point("a", 1, "")}
	h.OnStart("run-1", seq)
	h.OnReveal("run-1", 0, seq[0])
	h.OnStart("run-2", seq)

	assert.Empty(t, v.Frame().Revealed)
}

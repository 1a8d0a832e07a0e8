package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StepStyle supplies the glyphs and colors for a step row
type StepStyle struct {
	Empty, Active, Playhead                   rune
	CursorEmpty, CursorActive, CursorPlayhead rune

	// Color maps a cell value in (0,1] to its color
	Color  func(v float64) lipgloss.Color
	Dim    lipgloss.Color
	Cursor lipgloss.Color
}

// RenderSteps renders one lane. playhead and cursor are column indexes, -1
// for none. Every fourth column is followed by a gap.
func RenderSteps(cells []float64, playhead, cursor int, st StepStyle) string {
	var out strings.Builder
	for col, v := range cells {
		if col > 0 && col%4 == 0 {
			out.WriteString(" ")
		}
		out.WriteString(renderStep(v, col == playhead, col == cursor, st))
	}
	return out.String()
}

func renderStep(v float64, playhead, cursor bool, st StepStyle) string {
	var glyph rune
	switch {
	case cursor && playhead:
		glyph = st.CursorPlayhead
	case cursor && v > 0:
		glyph = st.CursorActive
	case cursor:
		glyph = st.CursorEmpty
	case playhead:
		glyph = st.Playhead
	case v > 0:
		glyph = st.Active
	default:
		glyph = st.Empty
	}

	color := st.Dim
	switch {
	case cursor:
		color = st.Cursor
	case v > 0 && st.Color != nil:
		color = st.Color(v)
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(glyph))
}

// RenderFlag renders a labelled on/off indicator
func RenderFlag(label string, on bool, onColor, offColor lipgloss.Color) string {
	if on {
		return lipgloss.NewStyle().Foreground(onColor).Bold(true).Render(label)
	}
	return lipgloss.NewStyle().Foreground(offColor).Render(strings.ToLower(label))
}

package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

var testStyle = StepStyle{
	Empty: '·', Active: '●', Playhead: '▶',
	CursorEmpty: '○', CursorActive: '◉', CursorPlayhead: '▷',
	Color: func(float64) lipgloss.Color { return lipgloss.Color("#ffffff") },
}

func TestRenderSteps(t *testing.T) {
	tests := []struct {
		name             string
		cells            []float64
		playhead, cursor int
		want             string
	}{
		{"empty", []float64{0, 0, 0}, -1, -1, "···"},
		{"active", []float64{0, .5, 1}, -1, -1, "·●●"},
		{"playhead", []float64{1, 0}, 1, -1, "●▶"},
		{"cursor", []float64{0, 1}, -1, 0, "○●"},
		{"cursor on active", []float64{0, 1}, -1, 1, "·◉"},
		{"cursor on playhead", []float64{0, 0}, 0, 0, "▷·"},
		{"groups of four", []float64{0, 0, 0, 0, 0, 0}, -1, -1, "···· ··"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderSteps(tt.cells, tt.playhead, tt.cursor, testStyle); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderPadGrid(t *testing.T) {
	var grid [8][8][3]uint8
	grid[0][0] = [3]uint8{255, 0, 0}

	lines := strings.Split(RenderPadGrid(grid), "\n")
	if len(lines) != 8 {
		t.Fatalf("got %d lines, want 8", len(lines))
	}
	if !strings.HasPrefix(lines[0], "■") {
		t.Errorf("top row = %q, want the lit pad first", lines[0])
	}
	if strings.Contains(lines[7], "■") {
		t.Errorf("bottom row = %q, want all off", lines[7])
	}
}

func TestRgbToHex(t *testing.T) {
	if got := rgbToHex([3]uint8{255, 16, 0}); got != "#ff1000" {
		t.Errorf("got %s", got)
	}
}

package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the palette plus the glyphs the terminal view draws with
type Theme struct {
	Palette *Palette
	Symbols Symbols
}

// Symbols are the step grid glyphs, with and without the edit cursor
type Symbols struct {
	StepEmpty    rune
	StepActive   rune
	StepPlayhead rune

	CursorEmpty    rune
	CursorActive   rune
	CursorPlayhead rune
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			StepEmpty:      '·',
			StepActive:     '●',
			StepPlayhead:   '▶',
			CursorEmpty:    '○',
			CursorActive:   '◉',
			CursorPlayhead: '▷',
		},
	}
}

// Role is a palette position in [0,1]
type Role float64

const (
	RoleMuted   Role = 0.2
	RoleFG      Role = 0.4
	RoleAccent  Role = 0.5
	RoleCursor  Role = 0.6
	RoleActive  Role = 0.7
	RoleWarning Role = 0.8
	RoleSuccess Role = 1.0
)

// controller light families 1-3: lanes, toggles, playhead
var lightRoles = [...]Role{RoleActive, RoleAccent, RoleSuccess}

// dim lights are this fraction of their bright color
const dimLevel = 0.3

// Light returns the RGB for a controller light. family is 1-3; anything
// else is off.
func (t *Theme) Light(family int, bright bool) RGB {
	if family < 1 || family > len(lightRoles) {
		return RGB{}
	}
	c := t.Palette.Lookup(float64(lightRoles[family-1]))
	if !bright {
		c = c.Scale(dimLevel)
	}
	return c
}

// Role returns the terminal color for r
func (t *Theme) Role(r Role) lipgloss.Color {
	return t.Color(float64(r))
}

func (t *Theme) FG() lipgloss.Color { return t.Role(RoleFG) }
func (t *Theme) Accent() lipgloss.Color { return t.Role(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color { return t.Role(RoleMuted) }
func (t *Theme) Active() lipgloss.Color { return t.Role(RoleActive) }
func (t *Theme) Cursor() lipgloss.Color { return t.Role(RoleCursor) }
func (t *Theme) Warning() lipgloss.Color { return t.Role(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Role(RoleSuccess) }

// Color returns the terminal color at norm in [0,1], used for cell velocity
func (t *Theme) Color(norm float64) lipgloss.Color {
	c := t.Palette.Lookup(norm)
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}

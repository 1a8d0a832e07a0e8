package theme

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadGPL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.gpl")
	data := "GIMP Palette\nName: test\nColumns: 2\n# comment\n  0   0   0\tblack\n255 255 255\twhite\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadGPL(path)
	if err != nil {
		t.Fatalf("LoadGPL: %v", err)
	}
	if p.Name != "test" || len(p.Colors) != 2 {
		t.Fatalf("got %q with %d colors", p.Name, len(p.Colors))
	}
	if got := p.Lookup(.5); got != (RGB{127, 127, 127}) {
		t.Errorf("Lookup(.5) = %v", got)
	}
	if got := p.Lookup(2); got != (RGB{255, 255, 255}) {
		t.Errorf("Lookup(2) = %v, want the last color", got)
	}
}

func TestLoadGPLEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gpl")
	if err := os.WriteFile(path, []byte("GIMP Palette\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGPL(path); err == nil {
		t.Error("expected error for palette without colors")
	}
}

func TestParseGPLRejects(t *testing.T) {
	tests := []struct {
		name, data string
	}{
		{"empty", "GIMP Palette\n"},
		{"short row", "GIMP Palette\n0 0\n"},
		{"not a number", "GIMP Palette\n0 x 0\n"},
		{"out of range", "GIMP Palette\n0 256 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseGPL(strings.NewReader(tt.data)); !errors.Is(err, ErrPalette) {
				t.Errorf("err = %v, want ErrPalette", err)
			}
		})
	}
}

func TestLight(t *testing.T) {
	th := New(Plasma())

	if got := th.Light(0, true); got != (RGB{}) {
		t.Errorf("family 0 = %v, want off", got)
	}
	bright := th.Light(3, true)
	if bright != (RGB{240, 249, 33}) {
		t.Errorf("family 3 bright = %v", bright)
	}
	dim := th.Light(3, false)
	if dim[0] >= bright[0] || dim[1] >= bright[1] {
		t.Errorf("dim %v not darker than bright %v", dim, bright)
	}
}

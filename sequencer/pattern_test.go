package sequencer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go-playseq/transport"
)

func newPattern(iv transport.Interval, top, bottom, steps int) Pattern {
	p := Pattern{Interval: iv, Measures: 1, Top: top, Bottom: bottom, Tempo: 100}
	for lane := range p.Cells {
		p.Cells[lane] = make([]float64, steps)
	}
	return p
}

func TestPatternRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		top, bottom int
		steps       int
		cells       map[[2]int]float64 // {col, lane}
		wantMeasure int
	}{
		{"one bar", 4, 4, 16, map[[2]int]float64{{0, 0}: 1, {4, 3}: 64.0 / 127, {15, 15}: 1}, 1},
		{"two bars", 4, 4, 32, map[[2]int]float64{{20, 2}: 1}, 2},
		{"three four", 3, 4, 12, map[[2]int]float64{{11, 7}: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPattern(transport.Interval16n, tt.top, tt.bottom, tt.steps)
			for at, v := range tt.cells {
				p.Cells[at[1]][at[0]] = v
			}

			var buf bytes.Buffer
			if err := WritePattern(&buf, p, 36, 0); err != nil {
				t.Fatal(err)
			}
			got, err := ReadPattern(&buf, 36, transport.Interval16n)
			if err != nil {
				t.Fatal(err)
			}

			if got.Top != tt.top || got.Bottom != tt.bottom {
				t.Errorf("meter %d/%d, want %d/%d", got.Top, got.Bottom, tt.top, tt.bottom)
			}
			if !near(got.Tempo, 100) {
				t.Errorf("tempo %v, want 100", got.Tempo)
			}
			if got.Measures != tt.wantMeasure {
				t.Errorf("measures %d, want %d", got.Measures, tt.wantMeasure)
			}
			for lane := range got.Cells {
				for col, v := range got.Cells[lane] {
					if want := tt.cells[[2]int{col, lane}]; !near(v, want) {
						t.Errorf("cell %d,%d = %v, want %v", col, lane, v, want)
					}
				}
			}
		})
	}
}

func TestPatternTempoIsExact(t *testing.T) {
	for _, bpm := range []float64{90, 110, 127, 140.5, 300} {
		t.Run(fmt.Sprint(bpm), func(t *testing.T) {
			p := newPattern(transport.Interval16n, 4, 4, 16)
			p.Tempo = bpm

			// saving and loading repeatedly must not drift
			for pass := 1; pass <= 3; pass++ {
				var buf bytes.Buffer
				if err := WritePattern(&buf, p, 36, 0); err != nil {
					t.Fatal(err)
				}
				got, err := ReadPattern(&buf, 36, transport.Interval16n)
				if err != nil {
					t.Fatal(err)
				}
				if got.Tempo != bpm {
					t.Fatalf("pass %d: tempo %v, want exactly %v", pass, got.Tempo, bpm)
				}
				p = got
			}
		})
	}
}

func TestReadPatternSkipsOtherNotes(t *testing.T) {
	p := newPattern(transport.Interval16n, 4, 4, 16)
	p.Cells[0][0] = 1
	p.Cells[1][1] = 1

	var buf bytes.Buffer
	// lane 0 lands on note 60, lane 1 on 61
	if err := WritePattern(&buf, p, 60, 0); err != nil {
		t.Fatal(err)
	}
	// read with lanes starting at 61, so 60 falls below lane 0
	got, err := ReadPattern(&buf, 61, transport.Interval16n)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cells[0][1] != 1 {
		t.Error("note 61 should land on lane 0")
	}
	for lane := range got.Cells {
		if got.Cells[lane][0] != 0 {
			t.Errorf("note 60 landed on lane %d", lane)
		}
	}
}

func TestReadPatternRejectsGarbage(t *testing.T) {
	_, err := ReadPattern(strings.NewReader("not a midi file"), 36, transport.Interval16n)
	if !errors.Is(err, ErrPattern) {
		t.Errorf("err = %v, want ErrPattern", err)
	}
}

func TestWritePatternBadInterval(t *testing.T) {
	p := newPattern(transport.Interval(99), 4, 4, 1)
	err := WritePattern(&bytes.Buffer{}, p, 36, 0)
	if !errors.Is(err, ErrPattern) {
		t.Errorf("err = %v, want ErrPattern", err)
	}
}

func TestSequencerPatternLoad(t *testing.T) {
	_, s := newTestSequencer(nil)
	p := newPattern(transport.Interval8n, 4, 4, 16)
	p.Measures = 2
	p.Cells[3][9] = .5

	if err := s.LoadPattern(p); err != nil {
		t.Fatal(err)
	}
	if s.Interval() != transport.Interval8n || s.NumMeasures() != 2 || s.Steps() != 16 {
		t.Errorf("loaded %s x%d, %d steps", s.Interval(), s.NumMeasures(), s.Steps())
	}
	if s.Cell(9, 3) != .5 {
		t.Errorf("cell = %v, want .5", s.Cell(9, 3))
	}

	out := s.Pattern()
	if out.Cells[3][9] != .5 || out.Steps() != 16 {
		t.Error("Pattern doesn't mirror the loaded grid")
	}

	p.Measures = 5
	if err := s.LoadPattern(p); !errors.Is(err, ErrMeasures) {
		t.Errorf("err = %v, want ErrMeasures", err)
	}
}

package sequencer

import (
	"io"
	"math"

	"github.com/charmbracelet/log"

	"go-playseq/midi"
	"go-playseq/transport"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// recorder collects every note it is sent
type recorder struct {
	notes []midi.Note
}

func (r *recorder) PlayNote(n midi.Note) {
	r.notes = append(r.notes, n)
}

func (r *recorder) reset() {
	r.notes = nil
}

func (r *recorder) ons() []midi.Note {
	var out []midi.Note
	for _, n := range r.notes {
		if n.IsOn() {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) offs() []midi.Note {
	var out []midi.Note
	for _, n := range r.notes {
		if !n.IsOn() {
			out = append(out, n)
		}
	}
	return out
}

// sounding replays the received notes and returns the pitches left on
func (r *recorder) sounding() map[int]bool {
	on := map[int]bool{}
	for _, n := range r.notes {
		if n.IsOn() {
			on[n.Pitch] = true
		} else {
			delete(on, n.Pitch)
		}
	}
	return on
}

// sinkRecorder is a recorder that also satisfies Sink
type sinkRecorder struct {
	recorder
	updates int
	last    float64
}

func (s *sinkRecorder) Update(time float64) {
	s.updates++
	s.last = time
}

// lightBoard records the last color of every light
type lightBoard struct {
	lights [8][8]GridColor
	calls  int
}

func (l *lightBoard) SetLight(x, y int, c GridColor) {
	l.lights[y][x] = c
	l.calls++
}

func newTestSequencer(out midi.Receiver) (*transport.Transport, *PlaySequencer) {
	tr := transport.New(testLogger())
	s, err := NewPlaySequencer(tr, out, testLogger())
	if err != nil {
		panic(err)
	}
	tr.Start(0)
	return tr, s
}

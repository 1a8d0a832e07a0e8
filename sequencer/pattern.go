package sequencer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-playseq/midi"
	"go-playseq/transport"
)

// ErrPattern is returned for MIDI files that can't be read as a pattern
var ErrPattern = errors.New("unreadable pattern")

const patternTicks = smf.MetricTicks(960)

// Pattern is a copy of the sequencer grid with the timing needed to play it
// back elsewhere
type Pattern struct {
	Interval    transport.Interval
	Measures    int
	Top, Bottom int
	Tempo       float64

	// one row per lane, one value in [0,1] per step
	Cells [NumLanes][]float64
}

// Steps is the number of columns in the pattern
func (p Pattern) Steps() int {
	return len(p.Cells[0])
}

// Pattern copies out the current grid. Tempo is left to the caller.
func (s *PlaySequencer) Pattern() Pattern {
	p := Pattern{
		Interval: s.interval,
		Measures: s.numMeasures,
		Top:      s.tr.GetTimeSigTop(),
		Bottom:   s.tr.GetTimeSigBottom(),
	}
	for lane := range p.Cells {
		row := make([]float64, s.grid.Cols())
		for col := range row {
			row[col] = s.grid.Get(col, lane)
		}
		p.Cells[lane] = row
	}
	return p
}

// LoadPattern replaces the grid with p, adopting its interval and length.
// The meter and tempo stay with the transport.
func (s *PlaySequencer) LoadPattern(p Pattern) error {
	if p.Interval != s.interval {
		if err := s.SetInterval(p.Interval); err != nil {
			return err
		}
	}
	if err := s.SetNumMeasures(p.Measures); err != nil {
		return err
	}
	s.grid.Clear()
	for lane, row := range p.Cells {
		for col, v := range row {
			s.grid.Set(col, lane, v)
		}
	}
	return nil
}

func ticksPerStep(iv transport.Interval) uint32 {
	count := iv.CountInStandardMeasure()
	if count == 0 {
		return 0
	}
	return uint32(patternTicks.Resolution()) * 4 / uint32(count)
}

type patternEvent struct {
	tick uint32
	msg  gomidi.Message
	off  bool
}

// WritePattern writes p as a single track Standard MIDI File. Every cell is a
// note half a step long; lane 0 plays laneNote.
func WritePattern(w io.Writer, p Pattern, laneNote int, channel uint8) error {
	step := ticksPerStep(p.Interval)
	if step == 0 {
		return fmt.Errorf("%w: interval %s", ErrPattern, p.Interval)
	}
	gate := step / 2

	var events []patternEvent
	for lane, row := range p.Cells {
		key := laneNote + lane
		if !midi.InRange(key) {
			continue
		}
		for col, v := range row {
			vel := uint8(math.Round(clamp01(v) * 127))
			if vel == 0 {
				continue
			}
			tick := uint32(col) * step
			events = append(events,
				patternEvent{tick: tick, msg: gomidi.NoteOn(channel, uint8(key), vel)},
				patternEvent{tick: tick + gate, msg: gomidi.NoteOff(channel, uint8(key)), off: true},
			)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].off && !events[j].off
	})

	tempo := p.Tempo
	if tempo <= 0 {
		tempo = 120
	}

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("go-playseq pattern"))
	tr.Add(0, smf.MetaMeter(uint8(p.Top), uint8(p.Bottom)))
	tr.Add(0, smf.MetaTempo(tempo))

	var last uint32
	for _, ev := range events {
		tr.Add(ev.tick-last, ev.msg)
		last = ev.tick
	}
	end := uint32(p.Steps()) * step
	if end < last {
		end = last
	}
	tr.Close(end - last)

	f := smf.New()
	f.TimeFormat = patternTicks
	if err := f.Add(tr); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	return nil
}

// ReadPattern builds a pattern from the note starts in a MIDI file, snapping
// each to the nearest step of interval. Notes outside the lane range are
// skipped; the length is the shortest measure count holding every note, up
// to 16 measures.
func ReadPattern(r io.Reader, laneNote int, interval transport.Interval) (Pattern, error) {
	f, err := smf.ReadFrom(r)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %w", ErrPattern, err)
	}
	ticks, ok := f.TimeFormat.(smf.MetricTicks)
	if !ok {
		return Pattern{}, fmt.Errorf("%w: only metric time is supported", ErrPattern)
	}

	p := Pattern{Interval: interval, Top: 4, Bottom: 4, Tempo: 120}
	step := float64(ticks.Resolution()) * 4 / float64(interval.CountInStandardMeasure())
	if step == 0 || math.IsInf(step, 0) {
		return Pattern{}, fmt.Errorf("%w: interval %s", ErrPattern, interval)
	}

	type hit struct {
		col, lane int
		vel       uint8
	}
	var hits []hit
	maxCol := 0

	for _, track := range f.Tracks {
		var abs uint64
		for _, ev := range track {
			abs += uint64(ev.Delta)

			var num, denom uint8
			var bpm float64
			switch {
			case ev.Message.GetMetaMeter(&num, &denom):
				if num > 0 && denom > 0 {
					p.Top, p.Bottom = int(num), int(denom)
				}
				continue
			case ev.Message.GetMetaTempo(&bpm):
				// files hold whole microseconds per quarter
				p.Tempo = math.Round(bpm*1000) / 1000
				continue
			}

			var ch, key, vel uint8
			if !gomidi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
				continue
			}
			lane := int(key) - laneNote
			if lane < 0 || lane >= NumLanes {
				continue
			}
			col := int(math.Round(float64(abs) / step))
			hits = append(hits, hit{col: col, lane: lane, vel: vel})
			maxCol = max(maxCol, col)
		}
	}

	spm := interval.CountInStandardMeasure() * p.Top / p.Bottom
	if spm <= 0 {
		return Pattern{}, fmt.Errorf("%w: %s in %d/%d", ErrNoSteps, interval, p.Top, p.Bottom)
	}
	p.Measures = MeasureCounts[len(MeasureCounts)-1]
	for _, n := range MeasureCounts {
		if n*spm > maxCol {
			p.Measures = n
			break
		}
	}

	cols := spm * p.Measures
	for lane := range p.Cells {
		p.Cells[lane] = make([]float64, cols)
	}
	for _, h := range hits {
		if h.col < cols {
			p.Cells[h.lane][h.col] = float64(h.vel) / 127
		}
	}
	return p, nil
}

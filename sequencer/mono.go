package sequencer

import (
	"github.com/charmbracelet/log"

	"go-playseq/midi"
)

// MaxGlideMs bounds the glide time
const MaxGlideMs = 1000

// Monophonic collapses any incoming note stream into a single legato voice.
// Pitch changes while a key is held glide through a pitch bend ramp that the
// converter owns and appends to every note it sends.
type Monophonic struct {
	enabled     bool
	glideMs     float64
	requireHeld bool

	// time each pitch was pressed, -1 when released
	held  [128]float64
	order [128]uint64
	seq   uint64

	lastPlayed   int
	lastVelocity int

	bend *midi.Ramp
	out  *midi.Output
	log  *log.Logger
}

// NewMonophonic creates an enabled converter playing into out
func NewMonophonic(out midi.Receiver, logger *log.Logger) *Monophonic {
	if logger == nil {
		logger = log.Default()
	}
	m := &Monophonic{
		enabled:    true,
		lastPlayed: -1,
		bend:       midi.NewRamp(0),
		out:        midi.NewOutput(out),
		log:        logger.WithPrefix("mono"),
	}
	m.clearHeld()
	return m
}

func (m *Monophonic) PlayNote(n midi.Note) {
	if !m.enabled {
		m.out.PlayNote(n)
		return
	}

	if !midi.InRange(n.Pitch) {
		return
	}

	m.bend.AppendTo(n.Mod.PitchBend)
	n.Mod.PitchBend = m.bend
	n.Voice = 0

	if n.IsOn() {
		m.noteOn(n)
	} else {
		m.noteOff(n)
	}
}

func (m *Monophonic) noteOn(n midi.Note) {
	m.lastVelocity = n.Velocity

	if prev := m.MostRecentPitch(); prev != -1 {
		m.glide(n.Time, prev, n.Pitch)
		m.out.PlayNote(midi.Note{Time: n.Time, Pitch: prev, Voice: midi.VoiceAll, Mod: n.Mod})
		m.out.PlayNote(n)
	} else {
		if !m.requireHeld && m.lastPlayed != -1 {
			m.glide(n.Time, m.lastPlayed, n.Pitch)
		} else {
			m.bend.SetImmediate(0)
		}
		m.out.PlayNote(n)
	}
	m.log.Debug("on", "pitch", n.Pitch, "vel", n.Velocity, "bend", m.bend.IndividualValue(n.Time))

	m.lastPlayed = n.Pitch
	m.seq++
	m.held[n.Pitch] = n.Time
	m.order[n.Pitch] = m.seq
}

func (m *Monophonic) noteOff(n midi.Note) {
	wasCurrent := n.Pitch == m.MostRecentPitch()
	m.held[n.Pitch] = -1

	next := m.MostRecentPitch()
	if next == -1 {
		m.out.PlayNote(n)
		return
	}
	if !wasCurrent {
		// already silenced when it was superseded
		return
	}

	m.glide(n.Time, n.Pitch, next)
	m.out.PlayNote(midi.Note{Time: n.Time, Pitch: n.Pitch, Voice: midi.VoiceAll, Mod: n.Mod})
	m.out.PlayNote(midi.Note{Time: n.Time, Pitch: next, Velocity: m.lastVelocity, Mod: n.Mod})
	m.log.Debug("fallback", "from", n.Pitch, "to", next, "vel", m.lastVelocity)
}

// glide starts the bend at the interval between the two pitches (relative to
// where the bend currently is) and ramps it back to zero
func (m *Monophonic) glide(time float64, from, to int) {
	start := float64(from-to) + m.bend.IndividualValue(time)
	m.bend.RampValue(time, start, 0, m.glideMs)
}

// MostRecentPitch returns the held pitch pressed last, or -1
func (m *Monophonic) MostRecentPitch() int {
	pitch := -1
	for i, t := range m.held {
		if t < 0 {
			continue
		}
		if pitch == -1 || t > m.held[pitch] || (t == m.held[pitch] && m.order[i] > m.order[pitch]) {
			pitch = i
		}
	}
	return pitch
}

// NumHeld counts the pitches currently held
func (m *Monophonic) NumHeld() int {
	n := 0
	for _, t := range m.held {
		if t >= 0 {
			n++
		}
	}
	return n
}

// SetEnabled switches conversion on or off. Either way every note the
// converter started is released and the held table is reset.
func (m *Monophonic) SetEnabled(enabled bool, time float64) {
	m.out.Flush(time)
	m.clearHeld()
	m.enabled = enabled
	m.log.Debug("enabled", "on", enabled)
}

func (m *Monophonic) Enabled() bool {
	return m.enabled
}

// SetGlide sets the glide time in milliseconds
func (m *Monophonic) SetGlide(ms float64) {
	if ms < 0 {
		ms = 0
	}
	if ms > MaxGlideMs {
		ms = MaxGlideMs
	}
	m.glideMs = ms
}

func (m *Monophonic) Glide() float64 {
	return m.glideMs
}

// SetRequireHeld stops glides from a note that has already been released
func (m *Monophonic) SetRequireHeld(require bool) {
	m.requireHeld = require
}

func (m *Monophonic) RequireHeld() bool {
	return m.requireHeld
}

// Bend is the converter's glide ramp
func (m *Monophonic) Bend() *midi.Ramp {
	return m.bend
}

// SetTarget reroutes the output, releasing notes on the old target
func (m *Monophonic) SetTarget(out midi.Receiver, time float64) {
	m.out.SetTarget(out, time)
}

func (m *Monophonic) clearHeld() {
	for i := range m.held {
		m.held[i] = -1
		m.order[i] = 0
	}
}

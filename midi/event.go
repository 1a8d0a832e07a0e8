package midi

// VoiceAll addresses every voice sounding a pitch. Used on note-offs.
const VoiceAll = -1

// Modulation travels with every note. PitchBend is in semitones and may be
// nil when nothing upstream bends the note.
type Modulation struct {
	PitchBend *Ramp
	ModWheel  *Ramp
	Pressure  *Ramp
	Pan       float64
}

// Note is a single note event on the transport clock (milliseconds).
// Velocity 0 is a note-off.
type Note struct {
	Time     float64
	Pitch    int
	Velocity int
	Voice    int
	Mod      Modulation
}

// IsOn reports whether n starts a note
func (n Note) IsOn() bool {
	return n.Velocity > 0
}

// Off returns the note-off matching n at time
func (n Note) Off(time float64) Note {
	n.Time = time
	n.Velocity = 0
	return n
}

// Receiver consumes note events
type Receiver interface {
	PlayNote(n Note)
}

// ReceiverFunc adapts a function to a Receiver
type ReceiverFunc func(n Note)

func (f ReceiverFunc) PlayNote(n Note) {
	f(n)
}

// InRange reports whether pitch is a valid MIDI note number
func InRange(pitch int) bool {
	return pitch >= 0 && pitch < 128
}

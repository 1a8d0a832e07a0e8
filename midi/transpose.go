package midi

// Transposer shifts pitches by a fixed number of semitones. Notes pushed
// outside the MIDI range are dropped.
type Transposer struct {
	Semitones int
	Out       Receiver
}

func (t *Transposer) PlayNote(n Note) {
	n.Pitch += t.Semitones
	if !InRange(n.Pitch) || t.Out == nil {
		return
	}
	t.Out.PlayNote(n)
}

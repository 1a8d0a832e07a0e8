package midi

// Output forwards notes to a Receiver and remembers which pitches are
// sounding, so a component can silence everything it started.
type Output struct {
	target   Receiver
	sounding [128]bool
	lastMod  [128]Modulation
}

// NewOutput wraps target. A nil target drops everything.
func NewOutput(target Receiver) *Output {
	return &Output{target: target}
}

// SetTarget swaps the downstream receiver, silencing notes on the old one
func (o *Output) SetTarget(target Receiver, time float64) {
	o.Flush(time)
	o.target = target
}

// PlayNote forwards n and updates the sounding table
func (o *Output) PlayNote(n Note) {
	if InRange(n.Pitch) {
		o.sounding[n.Pitch] = n.IsOn()
		if n.IsOn() {
			o.lastMod[n.Pitch] = n.Mod
		}
	}
	if o.target != nil {
		o.target.PlayNote(n)
	}
}

// Sounding reports whether pitch has an unmatched note-on
func (o *Output) Sounding(pitch int) bool {
	return InRange(pitch) && o.sounding[pitch]
}

// NumSounding counts pitches with an unmatched note-on
func (o *Output) NumSounding() int {
	n := 0
	for _, s := range o.sounding {
		if s {
			n++
		}
	}
	return n
}

// Flush sends a note-off for every sounding pitch
func (o *Output) Flush(time float64) {
	for pitch, s := range o.sounding {
		if !s {
			continue
		}
		o.PlayNote(Note{Time: time, Pitch: pitch, Voice: VoiceAll, Mod: o.lastMod[pitch]})
	}
}

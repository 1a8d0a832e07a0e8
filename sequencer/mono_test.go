package sequencer

import (
	"testing"

	"go-playseq/midi"
)

func on(time float64, pitch, vel int) midi.Note {
	return midi.Note{Time: time, Pitch: pitch, Velocity: vel, Voice: 3}
}

func off(time float64, pitch int) midi.Note {
	return midi.Note{Time: time, Pitch: pitch, Voice: 3}
}

func TestMonophonicGlide(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())
	m.SetGlide(100)

	m.PlayNote(on(0, 60, 100))
	m.PlayNote(on(10, 64, 90))

	want := []struct {
		pitch, vel, voice int
	}{
		{60, 100, 0},
		{60, 0, midi.VoiceAll},
		{64, 90, 0},
	}
	if len(rec.notes) != len(want) {
		t.Fatalf("got %d notes %+v, want %d", len(rec.notes), rec.notes, len(want))
	}
	for i, w := range want {
		n := rec.notes[i]
		if n.Pitch != w.pitch || n.Velocity != w.vel || n.Voice != w.voice {
			t.Errorf("note %d = %d/%d/%d, want %d/%d/%d", i, n.Pitch, n.Velocity, n.Voice, w.pitch, w.vel, w.voice)
		}
	}

	// bend starts at the old pitch and slides to the new one over the glide
	bend := m.Bend()
	tests := []struct {
		time float64
		want float64
	}{
		{10, -4},
		{60, -2},
		{110, 0},
		{500, 0},
	}
	for _, tt := range tests {
		if got := bend.IndividualValue(tt.time); !near(got, tt.want) {
			t.Errorf("bend at %v = %v, want %v", tt.time, got, tt.want)
		}
	}
}

func TestMonophonicGlideFromCurrentBend(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())
	m.SetGlide(100)

	m.PlayNote(on(0, 60, 100))
	m.PlayNote(on(10, 64, 100)) // -4 -> 0 over 10..110, -3 at 35
	m.PlayNote(on(35, 62, 100)) // 64-62 on top of -3

	tests := []struct {
		time float64
		want float64
	}{
		{35, -1},
		{85, -.5},
		{135, 0},
	}
	for _, tt := range tests {
		if got := m.Bend().IndividualValue(tt.time); !near(got, tt.want) {
			t.Errorf("bend at %v = %v, want %v", tt.time, got, tt.want)
		}
	}
}

func TestMonophonicZeroGlideIsImmediate(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())

	m.PlayNote(on(0, 60, 100))
	m.PlayNote(on(10, 67, 100))

	if got := m.Bend().IndividualValue(10); got != 0 {
		t.Errorf("bend = %v, want 0 with no glide", got)
	}
}

func TestMonophonicLegatoFallback(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())
	m.SetGlide(50)

	m.PlayNote(on(0, 60, 100))
	m.PlayNote(on(1, 64, 80))
	rec.reset()

	// one ms into the 60->64 glide the bend is still -4+4/50
	inFlight := m.Bend().IndividualValue(2)
	m.PlayNote(off(2, 64))

	if len(rec.notes) != 2 {
		t.Fatalf("got %+v, want note-off 64 then note-on 60", rec.notes)
	}
	if n := rec.notes[0]; n.Pitch != 64 || n.IsOn() {
		t.Errorf("first = %+v, want note-off 64", n)
	}
	if n := rec.notes[1]; n.Pitch != 60 || n.Velocity != 80 || n.Voice != 0 {
		t.Errorf("second = %+v, want note-on 60 at the last velocity", n)
	}
	if !near(inFlight, -4+4.0/50) {
		t.Errorf("bend before release = %v, want %v", inFlight, -4+4.0/50)
	}
	// the return glide starts from where the pitch actually was
	if got, want := m.Bend().IndividualValue(2), 4+inFlight; !near(got, want) {
		t.Errorf("fallback bend starts at %v, want %v", got, want)
	}
	if m.MostRecentPitch() != 60 {
		t.Errorf("MostRecentPitch = %d, want 60", m.MostRecentPitch())
	}

	// releasing the last key forwards its note-off
	rec.reset()
	m.PlayNote(off(3, 60))
	if len(rec.notes) != 1 || rec.notes[0].Pitch != 60 || rec.notes[0].IsOn() {
		t.Errorf("got %+v, want note-off 60", rec.notes)
	}
}

func TestMonophonicReleaseNonCurrentIsSilent(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())

	m.PlayNote(on(0, 60, 100))
	m.PlayNote(on(1, 64, 100))
	rec.reset()
	m.PlayNote(off(2, 60))

	if len(rec.notes) != 0 {
		t.Errorf("got %+v, want nothing", rec.notes)
	}
	if m.MostRecentPitch() != 64 {
		t.Errorf("MostRecentPitch = %d, want 64", m.MostRecentPitch())
	}
}

func TestMonophonicRequireHeld(t *testing.T) {
	tests := []struct {
		name        string
		requireHeld bool
		wantBend    float64
	}{
		{"glides from last note", false, -7},
		{"snaps without held note", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recorder
			m := NewMonophonic(&rec, testLogger())
			m.SetGlide(100)
			m.SetRequireHeld(tt.requireHeld)

			m.PlayNote(on(0, 60, 100))
			m.PlayNote(off(5, 60))
			m.PlayNote(on(10, 67, 100))

			if got := m.Bend().IndividualValue(10); !near(got, tt.wantBend) {
				t.Errorf("bend = %v, want %v", got, tt.wantBend)
			}
		})
	}
}

func TestMonophonicSameTimestampPrefersLater(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())

	m.PlayNote(on(0, 64, 100))
	m.PlayNote(on(0, 60, 100))

	if m.MostRecentPitch() != 60 {
		t.Errorf("MostRecentPitch = %d, want 60", m.MostRecentPitch())
	}
	if len(rec.sounding()) != 1 || !rec.sounding()[60] {
		t.Errorf("sounding = %v, want only 60", rec.sounding())
	}
}

func TestMonophonicInvariant(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())
	m.SetGlide(20)

	// a fixed pseudo-random walk over a handful of keys
	keys := []int{60, 62, 64, 65, 67}
	held := map[int]bool{}
	seed := uint32(7)
	for i := 0; i < 500; i++ {
		seed = seed*1664525 + 1013904223
		pitch := keys[int(seed>>16)%len(keys)]
		time := float64(i)
		if held[pitch] {
			m.PlayNote(off(time, pitch))
			delete(held, pitch)
		} else {
			m.PlayNote(on(time, pitch, 1+int(seed>>8)%127))
			held[pitch] = true
		}

		sounding := rec.sounding()
		if len(sounding) > 1 {
			t.Fatalf("step %d: %d pitches sounding: %v", i, len(sounding), sounding)
		}
		if len(held) > 0 && len(sounding) != 1 {
			t.Fatalf("step %d: keys held %v but nothing sounding", i, held)
		}
		if len(held) == 0 && len(sounding) != 0 {
			t.Fatalf("step %d: no keys held but %v sounding", i, sounding)
		}
	}
}

func TestMonophonicDisabledPassesThrough(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())
	m.SetEnabled(false, 0)

	m.PlayNote(on(0, 60, 100))
	m.PlayNote(on(1, 64, 100))
	m.PlayNote(midi.Note{Pitch: 200, Velocity: 1})

	if len(rec.notes) != 3 {
		t.Fatalf("got %d notes, want 3", len(rec.notes))
	}
	if rec.notes[1].Voice != 3 || rec.notes[1].Mod.PitchBend != nil {
		t.Errorf("note changed on the way through: %+v", rec.notes[1])
	}
}

func TestMonophonicIgnoresOutOfRange(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())

	m.PlayNote(on(0, -1, 100))
	m.PlayNote(on(0, 128, 100))
	m.PlayNote(off(0, 128))

	if len(rec.notes) != 0 || m.NumHeld() != 0 {
		t.Errorf("got %+v, held %d; want nothing", rec.notes, m.NumHeld())
	}
}

func TestMonophonicToggleFlushes(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())

	m.PlayNote(on(0, 60, 100))
	m.PlayNote(on(1, 64, 100))
	m.SetEnabled(false, 5)

	if len(rec.sounding()) != 0 {
		t.Errorf("still sounding after disable: %v", rec.sounding())
	}
	if m.NumHeld() != 0 {
		t.Errorf("NumHeld = %d after disable", m.NumHeld())
	}
	last := rec.notes[len(rec.notes)-1]
	if last.Time != 5 || last.IsOn() {
		t.Errorf("flush note = %+v, want note-off at 5", last)
	}

	m.SetEnabled(true, 6)
	if m.MostRecentPitch() != -1 {
		t.Errorf("MostRecentPitch = %d after re-enable", m.MostRecentPitch())
	}
}

func TestMonophonicAppendsUpstreamBend(t *testing.T) {
	var rec recorder
	m := NewMonophonic(&rec, testLogger())

	upstream := midi.NewRamp(1.5)
	n := on(0, 60, 100)
	n.Mod.PitchBend = upstream
	m.PlayNote(n)

	got := rec.notes[0].Mod.PitchBend
	if got != m.Bend() {
		t.Fatal("outgoing note doesn't carry the converter's ramp")
	}
	if v := got.Value(0); !near(v, 1.5) {
		t.Errorf("composed bend = %v, want 1.5", v)
	}
}

func TestMonophonicGlideClamp(t *testing.T) {
	m := NewMonophonic(nil, testLogger())
	m.SetGlide(-5)
	if m.Glide() != 0 {
		t.Errorf("Glide = %v, want 0", m.Glide())
	}
	m.SetGlide(5000)
	if m.Glide() != MaxGlideMs {
		t.Errorf("Glide = %v, want %v", m.Glide(), MaxGlideMs)
	}
}

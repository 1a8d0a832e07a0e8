package sequencer

import (
	"errors"
	"fmt"
	"io"

	"go-playseq/config"
	"go-playseq/transport"
)

// State is a snapshot of everything the UI shows. The manager publishes a
// fresh one at the LED rate; readers must not modify it.
type State struct {
	Tempo       float64
	Top, Bottom int

	Interval transport.Interval
	Measures int
	Steps    int
	Step     int

	SeqEnabled  bool
	MonoEnabled bool

	Write         bool
	NoteRepeat    bool
	LinkColumns   bool
	Sustain       bool
	ClearArmed    bool
	VelocityLevel int

	Glide       float64
	RequireHeld bool
	MostRecent  int // pitch the converter is sounding, -1 for none
	LaneNote    int

	Lanes  [NumLanes]LaneState
	Cells  [NumLanes][]float64
	Lights [8][8]GridColor // [y][x], y=0 at the top

	Controller string
}

// State returns the latest snapshot. Safe from any goroutine.
func (m *Manager) State() *State {
	return m.state.Load()
}

func (m *Manager) publish() {
	s := &State{
		Tempo:         m.tr.Tempo(),
		Top:           m.tr.GetTimeSigTop(),
		Bottom:        m.tr.GetTimeSigBottom(),
		Interval:      m.seq.Interval(),
		Measures:      m.seq.NumMeasures(),
		Steps:         m.seq.Steps(),
		Step:          m.seq.GetStep(m.tr.Now()),
		SeqEnabled:    m.seqOn,
		MonoEnabled:   m.mono.Enabled(),
		Write:         m.seq.Write(),
		NoteRepeat:    m.seq.NoteRepeat(),
		LinkColumns:   m.seq.LinkColumns(),
		Sustain:       m.seq.Sustain(),
		ClearArmed:    m.seq.ClearArmed(),
		VelocityLevel: m.seq.VelocityLevel(),
		Glide:         m.mono.Glide(),
		RequireHeld:   m.mono.RequireHeld(),
		MostRecent:    m.mono.MostRecentPitch(),
		LaneNote:      m.fromLanes.Semitones,
		Lights:        m.lights,
	}
	for i := range s.Lanes {
		s.Lanes[i] = m.seq.Lane(i)
		row := make([]float64, m.seq.Steps())
		for col := range row {
			row[col] = m.seq.Cell(col, i)
		}
		s.Cells[i] = row
	}
	if m.controller != nil {
		s.Controller = m.controller.ID()
	}
	m.state.Store(s)
}

// The methods below change the running setup. Call them on the manager
// goroutine (through Do), or before Run.

func (m *Manager) ToggleWrite() { m.seq.SetWrite(!m.seq.Write()) }
func (m *Manager) ToggleNoteRepeat() { m.seq.SetNoteRepeat(!m.seq.NoteRepeat()) }
func (m *Manager) ToggleLinkColumns() { m.seq.SetLinkColumns(!m.seq.LinkColumns()) }
func (m *Manager) ToggleSustain() { m.seq.SetSustain(!m.seq.Sustain()) }
func (m *Manager) ToggleRequireHeld() { m.mono.SetRequireHeld(!m.mono.RequireHeld()) }

// ToggleSequencer switches keyboard input between the sequencer lanes and
// direct play
func (m *Manager) ToggleSequencer() {
	m.seqOn = !m.seqOn
	m.seq.SetEnabled(m.seqOn, m.tr.Now())
	m.log.Info("sequencer", "enabled", m.seqOn)
}

func (m *Manager) ToggleMono() {
	m.mono.SetEnabled(!m.mono.Enabled(), m.tr.Now())
	m.log.Info("mono", "enabled", m.mono.Enabled())
}

// NudgeGlide changes the glide time by delta milliseconds
func (m *Manager) NudgeGlide(delta float64) {
	m.mono.SetGlide(m.mono.Glide() + delta)
}

// SetInterval changes the step length, keeping the sequencer registered on
// the running clock
func (m *Manager) SetInterval(iv transport.Interval) error {
	return m.seq.SetInterval(iv)
}

// CycleInterval steps to the next selectable interval
func (m *Manager) CycleInterval() error {
	return m.seq.SetInterval(m.seq.Interval().Next())
}

// CycleMeasures steps through the measure counts, wrapping to 1
func (m *Manager) CycleMeasures() error {
	next := MeasureCounts[0]
	for i, n := range MeasureCounts {
		if n == m.seq.NumMeasures() && i+1 < len(MeasureCounts) {
			next = MeasureCounts[i+1]
		}
	}
	return m.seq.SetNumMeasures(next)
}

// SetTempo changes the tempo in bpm
func (m *Manager) SetTempo(bpm float64) {
	m.tr.SetTempo(bpm)
}

// SetTimeSignature changes the meter and realigns the sequencer. A meter the
// sequencer can't step through is rolled back.
func (m *Manager) SetTimeSignature(top, bottom int) error {
	oldTop, oldBottom := m.tr.GetTimeSigTop(), m.tr.GetTimeSigBottom()
	if err := m.tr.SetTimeSignature(top, bottom); err != nil {
		return err
	}
	if err := m.seq.Refresh(); err != nil {
		if rbErr := m.tr.SetTimeSignature(oldTop, oldBottom); rbErr != nil {
			m.log.Error("meter rollback", "top", oldTop, "bottom", oldBottom, "err", rbErr)
			return errors.Join(err, fmt.Errorf("roll back to %d/%d: %w", oldTop, oldBottom, rbErr))
		}
		return err
	}
	return nil
}

// ToggleCell flips a grid cell between empty and full velocity
func (m *Manager) ToggleCell(step, laneIdx int) {
	if m.seq.Cell(step, laneIdx) > 0 {
		m.seq.SetCell(step, laneIdx, 0)
	} else {
		m.seq.SetCell(step, laneIdx, 1)
	}
}

// ToggleMute flips a lane's mute/erase flag
func (m *Manager) ToggleMute(laneIdx int) {
	m.seq.SetMuteOrErase(laneIdx, !m.seq.Lane(laneIdx).MuteOrErase)
}

// SetVelocityLevel latches a velocity tier: 1 light, 2 medium, 3 full
func (m *Manager) SetVelocityLevel(level int) {
	m.seq.SetVelocityTier(level == 1, level == 2)
}

// PressGrid simulates a controller pad at x, y (y=0 at the top)
func (m *Manager) PressGrid(x, y int, velocity float64) {
	m.seq.HandleGridButton(x, y, velocity)
}

func (m *Manager) ClearGrid() {
	m.seq.ClearGrid()
}

// ExportPattern writes the grid as a MIDI file
func (m *Manager) ExportPattern(w io.Writer) error {
	p := m.seq.Pattern()
	p.Tempo = m.tr.Tempo()
	channel := uint8(m.cfg.Ports.Channel - 1)
	return WritePattern(w, p, m.fromLanes.Semitones, channel)
}

// ImportPattern replaces the grid with the notes of a MIDI file. The file's
// tempo and meter are adopted.
func (m *Manager) ImportPattern(r io.Reader) error {
	p, err := ReadPattern(r, m.fromLanes.Semitones, m.seq.Interval())
	if err != nil {
		return err
	}
	if err := m.SetTimeSignature(p.Top, p.Bottom); err != nil {
		return fmt.Errorf("pattern meter: %w", err)
	}
	m.tr.SetTempo(p.Tempo)
	if err := m.seq.LoadPattern(p); err != nil {
		return fmt.Errorf("load pattern: %w", err)
	}
	m.log.Info("pattern loaded", "steps", p.Steps(), "measures", p.Measures)
	return nil
}

// Config returns the configuration with the live settings folded in
func (m *Manager) Config() *config.Config {
	cfg := *m.cfg
	cfg.Controllers = append([]config.ControllerConfig(nil), m.cfg.Controllers...)
	cfg.Tempo = m.tr.Tempo()
	cfg.TimeSignature = config.TimeSignature{Top: m.tr.GetTimeSigTop(), Bottom: m.tr.GetTimeSigBottom()}

	seq := m.seq.Settings()
	seq.Enabled = m.seqOn
	seq.LaneNote = m.fromLanes.Semitones
	cfg.Sequencer = seq
	cfg.Mono = m.mono.Settings()
	return &cfg
}

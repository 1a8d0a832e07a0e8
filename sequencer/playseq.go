package sequencer

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"

	"go-playseq/midi"
	"go-playseq/transport"
)

// NumLanes is the number of sequencer lanes: the 4x4 lane area of an 8x8
// controller, two pads per lane
const NumLanes = 16

// MeasureCounts lists the allowed pattern lengths
var MeasureCounts = []int{1, 2, 4, 8, 16}

var (
	// ErrNoSteps means the interval doesn't fit in the current meter even once
	ErrNoSteps = errors.New("no steps per measure")
	// ErrMeasures is returned for a pattern length outside MeasureCounts
	ErrMeasures = errors.New("unsupported measure count")
)

// Default velocity tier multipliers
const (
	DefaultVelocityFull  = 1.0
	DefaultVelocityMed   = .5
	DefaultVelocityLight = .25
)

// Transport is the part of the clock the sequencer needs
type Transport interface {
	AddListener(l transport.Listener, interval transport.Interval, offset transport.Offset, autoRemove bool)
	RemoveListener(l transport.Listener)
	UpdateListener(l transport.Listener, interval transport.Interval, offset transport.Offset)
	GetQuantized(time float64, interval transport.Interval) int
	CountInStandardMeasure(interval transport.Interval) int
	GetMeasure(time float64) int
	GetMeasureFraction(interval transport.Interval) float64
	GetTimeSigTop() int
	GetTimeSigBottom() int
}

type lane struct {
	inputVelocity int // latched live input, consumed on the next step
	playing       bool
	muteOrErase   bool
}

// LaneState is a read-only view of one lane
type LaneState struct {
	InputVelocity int
	Playing       bool
	MuteOrErase   bool
}

// PlaySequencer records and replays a quantized velocity grid. It steps on
// every interval boundary and releases notes half a step later through its
// note-off scheduler.
type PlaySequencer struct {
	tr  Transport
	out midi.Receiver

	interval    transport.Interval
	numMeasures int
	enabled     bool

	write       bool
	noteRepeat  bool
	linkColumns bool
	sustain     bool
	clearArmed  bool

	useLight bool
	useMed   bool

	velFull  float64
	velMed   float64
	velLight float64

	grid  *Grid
	lanes [NumLanes]lane

	offs   *noteOffScheduler
	lights GridLights
	now    float64 // time of the last step or note-off tick

	log *log.Logger
}

// NewPlaySequencer creates a 16n one-measure sequencer and registers it with
// tr. The caller must Close it to deregister.
func NewPlaySequencer(tr Transport, out midi.Receiver, logger *log.Logger) (*PlaySequencer, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &PlaySequencer{
		tr:          tr,
		out:         out,
		interval:    transport.Interval16n,
		numMeasures: 1,
		enabled:     true,
		velFull:     DefaultVelocityFull,
		velMed:      DefaultVelocityMed,
		velLight:    DefaultVelocityLight,
		log:         logger.WithPrefix("playseq"),
	}
	steps, err := s.checkSteps(s.interval)
	if err != nil {
		return nil, err
	}
	s.grid = NewGrid(steps, NumLanes)
	s.offs = &noteOffScheduler{owner: s}

	tr.AddListener(s, s.interval, transport.Offset{Phase: 0, InMs: true}, false)
	tr.AddListener(s.offs, s.interval, s.offsOffset(), false)
	return s, nil
}

// Close releases sounding lanes and deregisters from the transport
func (s *PlaySequencer) Close() {
	s.releaseAll(s.now)
	s.tr.RemoveListener(s)
	s.tr.RemoveListener(s.offs)
}

// OnTimeEvent plays one step
func (s *PlaySequencer) OnTimeEvent(time float64) {
	if !s.enabled {
		return
	}
	s.now = time

	step := s.GetStep(time)
	for i := range s.lanes {
		l := &s.lanes[i]

		playVelocity := int(math.Round(s.grid.Get(step, i) * 127))

		if l.muteOrErase {
			playVelocity = 0
			if s.write {
				s.grid.Set(step, i, 0)
			}
		}

		if l.inputVelocity > 0 {
			playVelocity = int(float64(l.inputVelocity) * s.velocityMult())
			if s.write {
				s.grid.Set(step, i, float64(playVelocity)/127)
			}
			if !s.noteRepeat {
				l.inputVelocity = 0
			}
		}

		if playVelocity > 0 && !l.playing {
			s.playNoteOutput(time, i, playVelocity)
			l.playing = true
		}

		if s.sustain && l.playing && playVelocity == 0 {
			s.playNoteOutput(time, i, 0)
			l.playing = false
		}
	}

	s.log.Debug("step", "time", time, "step", step)
	s.updateLights(false)
}

// GetStep maps time onto a grid column
func (s *PlaySequencer) GetStep(time float64) int {
	measure := s.tr.GetMeasure(time) % s.numMeasures
	if measure < 0 {
		measure += s.numMeasures
	}
	return s.tr.GetQuantized(time, s.interval) + s.stepsPerMeasure()*measure
}

// PlayNote latches live input. The pitch selects the lane.
func (s *PlaySequencer) PlayNote(n midi.Note) {
	if !s.enabled {
		return
	}
	if n.Pitch < 0 || n.Pitch >= NumLanes {
		return
	}
	if n.IsOn() {
		s.lanes[n.Pitch].inputVelocity = min(n.Velocity, 127)
	} else if s.noteRepeat {
		s.lanes[n.Pitch].inputVelocity = 0
	}
}

// SetInterval changes the step length. The grid is resized to the new
// column count without migrating content.
func (s *PlaySequencer) SetInterval(interval transport.Interval) error {
	if _, err := s.checkSteps(interval); err != nil {
		return err
	}
	s.interval = interval
	s.tr.UpdateListener(s, s.interval, transport.Offset{InMs: true})
	s.tr.UpdateListener(s.offs, s.interval, s.offsOffset())
	s.grid.Resize(s.stepsPerMeasure() * s.numMeasures)
	s.log.Info("interval", "interval", interval, "steps", s.grid.Cols())
	return nil
}

// Refresh realigns the sequencer after a meter change
func (s *PlaySequencer) Refresh() error {
	if _, err := s.checkSteps(s.interval); err != nil {
		return err
	}
	s.tr.UpdateListener(s.offs, s.interval, s.offsOffset())
	s.grid.Resize(s.stepsPerMeasure() * s.numMeasures)
	return nil
}

// SetNumMeasures changes the pattern length. Growing repeats the existing
// pattern across the new measures; shrinking truncates.
func (s *PlaySequencer) SetNumMeasures(n int) error {
	if !validMeasures(n) {
		return fmt.Errorf("%w: %d", ErrMeasures, n)
	}
	if n == s.numMeasures {
		return nil
	}
	oldSteps := s.grid.Cols()
	s.numMeasures = n
	s.grid.Resize(s.stepsPerMeasure() * n)
	if s.grid.Cols() > oldSteps {
		s.grid.Tile(oldSteps)
	}
	s.log.Info("measures", "measures", n, "steps", s.grid.Cols())
	return nil
}

// SetMuteOrErase mutes a lane, and its column group when columns are linked.
// With write on, a muted lane erases every step it passes.
func (s *PlaySequencer) SetMuteOrErase(laneIdx int, on bool) {
	for _, i := range s.linkedLanes(laneIdx) {
		s.lanes[i].muteOrErase = on
	}
}

// ClearLane empties a lane, and its column group when columns are linked
func (s *PlaySequencer) ClearLane(laneIdx int) {
	for _, i := range s.linkedLanes(laneIdx) {
		s.grid.ClearRow(i)
	}
}

func (s *PlaySequencer) ClearGrid() {
	s.grid.Clear()
}

// linkedLanes returns laneIdx plus, with linked columns, every lane in the
// same column of the 4x4 pad area
func (s *PlaySequencer) linkedLanes(laneIdx int) []int {
	if laneIdx < 0 || laneIdx >= NumLanes {
		return nil
	}
	if !s.linkColumns {
		return []int{laneIdx}
	}
	var lanes []int
	for i := laneIdx % 4; i < NumLanes; i += 4 {
		lanes = append(lanes, i)
	}
	return lanes
}

// SetVelocityModifiers sets the full, medium and light tier multipliers,
// each clamped to [0,1]
func (s *PlaySequencer) SetVelocityModifiers(full, med, light float64) {
	s.velFull = clamp01(full)
	s.velMed = clamp01(med)
	s.velLight = clamp01(light)
}

func (s *PlaySequencer) VelocityModifiers() (full, med, light float64) {
	return s.velFull, s.velMed, s.velLight
}

// SetVelocityTier sets the momentary light/medium tier selectors
func (s *PlaySequencer) SetVelocityTier(light, med bool) {
	s.useLight = light
	s.useMed = med
}

// VelocityLevel is 1 for light, 2 for medium and 3 for full. Pressing both
// selectors, or neither, is full.
func (s *PlaySequencer) VelocityLevel() int {
	if s.useLight && !s.useMed {
		return 1
	}
	if s.useMed && !s.useLight {
		return 2
	}
	return 3
}

func (s *PlaySequencer) velocityMult() float64 {
	switch s.VelocityLevel() {
	case 1:
		return s.velLight
	case 2:
		return s.velMed
	}
	return s.velFull
}

// SetEnabled starts or stops the sequencer. Stopping releases every
// sounding lane and drops pending input.
func (s *PlaySequencer) SetEnabled(enabled bool, time float64) {
	if !enabled {
		s.releaseAll(time)
		for i := range s.lanes {
			s.lanes[i].inputVelocity = 0
		}
	}
	s.enabled = enabled
}

func (s *PlaySequencer) Enabled() bool { return s.enabled }

// SetSustain switches between gating notes half a step after they start and
// holding them until a step with no velocity
func (s *PlaySequencer) SetSustain(on bool) { s.sustain = on }
func (s *PlaySequencer) Sustain() bool { return s.sustain }

func (s *PlaySequencer) SetWrite(on bool) { s.write = on }
func (s *PlaySequencer) Write() bool { return s.write }

func (s *PlaySequencer) SetNoteRepeat(on bool) { s.noteRepeat = on }
func (s *PlaySequencer) NoteRepeat() bool { return s.noteRepeat }

func (s *PlaySequencer) SetLinkColumns(on bool) { s.linkColumns = on }
func (s *PlaySequencer) LinkColumns() bool { return s.linkColumns }

// SetClearArmed arms lane clearing from the mute pads
func (s *PlaySequencer) SetClearArmed(on bool) { s.clearArmed = on }
func (s *PlaySequencer) ClearArmed() bool { return s.clearArmed }

func (s *PlaySequencer) Interval() transport.Interval { return s.interval }
func (s *PlaySequencer) NumMeasures() int { return s.numMeasures }

// Steps is the number of grid columns
func (s *PlaySequencer) Steps() int { return s.grid.Cols() }

// Cell returns a grid value in [0,1]
func (s *PlaySequencer) Cell(step, laneIdx int) float64 {
	return s.grid.Get(step, laneIdx)
}

// SetCell edits the grid directly
func (s *PlaySequencer) SetCell(step, laneIdx int, v float64) {
	s.grid.Set(step, laneIdx, v)
}

// Lane returns the state of one lane
func (s *PlaySequencer) Lane(i int) LaneState {
	if i < 0 || i >= NumLanes {
		return LaneState{}
	}
	l := s.lanes[i]
	return LaneState{InputVelocity: l.inputVelocity, Playing: l.playing, MuteOrErase: l.muteOrErase}
}

func (s *PlaySequencer) releaseAll(time float64) {
	for i := range s.lanes {
		if s.lanes[i].playing {
			s.playNoteOutput(time, i, 0)
			s.lanes[i].playing = false
		}
	}
}

func (s *PlaySequencer) playNoteOutput(time float64, pitch, velocity int) {
	if s.out == nil {
		return
	}
	s.out.PlayNote(midi.Note{Time: time, Pitch: pitch, Velocity: velocity, Voice: midi.VoiceAll})
}

func (s *PlaySequencer) stepsPerMeasure() int {
	return s.tr.CountInStandardMeasure(s.interval) * s.tr.GetTimeSigTop() / s.tr.GetTimeSigBottom()
}

// checkSteps validates that interval fits the meter at least once
func (s *PlaySequencer) checkSteps(interval transport.Interval) (int, error) {
	bottom := s.tr.GetTimeSigBottom()
	steps := 0
	if bottom > 0 {
		steps = s.tr.CountInStandardMeasure(interval) * s.tr.GetTimeSigTop() / bottom
	}
	if steps <= 0 {
		err := fmt.Errorf("%w: %s in %d/%d", ErrNoSteps, interval, s.tr.GetTimeSigTop(), bottom)
		s.log.Error("bad configuration", "err", err)
		return 0, err
	}
	return steps, nil
}

// the note-off tick sits half a step behind the step tick
func (s *PlaySequencer) offsOffset() transport.Offset {
	return transport.Offset{Phase: s.tr.GetMeasureFraction(s.interval) * .5}
}

func validMeasures(n int) bool {
	for _, m := range MeasureCounts {
		if m == n {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

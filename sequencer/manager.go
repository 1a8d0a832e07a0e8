package sequencer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"go-playseq/config"
	"go-playseq/debug"
	"go-playseq/midi"
	"go-playseq/theme"
	"go-playseq/transport"
)

// Sink is where the manager's notes end up. Update is called on every clock
// tick so continuous modulation can be sampled.
type Sink interface {
	midi.Receiver
	Update(time float64)
}

// LED refresh rate
const ledFPS = 30

// clock resolution
const tickInterval = time.Millisecond

// Manager owns the transport, the sequencer and the monophonic converter and
// runs all of them on one goroutine. Other goroutines talk to it through
// HandleNote, HandlePad and Do.
type Manager struct {
	tr   *transport.Transport
	seq  *PlaySequencer
	mono *Monophonic
	sink Sink

	// keyboard -> sequencer lanes, and lanes -> synth notes
	toLanes   *midi.Transposer
	fromLanes *midi.Transposer
	seqOn     bool

	cfg   *config.Config
	theme *theme.Theme

	start time.Time
	now   func() time.Time

	notes chan midi.NoteEvent
	pads  chan midi.PadEvent
	calls chan func()
	done  chan struct{} // closed when Run returns

	controller midi.Controller

	// LED rendering at fixed FPS
	lights   [8][8]GridColor // [y][x]
	ledDirty bool
	prevLEDs map[[2]int]midi.LEDUpdate

	state atomic.Pointer[State]
	every debug.Every

	// Notify TUI of updates
	UpdateChan chan struct{}

	log *log.Logger
}

// NewManager builds the note graph from cfg. Notes leave through sink.
func NewManager(cfg *config.Config, sink Sink, th *theme.Theme, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	if th == nil {
		th = theme.New(theme.Plasma())
	}

	m := &Manager{
		sink:       sink,
		cfg:        cfg,
		theme:      th,
		now:        time.Now,
		notes:      make(chan midi.NoteEvent, 256),
		pads:       make(chan midi.PadEvent, 64),
		calls:      make(chan func(), 64),
		done:       make(chan struct{}),
		prevLEDs:   make(map[[2]int]midi.LEDUpdate),
		UpdateChan: make(chan struct{}, 1),
		log:        logger.WithPrefix("manager"),
	}

	m.tr = transport.New(logger)
	m.tr.SetTempo(cfg.Tempo)
	if err := m.tr.SetTimeSignature(cfg.TimeSignature.Top, cfg.TimeSignature.Bottom); err != nil {
		return nil, err
	}

	m.mono = NewMonophonic(sink, logger)
	m.mono.ApplySettings(cfg.Mono)
	if !cfg.Mono.Enabled {
		m.mono.SetEnabled(false, 0)
	}

	m.fromLanes = &midi.Transposer{Semitones: cfg.Sequencer.LaneNote, Out: m.mono}
	seq, err := NewPlaySequencer(m.tr, m.fromLanes, logger)
	if err != nil {
		return nil, err
	}
	m.seq = seq
	if err := seq.ApplySettings(cfg.Sequencer); err != nil {
		seq.Close()
		return nil, err
	}
	m.toLanes = &midi.Transposer{Semitones: -cfg.Sequencer.LaneNote, Out: seq}
	m.seqOn = cfg.Sequencer.Enabled
	seq.SetEnabled(m.seqOn, 0)
	seq.SetLights(m)

	m.publish()
	return m, nil
}

// Run drives the clock until ctx is done. It must only be called once.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	m.start = m.now()
	m.tr.Start(0)
	m.log.Info("running", "tempo", m.tr.Tempo(), "meter", fmt.Sprintf("%d/%d", m.tr.GetTimeSigTop(), m.tr.GetTimeSigBottom()))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	ledTicker := time.NewTicker(time.Second / ledFPS)
	defer ledTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-ticker.C:
			m.Advance(m.elapsed())
		case ev := <-m.notes:
			m.Advance(m.elapsed())
			m.playInput(ev, m.tr.Now())
		case ev := <-m.pads:
			m.handlePad(ev)
		case fn := <-m.calls:
			fn()
		case <-ledTicker.C:
			m.flushLEDs()
			m.publish()
			m.notifyUpdate()
		}
	}
}

// Advance moves the clock to time (ms since Run) and samples the sink
func (m *Manager) Advance(time float64) {
	m.tr.Advance(time)
	m.sink.Update(time)
	m.every.Debug(m.log, 10000, "clock", "time", time)
}

func (m *Manager) elapsed() float64 {
	return float64(m.now().Sub(m.start)) / float64(time.Millisecond)
}

func (m *Manager) shutdown() {
	t := m.tr.Now()
	m.seq.Close()
	m.mono.SetEnabled(m.mono.Enabled(), t)
	m.sink.Update(t)
	if m.controller != nil {
		m.prevLEDs = make(map[[2]int]midi.LEDUpdate)
		m.lights = [8][8]GridColor{}
		m.flushLEDs()
	}
	m.log.Info("stopped", "time", t)
}

// HandleNote queues keyboard input. Safe from any goroutine.
func (m *Manager) HandleNote(ev midi.NoteEvent) {
	select {
	case m.notes <- ev:
	default:
		m.log.Warn("note dropped", "note", ev.Note)
	}
}

// HandlePad queues a controller pad event. Safe from any goroutine.
func (m *Manager) HandlePad(ev midi.PadEvent) {
	select {
	case m.pads <- ev:
	default:
		m.log.Warn("pad dropped", "row", ev.Row, "col", ev.Col)
	}
}

// Do runs fn on the manager goroutine. Safe from any goroutine; fn must not
// block. Once Run has returned fn is dropped and Do reports false.
func (m *Manager) Do(fn func()) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.calls <- fn:
		return true
	case <-m.done:
		return false
	}
}

// playInput routes a keyboard note: into the sequencer lanes while the
// sequencer runs, straight to the converter otherwise
func (m *Manager) playInput(ev midi.NoteEvent, time float64) {
	n := midi.Note{Time: time, Pitch: int(ev.Note), Velocity: int(ev.Velocity)}
	if m.seqOn {
		m.toLanes.PlayNote(n)
	} else {
		m.mono.PlayNote(n)
	}
}

// handlePad maps Launchpad rows (0 at the bottom) onto the sequencer's
// top-down grid. The top row and scene buttons aren't used.
func (m *Manager) handlePad(ev midi.PadEvent) {
	if ev.Row > 7 || ev.Col > 7 {
		return
	}
	m.seq.HandleGridButton(ev.Col, 7-ev.Row, float64(ev.Velocity)/127)
}

// SetLight implements GridLights for the sequencer
func (m *Manager) SetLight(x, y int, c GridColor) {
	if x < 0 || x > 7 || y < 0 || y > 7 {
		return
	}
	if m.lights[y][x] != c {
		m.lights[y][x] = c
		m.ledDirty = true
	}
}

// SetController attaches a controller for pad input and LED feedback. Its
// events are forwarded until its channels close.
func (m *Manager) SetController(c midi.Controller) {
	m.Do(func() {
		m.controller = c
		m.prevLEDs = make(map[[2]int]midi.LEDUpdate) // reset state - diff will handle clearing
		m.ledDirty = true
	})
	if c == nil {
		return
	}
	go func() {
		for ev := range c.PadEvents() {
			m.HandlePad(ev)
		}
	}()
}

// SetMIDIInput forwards a keyboard's notes until its channel closes
func (m *Manager) SetMIDIInput(c midi.Controller) {
	if c == nil {
		return
	}
	go func() {
		for ev := range c.NoteEvents() {
			m.HandleNote(ev)
		}
	}()
}

// ControllerGone detaches c if it is the current controller
func (m *Manager) ControllerGone(id string) {
	m.Do(func() {
		if m.controller != nil && m.controller.ID() == id {
			m.controller = nil
		}
	})
}

// HandleDeviceEvent wires a hot-plugged device in or out. Launchpads drive
// the grid, keyboards play notes. Safe from any goroutine.
func (m *Manager) HandleDeviceEvent(ev midi.DeviceEvent) {
	switch ev.Type {
	case midi.DeviceConnected:
		kind := config.ControllerKeyboard
		switch ev.Controller.Type() {
		case midi.ControllerLaunchpad:
			m.SetController(ev.Controller)
			kind = config.ControllerLaunchpadX
		case midi.ControllerKeyboard:
			m.SetMIDIInput(ev.Controller)
		}
		// remembered so the next session's config lists it
		m.Do(func() {
			m.cfg.AddController(config.ControllerConfig{PortName: ev.ID, Type: kind, AutoConnect: true})
		})
	case midi.DeviceDisconnected:
		m.ControllerGone(ev.ID)
	}
}

// flushLEDs sends only changed LEDs to the controller (diffing + batching)
func (m *Manager) flushLEDs() {
	if m.controller == nil || !m.ledDirty {
		return
	}
	m.ledDirty = false

	var updates []midi.LEDUpdate
	for y := range m.lights {
		for x, c := range m.lights[y] {
			u := midi.LEDUpdate{
				Row:   7 - y,
				Col:   x,
				Color: m.theme.Light(c.Family(), c.Bright()),
			}
			key := [2]int{u.Row, u.Col}
			if prev, ok := m.prevLEDs[key]; ok && prev == u {
				continue
			}
			m.prevLEDs[key] = u
			updates = append(updates, u)
		}
	}

	if len(updates) > 0 {
		m.log.Debug("flushLEDs", "batch", len(updates))
		if err := m.controller.SetLEDBatch(updates); err != nil {
			m.log.Warn("led update failed", "err", err)
		}
	}
}

func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

package sequencer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go-playseq/config"
	"go-playseq/midi"
	"go-playseq/transport"
)

type fakeController struct {
	pads    chan midi.PadEvent
	notes   chan midi.NoteEvent
	batches [][]midi.LEDUpdate
}

func newFakeController() *fakeController {
	return &fakeController{
		pads:  make(chan midi.PadEvent, 8),
		notes: make(chan midi.NoteEvent, 8),
	}
}

func (c *fakeController) ID() string { return "fake" }
func (c *fakeController) Type() midi.ControllerType { return midi.ControllerLaunchpad }
func (c *fakeController) PadEvents() <-chan midi.PadEvent { return c.pads }
func (c *fakeController) NoteEvents() <-chan midi.NoteEvent { return c.notes }
func (c *fakeController) Close() error { return nil }
func (c *fakeController) SetLEDBatch(u []midi.LEDUpdate) error {
	c.batches = append(c.batches, u)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *sinkRecorder) {
	t.Helper()
	sink := &sinkRecorder{}
	m, err := NewManager(config.DefaultConfig(), sink, nil, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return m, sink
}

func TestManagerRoutesKeyboardThroughLanes(t *testing.T) {
	m, sink := newTestManager(t)

	// lane note 36, so 38 is lane 2
	m.playInput(midi.NoteEvent{Note: 38, Velocity: 100}, 0)
	m.Advance(0)

	ons := sink.ons()
	if len(ons) != 1 {
		t.Fatalf("ons = %+v, want one", ons)
	}
	if ons[0].Pitch != 38 || ons[0].Velocity != 100 || ons[0].Voice != 0 {
		t.Errorf("note = %+v, want pitch 38 vel 100 on voice 0", ons[0])
	}
	if ons[0].Mod.PitchBend != m.mono.Bend() {
		t.Error("sequenced note bypassed the converter")
	}
	if sink.updates != 1 || sink.last != 0 {
		t.Errorf("sink updated %d times, last at %v", sink.updates, sink.last)
	}

	m.Advance(62.5)
	if offs := sink.offs(); len(offs) != 1 || offs[0].Pitch != 38 {
		t.Errorf("offs = %+v, want 38 released at the gate", offs)
	}
}

func TestManagerDirectPlay(t *testing.T) {
	m, sink := newTestManager(t)
	m.ToggleSequencer()

	m.playInput(midi.NoteEvent{Note: 60, Velocity: 90}, 5)
	m.playInput(midi.NoteEvent{Note: 64, Velocity: 90}, 6)

	if s := sink.sounding(); len(s) != 1 || !s[64] {
		t.Errorf("sounding = %v, want only 64", s)
	}

	m.ToggleMono()
	m.playInput(midi.NoteEvent{Note: 60, Velocity: 90}, 7)
	m.playInput(midi.NoteEvent{Note: 67, Velocity: 90}, 8)
	if s := sink.sounding(); len(s) != 2 {
		t.Errorf("sounding = %v, want 60 and 67 with mono off", s)
	}
}

func TestManagerPads(t *testing.T) {
	m, sink := newTestManager(t)

	// bottom-left pad is lane 0
	m.handlePad(midi.PadEvent{Row: 0, Col: 0, Velocity: 127})
	m.handlePad(midi.PadEvent{Row: 8, Col: 0, Velocity: 127})
	m.Advance(0)

	ons := sink.ons()
	if len(ons) != 1 || ons[0].Pitch != 36 {
		t.Errorf("ons = %+v, want lane 0 at note 36", ons)
	}
}

func TestManagerLEDs(t *testing.T) {
	m, _ := newTestManager(t)
	c := newFakeController()
	m.controller = c
	m.ledDirty = true

	m.flushLEDs()
	if len(c.batches) != 1 || len(c.batches[0]) != 64 {
		t.Fatalf("first flush sent %d batches", len(c.batches))
	}

	m.flushLEDs()
	if len(c.batches) != 1 {
		t.Error("clean surface flushed again")
	}

	m.ToggleWrite()
	m.seq.updateLights(false)
	m.flushLEDs()
	if len(c.batches) != 2 || len(c.batches[1]) != 4 {
		t.Fatalf("write toggle sent %v", c.batches[len(c.batches)-1])
	}
	for _, u := range c.batches[1] {
		if u.Row != 7 || u.Col > 3 || u.Color == [3]uint8{} {
			t.Errorf("unexpected update %+v", u)
		}
	}
}

func TestManagerTimeSignatureRollback(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.seq.SetInterval(transport.Interval4n); err != nil {
		t.Fatal(err)
	}

	err := m.SetTimeSignature(1, 8)
	if !errors.Is(err, ErrNoSteps) {
		t.Fatalf("err = %v, want ErrNoSteps", err)
	}
	if m.tr.GetTimeSigTop() != 4 || m.tr.GetTimeSigBottom() != 4 {
		t.Errorf("meter %d/%d, want rollback to 4/4", m.tr.GetTimeSigTop(), m.tr.GetTimeSigBottom())
	}
	if strings.Contains(err.Error(), "roll back") {
		t.Errorf("clean rollback reported a rollback failure: %v", err)
	}
	if st := m.Config().TimeSignature; st.Top != 4 || st.Bottom != 4 {
		t.Errorf("saved meter %d/%d, want 4/4", st.Top, st.Bottom)
	}

	// three whole quarters fit in 7/8
	if err := m.SetTimeSignature(7, 8); err != nil {
		t.Fatal(err)
	}
	if m.seq.Steps() != 3 {
		t.Errorf("Steps = %d in 7/8, want 3", m.seq.Steps())
	}
}

func TestManagerCycle(t *testing.T) {
	m, _ := newTestManager(t)
	var seen []int
	for range MeasureCounts {
		if err := m.CycleMeasures(); err != nil {
			t.Fatal(err)
		}
		seen = append(seen, m.seq.NumMeasures())
	}
	want := []int{2, 4, 8, 16, 1}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("measures cycle = %v, want %v", seen, want)
		}
	}

	if err := m.CycleInterval(); err != nil {
		t.Fatal(err)
	}
	if m.seq.Interval() != transport.Interval16nt {
		t.Errorf("interval = %s, want 16nt", m.seq.Interval())
	}
}

func TestManagerSetInterval(t *testing.T) {
	m, sink := newTestManager(t)
	if err := m.SetInterval(transport.Interval8n); err != nil {
		t.Fatal(err)
	}
	if m.seq.Steps() != 8 {
		t.Errorf("Steps = %d at 8n, want 8", m.seq.Steps())
	}
	if got := m.Config().Sequencer.Interval; got != "8n" {
		t.Errorf("saved interval %q, want 8n", got)
	}

	// 8n steps are 250ms; the same sequencer keeps stepping at the new rate
	m.seq.SetCell(1, 0, 1)
	m.Advance(0)
	m.Advance(200)
	if len(sink.ons()) != 0 {
		t.Fatalf("ons = %+v before the second step", sink.ons())
	}
	m.Advance(250)
	ons := sink.ons()
	if len(ons) != 1 || ons[0].Time != 250 || ons[0].Pitch != 36 {
		t.Errorf("ons = %+v, want note 36 once at 250", ons)
	}

	if err := m.SetTimeSignature(3, 4); err != nil {
		t.Fatal(err)
	}
	if err := m.SetInterval(transport.Interval1n); !errors.Is(err, ErrNoSteps) {
		t.Errorf("1n in 3/4: err = %v, want ErrNoSteps", err)
	}
	if m.seq.Interval() != transport.Interval8n {
		t.Errorf("rejected interval left %s", m.seq.Interval())
	}
}

func TestManagerPatternExportImport(t *testing.T) {
	src, _ := newTestManager(t)
	src.SetTempo(90)
	src.ToggleCell(3, 2)
	src.ToggleCell(3, 5)
	src.ToggleCell(3, 5)

	var buf bytes.Buffer
	if err := src.ExportPattern(&buf); err != nil {
		t.Fatal(err)
	}

	dst, _ := newTestManager(t)
	if err := dst.ImportPattern(&buf); err != nil {
		t.Fatal(err)
	}
	if dst.seq.Cell(3, 2) != 1 || dst.seq.Cell(3, 5) != 0 {
		t.Error("grid didn't survive the round trip")
	}
	if dst.tr.Tempo() != 90 {
		t.Errorf("tempo = %v, want exactly 90", dst.tr.Tempo())
	}
}

func TestManagerDoAfterRun(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// more calls than the queue holds must neither block nor run
	finished := make(chan int, 1)
	go func() {
		queued := 0
		for i := 0; i < 200; i++ {
			if m.Do(func() { t.Error("ran after Run returned") }) {
				queued++
			}
		}
		finished <- queued
	}()
	select {
	case queued := <-finished:
		if queued != 0 {
			t.Errorf("%d calls queued after Run returned", queued)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do blocked after Run returned")
	}
}

func TestManagerConfig(t *testing.T) {
	m, _ := newTestManager(t)
	before := *m.cfg

	m.ToggleSustain()
	m.NudgeGlide(50)
	m.ToggleRequireHeld()
	m.SetTempo(140)
	if err := m.CycleMeasures(); err != nil {
		t.Fatal(err)
	}

	cfg := m.Config()
	if !cfg.Sequencer.Sustain || cfg.Sequencer.Measures != 2 || cfg.Sequencer.LaneNote != 36 || !cfg.Sequencer.Enabled {
		t.Errorf("sequencer config = %+v", cfg.Sequencer)
	}
	if cfg.Mono.GlideMs != 50 || !cfg.Mono.RequireHeld || !cfg.Mono.Enabled {
		t.Errorf("mono config = %+v", cfg.Mono)
	}
	if cfg.Tempo != 140 {
		t.Errorf("tempo = %v", cfg.Tempo)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("live config invalid: %v", err)
	}
	if m.cfg.Tempo != before.Tempo || m.cfg.Sequencer.Sustain != before.Sequencer.Sustain {
		t.Error("Config modified the loaded config")
	}
}

func TestManagerRun(t *testing.T) {
	m, sink := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// a Do round trip proves the loop is up
	ran := make(chan struct{})
	m.Do(func() {
		m.seq.SetCell(0, 0, 1)
		close(ran)
	})
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Do never ran")
	}

	select {
	case <-m.UpdateChan:
	case <-time.After(2 * time.Second):
		t.Fatal("no state update")
	}
	if m.State() == nil || m.State().Steps != 16 {
		t.Errorf("state = %+v", m.State())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if sink.updates == 0 {
		t.Error("clock never ticked the sink")
	}
	if len(sink.sounding()) != 0 {
		t.Errorf("shutdown left %v sounding", sink.sounding())
	}
}

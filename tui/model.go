package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-playseq/midi"
	"go-playseq/sequencer"
	"go-playseq/theme"
	"go-playseq/widgets"
)

// columns shown at once; the view pages with the cursor
const pageSteps = 32

// meters cycled by the T key
var meters = [][2]int{{4, 4}, {3, 4}, {6, 8}, {7, 8}, {5, 4}}

// layoutBounds holds cached layout info
type layoutBounds struct {
	gridTop  int
	gridLeft int
	page     int
}

type Model struct {
	Manager   *sequencer.Manager
	DeviceMgr *midi.DeviceManager
	Theme     *theme.Theme

	cursorStep int
	cursorLane int
	meter      int
	showHelp   bool

	quitting bool
	mouseX   int
	mouseY   int
	tooltip  string
	status   string
	keyboard string
	bounds   *layoutBounds
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

// ErrMsg carries a failed manager call back to the view
type ErrMsg struct{ Err error }

func NewModel(manager *sequencer.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme) Model {
	return Model{
		Manager:   manager,
		DeviceMgr: deviceMgr,
		Theme:     th,
		bounds:    &layoutBounds{},
	}
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	if deviceMgr == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Manager),
		ListenForDevices(m.DeviceMgr),
	)
}

// call runs fn on the manager goroutine and reports its error
func (m Model) call(fn func() error) tea.Cmd {
	mgr := m.Manager
	return func() tea.Msg {
		errc := make(chan error, 1)
		if !mgr.Do(func() { errc <- fn() }) {
			return nil
		}
		if err := <-errc; err != nil {
			return ErrMsg{Err: err}
		}
		return nil
	}
}

// do runs fn on the manager goroutine without waiting
func (m Model) do(fn func()) tea.Cmd {
	mgr := m.Manager
	return func() tea.Msg {
		mgr.Do(fn)
		return nil
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	mgr := m.Manager
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.status = ""
		st := mgr.State()
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "?":
			m.showHelp = !m.showHelp

		case "+", "=":
			tempo := st.Tempo + 5
			return m, m.do(func() { mgr.SetTempo(tempo) })

		case "-", "_":
			tempo := st.Tempo - 5
			return m, m.do(func() { mgr.SetTempo(tempo) })

		case "left", "h":
			m.cursorStep = (m.cursorStep - 1 + st.Steps) % st.Steps
		case "right", "l":
			m.cursorStep = (m.cursorStep + 1) % st.Steps
		case "up", "k":
			m.cursorLane = max(m.cursorLane-1, 0)
		case "down", "j":
			m.cursorLane = min(m.cursorLane+1, sequencer.NumLanes-1)

		case " ", "enter":
			step, lane := m.cursorStep, m.cursorLane
			return m, m.do(func() { mgr.ToggleCell(step, lane) })
		case "x":
			lane := m.cursorLane
			return m, m.do(func() { mgr.ToggleMute(lane) })
		case "C":
			return m, m.do(mgr.ClearGrid)

		case "w":
			return m, m.do(mgr.ToggleWrite)
		case "r":
			return m, m.do(mgr.ToggleNoteRepeat)
		case "L":
			return m, m.do(mgr.ToggleLinkColumns)
		case "s":
			return m, m.do(mgr.ToggleSustain)
		case "S":
			return m, m.do(mgr.ToggleSequencer)
		case "m":
			return m, m.do(mgr.ToggleMono)
		case "g":
			return m, m.do(mgr.ToggleRequireHeld)
		case "[":
			return m, m.do(func() { mgr.NudgeGlide(-10) })
		case "]":
			return m, m.do(func() { mgr.NudgeGlide(10) })

		case "1", "2", "3":
			level := int(msg.String()[0] - '0')
			return m, m.do(func() { mgr.SetVelocityLevel(level) })

		case "i":
			return m, m.call(mgr.CycleInterval)
		case "n":
			return m, m.call(mgr.CycleMeasures)
		case "T":
			m.meter = (m.meter + 1) % len(meters)
			ts := meters[m.meter]
			return m, m.call(func() error { return mgr.SetTimeSignature(ts[0], ts[1]) })
		}

	case tea.MouseMsg:
		m.mouseX, m.mouseY = msg.X, msg.Y
		step, lane, hit := m.hitTest(msg.X, msg.Y)
		m.tooltip = ""
		if !hit {
			break
		}
		st := mgr.State()
		if step < len(st.Cells[lane]) {
			m.tooltip = fmt.Sprintf("lane %d (note %d) step %d: vel %d",
				lane, st.LaneNote+lane, step+1, int(st.Cells[lane][step]*127+.5))
		}
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			m.cursorStep, m.cursorLane = step, lane
			return m, m.do(func() { mgr.ToggleCell(step, lane) })
		}

	case UpdateMsg:
		if st := m.Manager.State(); st != nil && m.cursorStep >= st.Steps {
			m.cursorStep = st.Steps - 1
		}
		return m, ListenForUpdates(m.Manager)

	case ErrMsg:
		m.status = msg.Err.Error()

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		mgr.HandleDeviceEvent(event)
		switch {
		case event.Type == midi.DeviceConnected && event.Controller.Type() == midi.ControllerKeyboard:
			m.keyboard = event.ID
		case event.Type == midi.DeviceDisconnected && event.ID == m.keyboard:
			m.keyboard = ""
		}
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

// hitTest maps a mouse position onto a grid cell
func (m Model) hitTest(x, y int) (step, lane int, ok bool) {
	lane = y - m.bounds.gridTop
	if lane < 0 || lane >= sequencer.NumLanes {
		return 0, 0, false
	}
	rel := x - m.bounds.gridLeft
	if rel < 0 || rel%5 == 4 {
		return 0, 0, false
	}
	step = rel/5*4 + rel%5
	if step >= pageSteps {
		return 0, 0, false
	}
	return m.bounds.page*pageSteps + step, lane, true
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	st := m.Manager.State()
	th := m.Theme

	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(th.Warning())
	tooltipStyle := lipgloss.NewStyle().
		Foreground(th.FG()).
		Background(th.Muted()).
		Padding(0, 1)

	deviceStatus := ""
	if st.Controller != "" {
		deviceStatus += "  LP:X"
	}
	if m.keyboard != "" {
		deviceStatus += "  KB"
	}
	header := headerStyle.Render(fmt.Sprintf("go-playseq  %3.0fbpm  %d/%d  %s x%d  step:%02d/%02d%s",
		st.Tempo, st.Top, st.Bottom, st.Interval, st.Measures, st.Step+1, st.Steps, deviceStatus))

	flags := m.renderFlags(st)
	grid := m.renderGrid(st)
	pads := m.renderPads(st)
	body := lipgloss.JoinHorizontal(lipgloss.Top, grid, "    ", pads)

	help := dimStyle.Render("hjkl:move  space:toggle  x:mute  w:write  r:repeat  s:sustain  S:seq  m:mono  [/]:glide  i:interval  n:measures  T:meter  ?:help  q:quit")
	if m.showHelp {
		help = dimStyle.Render(widgets.RenderKeyHelp(keyHelp))
	}

	headerHeight := lipgloss.Height(header)
	flagsHeight := lipgloss.Height(flags)
	m.bounds.gridTop = 1 + headerHeight + flagsHeight + 1

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")
	out.WriteString(flags)
	out.WriteString("\n\n")
	out.WriteString(body)
	out.WriteString("\n\n")
	out.WriteString(help)

	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.status))
	}
	if m.tooltip != "" {
		out.WriteString("\n")
		out.WriteString(tooltipStyle.Render(m.tooltip))
	}

	return out.String()
}

func (m Model) renderFlags(st *sequencer.State) string {
	th := m.Theme
	on, off := th.Success(), th.Muted()
	level := [...]string{"", "light", "med", "full"}[st.VelocityLevel]
	parts := []string{
		widgets.RenderFlag("SEQ", st.SeqEnabled, on, off),
		widgets.RenderFlag("MONO", st.MonoEnabled, on, off),
		widgets.RenderFlag("WRITE", st.Write, th.Active(), off),
		widgets.RenderFlag("REPEAT", st.NoteRepeat, on, off),
		widgets.RenderFlag("LINK", st.LinkColumns, on, off),
		widgets.RenderFlag("SUSTAIN", st.Sustain, on, off),
		widgets.RenderFlag("HELD", st.RequireHeld, on, off),
		lipgloss.NewStyle().Foreground(th.FG()).Render(fmt.Sprintf("glide %.0fms  vel %s", st.Glide, level)),
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderGrid(st *sequencer.State) string {
	th := m.Theme
	style := widgets.StepStyle{
		Empty:          th.Symbols.StepEmpty,
		Active:         th.Symbols.StepActive,
		Playhead:       th.Symbols.StepPlayhead,
		CursorEmpty:    th.Symbols.CursorEmpty,
		CursorActive:   th.Symbols.CursorActive,
		CursorPlayhead: th.Symbols.CursorPlayhead,
		Color:          th.Color,
		Dim:            th.Muted(),
		Cursor:         th.Cursor(),
	}

	page := m.cursorStep / pageSteps
	m.bounds.page = page
	from := page * pageSteps
	to := min(from+pageSteps, st.Steps)

	labelStyle := lipgloss.NewStyle().Foreground(th.FG())
	mutedStyle := lipgloss.NewStyle().Foreground(th.Warning())

	var lines []string
	for lane := 0; lane < sequencer.NumLanes; lane++ {
		mute := " "
		if st.Lanes[lane].MuteOrErase {
			mute = mutedStyle.Render("x")
		}
		label := labelStyle.Render(fmt.Sprintf("%2d %3d", lane+1, st.LaneNote+lane)) + " " + mute + " "

		cursor := -1
		if lane == m.cursorLane {
			cursor = m.cursorStep - from
		}
		var row []float64
		if from < to {
			row = st.Cells[lane][from:to]
		}
		lines = append(lines, label+widgets.RenderSteps(row, st.Step-from, cursor, style))
	}
	m.bounds.gridLeft = len("xx xxx x ")
	return strings.Join(lines, "\n")
}

func (m Model) renderPads(st *sequencer.State) string {
	var grid [8][8][3]uint8
	for y := range st.Lights {
		for x, c := range st.Lights[y] {
			grid[y][x] = m.Theme.Light(c.Family(), c.Bright())
		}
	}
	legend := []string{
		widgets.RenderLegendItem(m.Theme.Light(1, true), "lane", "unmuted, clear armed"),
		widgets.RenderLegendItem(m.Theme.Light(2, true), "toggle", "write, repeat, tier, playing"),
		widgets.RenderLegendItem(m.Theme.Light(3, true), "step", "playhead, measures"),
	}
	return widgets.RenderPadGrid(grid) + "\n\n" + strings.Join(legend, "\n")
}

var keyHelp = []widgets.KeySection{
	{Title: "Grid", Keys: []widgets.KeyBinding{
		{Key: "hjkl/arrows", Desc: "move cursor"},
		{Key: "space", Desc: "toggle step"},
		{Key: "x", Desc: "mute/erase lane"},
		{Key: "C", Desc: "clear grid"},
		{Key: "click", Desc: "toggle step"},
	}},
	{Title: "Sequencer", Keys: []widgets.KeyBinding{
		{Key: "S", Desc: "sequencer on/off"},
		{Key: "w", Desc: "write input into the grid"},
		{Key: "r", Desc: "note repeat"},
		{Key: "L", Desc: "link lane columns"},
		{Key: "s", Desc: "sustain"},
		{Key: "1 2 3", Desc: "velocity light, medium, full"},
		{Key: "i", Desc: "next interval"},
		{Key: "n", Desc: "next measure count"},
	}},
	{Title: "Mono", Keys: []widgets.KeyBinding{
		{Key: "m", Desc: "mono on/off"},
		{Key: "[ ]", Desc: "glide -/+ 10ms"},
		{Key: "g", Desc: "glide only from held keys"},
	}},
	{Title: "Transport", Keys: []widgets.KeyBinding{
		{Key: "+/-", Desc: "tempo"},
		{Key: "T", Desc: "next time signature"},
		{Key: "q", Desc: "quit"},
	}},
}

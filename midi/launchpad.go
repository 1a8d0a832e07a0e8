package midi

import (
	"fmt"

	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-playseq/debug"
)

// LaunchpadController handles a Novation Launchpad X
type LaunchpadController struct {
	id       string
	outPort  drivers.Out
	inPort   drivers.In
	send     func(msg gomidi.Message) error
	stopFunc func()

	padChan  chan PadEvent
	noteChan chan NoteEvent

	every debug.Every
	log   *log.Logger
}

// NewLaunchpadController creates and configures a Launchpad
func NewLaunchpadController(id string, inPort drivers.In, outPort drivers.Out, logger *log.Logger) (*LaunchpadController, error) {
	if logger == nil {
		logger = log.Default()
	}
	lp := &LaunchpadController{
		id:       id,
		inPort:   inPort,
		outPort:  outPort,
		padChan:  make(chan PadEvent, 32),
		noteChan: make(chan NoteEvent, 32),
		log:      logger.WithPrefix("launchpad"),
	}

	// Open output
	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		lp.send = send

		setup := [][]byte{
			{0x00, 0x7F},       // programmer layout
			{0x08, 0x7F},       // full brightness
			{0x0A, 0x01, 0x01}, // lights follow external messages
		}
		for _, cmd := range setup {
			if err := send(gomidi.SysEx(append(lpxHeader(), cmd...))); err != nil {
				return nil, fmt.Errorf("programmer mode: %w", err)
			}
		}
	}

	// Open input
	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			lp.handle(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stopFunc = stop
	}

	return lp, nil
}

// handle turns grid notes and top-row CCs into pad events. Releases are
// forwarded too: the velocity pads are momentary.
func (lp *LaunchpadController) handle(msg gomidi.Message) {
	var channel, note, velocity uint8
	var cc, value uint8

	row, col := -1, -1
	switch {
	case msg.GetNoteStart(&channel, &note, &velocity):
		row, col = noteToRowCol(note)
	case msg.GetNoteEnd(&channel, &note):
		row, col = noteToRowCol(note)
		velocity = 0
	case msg.GetControlChange(&channel, &cc, &value):
		row, col = ccToRowCol(cc)
		velocity = value
	}
	if row < 0 {
		return
	}

	select {
	case lp.padChan <- PadEvent{Row: row, Col: col, Velocity: velocity}:
	default:
		lp.log.Warn("pad event dropped", "row", row, "col", col)
	}
}

func (lp *LaunchpadController) ID() string {
	return lp.id
}

func (lp *LaunchpadController) Type() ControllerType {
	return ControllerLaunchpad
}

func (lp *LaunchpadController) PadEvents() <-chan PadEvent {
	return lp.padChan
}

func (lp *LaunchpadController) NoteEvents() <-chan NoteEvent {
	return lp.noteChan // Launchpad doesn't send note events in the keyboard sense
}

// SetLEDBatch lights pads in RGB, up to lightsPerMessage pads per SysEx
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	if lp.send == nil || len(updates) == 0 {
		return nil
	}
	for _, payload := range ledSysEx(updates) {
		if err := lp.send(gomidi.SysEx(payload)); err != nil {
			return fmt.Errorf("led batch: %w", err)
		}
	}
	lp.every.Debug(lp.log, 100, "led batch", "batch", len(updates))
	return nil
}

// the device accepts at most 81 colour specs per lighting message
const lightsPerMessage = 81

// ledSysEx encodes updates as Launchpad X lighting messages. Each pad is
// {3, index, r, g, b} with 7-bit components.
func ledSysEx(updates []LEDUpdate) [][]byte {
	var out [][]byte
	for len(updates) > 0 {
		n := min(len(updates), lightsPerMessage)
		payload := append(lpxHeader(), 0x03)
		for _, u := range updates[:n] {
			payload = append(payload, 0x03, rowColToNote(u.Row, u.Col), u.Color[0]>>1, u.Color[1]>>1, u.Color[2]>>1)
		}
		out = append(out, payload)
		updates = updates[n:]
	}
	return out
}

// lpxHeader is the Novation manufacturer and Launchpad X device prefix
func lpxHeader() []byte {
	return []byte{0x00, 0x20, 0x29, 0x02, 0x0C}
}

// Close darkens the grid and stops listening
func (lp *LaunchpadController) Close() error {
	if lp.send != nil {
		var updates []LEDUpdate
		for row := 0; row < 8; row++ {
			for col := 0; col < 8; col++ {
				updates = append(updates, LEDUpdate{Row: row, Col: col})
			}
		}
		if err := lp.SetLEDBatch(updates); err != nil {
			lp.log.Warn("clear on close", "err", err)
		}
	}
	if lp.stopFunc != nil {
		lp.stopFunc()
	}
	close(lp.padChan)
	close(lp.noteChan)
	return nil
}

// Launchpad X note mapping
// 8x8 Grid:  Row 0 (bottom) = notes 11-18, Row 7 = notes 81-88
// Side col:  Col 8 (right side scene buttons) = notes 19, 29, 39, 49, 59, 69, 79, 89
// Top row:   Row 8 (top control row) = CC 91-98

func rowColToNote(row, col int) uint8 {
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}

package midi

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerKeyboard
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerKeyboard:
		return "keyboard"
	}
	return "unknown"
}

// PadEvent is sent when a pad/button is pressed or released on a grid
// controller. Row 0 is the bottom row. Velocity 0 is a release.
type PadEvent struct {
	Row, Col int
	Velocity uint8
}

// Pressed reports whether the event is a press
func (e PadEvent) Pressed() bool {
	return e.Velocity > 0
}

// NoteEvent is sent when a note is played on a keyboard. Velocity 0 is a
// release.
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
}

// LEDUpdate sets one pad light
type LEDUpdate struct {
	Row, Col int
	Color    [3]uint8
}

// Controller is the interface for MIDI input devices
type Controller interface {
	ID() string
	Type() ControllerType

	// Input events from the controller
	PadEvents() <-chan PadEvent   // For grid controllers (Launchpad)
	NoteEvents() <-chan NoteEvent // For keyboards

	// Output to the controller
	SetLEDBatch(updates []LEDUpdate) error

	// Lifecycle
	Close() error
}

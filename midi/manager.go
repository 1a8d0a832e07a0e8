package midi

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// DeviceManager handles hot-plug detection of MIDI controllers
type DeviceManager struct {
	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration

	// input ports whose name contains this are opened as keyboards
	keyboardHint string

	log *log.Logger
}

// NewDeviceManager creates a new device manager. keyboardHint selects the
// keyboard input by (partial, case-insensitive) port name; empty disables
// keyboard detection.
func NewDeviceManager(keyboardHint string, logger *log.Logger) *DeviceManager {
	if logger == nil {
		logger = log.Default()
	}
	return &DeviceManager{
		controllers:  make(map[string]Controller),
		events:       make(chan DeviceEvent, 16),
		pollRate:     time.Second,
		keyboardHint: keyboardHint,
		log:          logger.WithPrefix("devices"),
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// GetLaunchpad returns the first connected Launchpad (or nil)
func (dm *DeviceManager) GetLaunchpad() Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if c.Type() == ControllerLaunchpad {
			return c
		}
	}
	return nil
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

// how long a port listing may take before the scan is skipped
const scanTimeout = 3 * time.Second

func (dm *DeviceManager) scan() {
	ins, outs, ok := listPorts(scanTimeout)
	if !ok {
		// CoreMIDI hangs until: sudo killall coreaudiod midiserver
		dm.log.Warn("port scan timed out")
		return
	}

	inputs := make(map[string]drivers.In)
	for _, in := range ins {
		if portKind(in.String(), dm.keyboardHint) != ControllerUnknown {
			inputs[in.String()] = in
		}
	}

	dm.mu.RLock()
	added, removed := diffPorts(dm.controllers, inputs)
	dm.mu.RUnlock()

	for _, id := range removed {
		dm.mu.Lock()
		c := dm.controllers[id]
		delete(dm.controllers, id)
		dm.mu.Unlock()

		c.Close()
		dm.log.Info("disconnected", "port", id)
		dm.events <- DeviceEvent{Type: DeviceDisconnected, ID: id}
	}

	for _, id := range added {
		c, err := dm.open(id, inputs[id], outs)
		if err != nil {
			dm.log.Warn("open controller", "port", id, "err", err)
			continue
		}
		dm.mu.Lock()
		dm.controllers[id] = c
		dm.mu.Unlock()

		dm.log.Info("connected", "port", id, "type", c.Type())
		dm.events <- DeviceEvent{Type: DeviceConnected, Controller: c, ID: id}
	}
}

func (dm *DeviceManager) open(id string, in drivers.In, outs []drivers.Out) (Controller, error) {
	if portKind(id, dm.keyboardHint) == ControllerKeyboard {
		return NewKeyboardController(id, in, dm.log)
	}
	// Launchpad output ports share the input's name
	var out drivers.Out
	for _, o := range outs {
		if strings.EqualFold(o.String(), id) {
			out = o
			break
		}
	}
	return NewLaunchpadController(id, in, out, dm.log)
}

// listPorts asks the driver for its ports, giving up after timeout
func listPorts(timeout time.Duration) ([]drivers.In, []drivers.Out, bool) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, true
	case <-time.After(timeout):
		return nil, nil, false
	}
}

// diffPorts returns the ports that appeared and the controllers whose port
// is gone, both sorted
func diffPorts[C, P any](open map[string]C, present map[string]P) (added, removed []string) {
	for id := range present {
		if _, ok := open[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range open {
		if _, ok := present[id]; !ok {
			removed = append(removed, id)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}

// portKind decides what to open an input port as
func portKind(name, keyboardHint string) ControllerType {
	if isLaunchpad(name) {
		return ControllerLaunchpad
	}
	if keyboardHint != "" && strings.Contains(strings.ToLower(name), strings.ToLower(keyboardHint)) {
		return ControllerKeyboard
	}
	return ControllerUnknown
}

func isLaunchpad(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "launchpad") && strings.Contains(name, "midi")
}

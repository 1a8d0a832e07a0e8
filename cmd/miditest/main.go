package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-playseq/debug"
	"go-playseq/midi"
	"go-playseq/sequencer"
	"go-playseq/theme"
)

var logger = debug.New(os.Stderr, log.DebugLevel)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "events":
		watchEvents(arg(2))
	case "leds":
		testLEDs()
	case "glide":
		testGlide(arg(2))
	default:
		usage()
	}
}

func arg(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return ""
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list             - List all MIDI ports")
	fmt.Println("  events [kbd]     - Print hot-plug, pad and key events")
	fmt.Println("  leds             - Sweep the palette across a Launchpad")
	fmt.Println("  glide <output>   - Play a legato phrase through the mono converter")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

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
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
	}
}

// watchEvents prints everything the device manager sees until ctrl+c
func watchEvents(keyboardHint string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dm := midi.NewDeviceManager(keyboardHint, logger)
	go dm.Run(ctx)

	fmt.Println("Connect/disconnect devices to test. Ctrl+C to exit.")
	for ev := range dm.Events() {
		if ev.Type == midi.DeviceDisconnected {
			fmt.Printf("[%s] - %s\n", time.Now().Format("15:04:05"), ev.ID)
			continue
		}
		fmt.Printf("[%s] + %s (%s)\n", time.Now().Format("15:04:05"), ev.ID, ev.Controller.Type())
		go func(c midi.Controller) {
			for p := range c.PadEvents() {
				fmt.Printf("  pad row=%d col=%d vel=%d\n", p.Row, p.Col, p.Velocity)
			}
		}(ev.Controller)
		go func(c midi.Controller) {
			for n := range c.NoteEvents() {
				fmt.Printf("  note %d vel=%d\n", n.Note, n.Velocity)
			}
		}(ev.Controller)
	}
}

// testLEDs lights each light family dim on the left and bright on the right
func testLEDs() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dm := midi.NewDeviceManager("", logger)
	go dm.Run(ctx)

	fmt.Println("Looking for Launchpad X...")
	var lp midi.Controller
	for i := 0; i < 5; i++ {
		if lp = dm.GetLaunchpad(); lp != nil {
			break
		}
		time.Sleep(time.Second)
	}
	if lp == nil {
		fmt.Println("No Launchpad found")
		return
	}

	th := theme.New(theme.Plasma())
	var updates []midi.LEDUpdate
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			updates = append(updates, midi.LEDUpdate{
				Row:   row,
				Col:   col,
				Color: th.Light(row%4, col >= 4),
			})
		}
	}
	if err := lp.SetLEDBatch(updates); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("Press Enter to clear...")
	fmt.Scanln()

	for i := range updates {
		updates[i].Color = [3]uint8{}
	}
	if err := lp.SetLEDBatch(updates); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	fmt.Println("Done!")
}

// testGlide plays C, G, E legato with a 200ms glide so the bend can be heard
func testGlide(output string) {
	if output == "" {
		usage()
		return
	}
	sink, err := midi.OpenPortSink(output, 0, midi.DefaultBendRange, logger)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}
	defer sink.Close()

	mono := sequencer.NewMonophonic(sink, logger)
	mono.SetGlide(200)

	phrase := []midi.Note{
		{Time: 0, Pitch: 60, Velocity: 100},
		{Time: 600, Pitch: 67, Velocity: 100},
		{Time: 1200, Pitch: 64, Velocity: 100},
		{Time: 1800, Pitch: 67},
		{Time: 1800, Pitch: 64},
		{Time: 1800, Pitch: 60},
	}

	start := time.Now()
	for len(phrase) > 0 || time.Since(start) < 2*time.Second {
		now := float64(time.Since(start)) / float64(time.Millisecond)
		for len(phrase) > 0 && phrase[0].Time <= now {
			mono.PlayNote(phrase[0])
			phrase = phrase[1:]
		}
		sink.Update(now)
		time.Sleep(time.Millisecond)
	}
	sink.Panic()
	fmt.Println("Done!")
}

package midi

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// DefaultBendRange is the synth's pitch bend range in semitones
const DefaultBendRange = 2

// PortSink turns notes into MIDI messages on one channel. The bend of the
// last note is sampled on every Update and sent as pitch bend when it moves.
type PortSink struct {
	send      func(msg gomidi.Message) error
	out       drivers.Out
	channel   uint8
	bendRange float64

	bend     *Ramp
	lastBend int16

	log *log.Logger
}

// NewPortSink sends through send. Channel is 0-based.
func NewPortSink(send func(msg gomidi.Message) error, channel uint8, bendRange float64, logger *log.Logger) *PortSink {
	if logger == nil {
		logger = log.Default()
	}
	if bendRange <= 0 {
		bendRange = DefaultBendRange
	}
	return &PortSink{
		send:      send,
		channel:   channel & 0x0F,
		bendRange: bendRange,
		log:       logger.WithPrefix("sink"),
	}
}

// OpenPortSink opens the named output port
func OpenPortSink(portName string, channel uint8, bendRange float64, logger *log.Logger) (*PortSink, error) {
	out, err := gomidi.FindOutPort(portName)
	if err != nil {
		return nil, fmt.Errorf("find output %q: %w", portName, err)
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", portName, err)
	}
	s := NewPortSink(send, channel, bendRange, logger)
	s.out = out
	return s, nil
}

func (s *PortSink) PlayNote(n Note) {
	if !InRange(n.Pitch) {
		return
	}
	s.bend = n.Mod.PitchBend
	if n.IsOn() {
		// bend has to land before the note starts
		s.Update(n.Time)
		vel := n.Velocity
		if vel > 127 {
			vel = 127
		}
		s.write(gomidi.NoteOn(s.channel, uint8(n.Pitch), uint8(vel)))
		return
	}
	s.write(gomidi.NoteOff(s.channel, uint8(n.Pitch)))
}

// Update sends the current bend if it changed since the last message
func (s *PortSink) Update(time float64) {
	v := 0.0
	if s.bend != nil {
		v = s.bend.Value(time)
	}
	bend := bendValue(v, s.bendRange)
	if bend == s.lastBend {
		return
	}
	s.lastBend = bend
	s.write(gomidi.Pitchbend(s.channel, bend))
}

// Panic silences every note on the channel
func (s *PortSink) Panic() {
	for pitch := 0; pitch < 128; pitch++ {
		s.write(gomidi.NoteOff(s.channel, uint8(pitch)))
	}
	s.bend = nil
	s.lastBend = 0
	s.write(gomidi.Pitchbend(s.channel, 0))
}

func (s *PortSink) Close() error {
	if s.out == nil {
		return nil
	}
	s.Panic()
	return s.out.Close()
}

func (s *PortSink) write(msg gomidi.Message) {
	if s.send == nil {
		return
	}
	if err := s.send(msg); err != nil {
		s.log.Warn("send failed", "msg", msg.String(), "err", err)
	}
}

// bendValue maps semitones onto the 14 bit pitch bend range
func bendValue(semitones, bendRange float64) int16 {
	v := math.Round(semitones / bendRange * 8192)
	if v > 8191 {
		v = 8191
	}
	if v < -8192 {
		v = -8192
	}
	return int16(v)
}

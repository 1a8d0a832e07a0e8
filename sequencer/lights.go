package sequencer

// GridColor is a controller light level. The number picks the color family,
// Dim/Bright the intensity.
type GridColor int

const (
	GridColorOff GridColor = iota
	GridColor1Dim
	GridColor1Bright
	GridColor2Dim
	GridColor2Bright
	GridColor3Dim
	GridColor3Bright
)

// Family is the color family 1-3, 0 when off
func (c GridColor) Family() int {
	if c <= GridColorOff || c > GridColor3Bright {
		return 0
	}
	return (int(c) + 1) / 2
}

func (c GridColor) Bright() bool {
	return c.Family() > 0 && c%2 == 0
}

// GridLights is an 8x8 light surface, x left to right and y top to bottom
type GridLights interface {
	SetLight(x, y int, c GridColor)
}

// Controller layout (x, y):
//
//	y=0  write x4                | step display (x 4-7, rows 0-3)
//	y=1  note repeat x3, link    |
//	y=2  measures 1 2 4 8        |
//	y=3  light, med, clear grid, clear arm
//	y=4-7  lanes: play pad (even x), mute/erase pad (odd x), lane 0 bottom left

// SetLights attaches a light surface. nil detaches.
func (s *PlaySequencer) SetLights(l GridLights) {
	s.lights = l
	s.updateLights(false)
}

// updateLights redraws the controller. betweener is set on the note-off tick
// so note repeat blinks with the gate.
func (s *PlaySequencer) updateLights(betweener bool) {
	if s.lights == nil {
		return
	}
	l := s.lights

	for x := 0; x < 4; x++ {
		l.SetLight(x, 0, onOff(s.write, GridColor2Bright))
	}
	for x := 0; x < 3; x++ {
		l.SetLight(x, 1, onOff(s.noteRepeat && !betweener, GridColor2Bright))
	}
	l.SetLight(3, 1, onOff(s.linkColumns, GridColor2Bright))

	for x, n := range []int{1, 2, 4, 8} {
		l.SetLight(x, 2, onOff(s.numMeasures == n, GridColor3Bright))
	}

	level := s.VelocityLevel()
	l.SetLight(0, 3, onOff(level == 1 || level == 3, GridColor2Bright))
	l.SetLight(1, 3, onOff(level == 2 || level == 3, GridColor2Bright))
	l.SetLight(3, 3, onOff(s.clearArmed, GridColor1Bright))

	step := s.GetStep(s.now)
	for i := 0; i < 16; i++ {
		x := (i/4)%4 + 4
		y := i % 4
		l.SetLight(x, y, onOff(step%16 == i, GridColor3Bright))
	}

	for i := range s.lanes {
		x := i % 4 * 2
		y := 7 - i/4
		l.SetLight(x, y, onOff(s.lanes[i].playing, GridColor2Bright))
		l.SetLight(x+1, y, onOff(!s.lanes[i].muteOrErase, GridColor1Bright))
	}
}

// HandleGridButton applies a controller press (velocity > 0) or release.
// velocity is normalized to [0,1].
func (s *PlaySequencer) HandleGridButton(x, y int, velocity float64) {
	if x < 0 || y < 0 || x > 7 || y > 7 {
		return
	}
	press := velocity > 0

	switch {
	case press && y == 0 && x < 4:
		s.write = !s.write
	case press && y == 1 && x < 3:
		s.noteRepeat = !s.noteRepeat
	case press && y == 1 && x == 3:
		s.linkColumns = !s.linkColumns
	case press && y == 2 && x < 4:
		if err := s.SetNumMeasures(1 << x); err != nil {
			s.log.Error("measures", "err", err)
		}
	case y == 3 && x == 0:
		s.useLight = press
	case y == 3 && x == 1:
		s.useMed = press
	case y == 3 && x == 3:
		s.clearArmed = press
	case y == 3 && x == 2 && s.clearArmed:
		s.ClearGrid()
	case y >= 4 && x%2 == 0:
		s.laneInput(x/2+(7-y)*4, velocity, press)
	case y >= 4:
		laneIdx := x/2 + (7-y)*4
		s.SetMuteOrErase(laneIdx, press)
		if press && s.clearArmed {
			s.ClearLane(laneIdx)
		}
	}

	s.updateLights(false)
}

// laneInput is the pad version of PlayNote. It works while disabled too.
func (s *PlaySequencer) laneInput(laneIdx int, velocity float64, press bool) {
	if press {
		s.lanes[laneIdx].inputVelocity = int(clamp01(velocity) * 127)
	} else if s.noteRepeat {
		s.lanes[laneIdx].inputVelocity = 0
	}
}

func onOff(on bool, c GridColor) GridColor {
	if on {
		return c
	}
	return GridColorOff
}

package sequencer

// noteOffScheduler is the sequencer's second transport listener, ticking
// half a step after each step. It gates every note it finds sounding.
type noteOffScheduler struct {
	owner *PlaySequencer
}

func (n *noteOffScheduler) OnTimeEvent(time float64) {
	s := n.owner
	if s.sustain {
		return
	}
	s.now = time
	s.releaseAll(time)
	s.updateLights(true)
}

package midi

// Ramp is a continuous value that can jump or move linearly over time.
// Ramps chain: a ramp appended to another reports the sum of both, which is
// how a glide composes with bend coming from further upstream.
type Ramp struct {
	from      float64
	to        float64
	startTime float64
	duration  float64

	prev *Ramp
}

// NewRamp returns a ramp resting at v
func NewRamp(v float64) *Ramp {
	r := &Ramp{}
	r.SetImmediate(v)
	return r
}

// SetImmediate jumps to v with no ramp
func (r *Ramp) SetImmediate(v float64) {
	r.from = v
	r.to = v
	r.duration = 0
}

// RampValue moves linearly from from to to, starting at time and lasting
// duration milliseconds. A duration <= 0 lands on to immediately.
func (r *Ramp) RampValue(time, from, to, duration float64) {
	if duration <= 0 {
		r.SetImmediate(to)
		return
	}
	r.from = from
	r.to = to
	r.startTime = time
	r.duration = duration
}

// RampTo moves from wherever the ramp is at time towards to
func (r *Ramp) RampTo(to, time, duration float64) {
	r.RampValue(time, r.IndividualValue(time), to, duration)
}

// Target is the value the ramp ends on
func (r *Ramp) Target() float64 {
	return r.to
}

// IndividualValue is this ramp's own value at time, ignoring the chain
func (r *Ramp) IndividualValue(time float64) float64 {
	if r.duration <= 0 || time >= r.startTime+r.duration {
		return r.to
	}
	if time <= r.startTime {
		return r.from
	}
	t := (time - r.startTime) / r.duration
	return r.from + (r.to-r.from)*t
}

// Value is the sum of this ramp and every ramp it is appended to
func (r *Ramp) Value(time float64) float64 {
	v := 0.0
	for cur := r; cur != nil; cur = cur.prev {
		v += cur.IndividualValue(time)
	}
	return v
}

// AppendTo chains r after prev. Appending to nil detaches r. A link that
// would close a cycle is refused and reported as false.
func (r *Ramp) AppendTo(prev *Ramp) bool {
	for cur := prev; cur != nil; cur = cur.prev {
		if cur == r {
			return false
		}
	}
	r.prev = prev
	return true
}

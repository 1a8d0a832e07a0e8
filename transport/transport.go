package transport

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
)

// ErrTimeSignature is returned for a meter the transport can't count in
var ErrTimeSignature = errors.New("invalid time signature")

// tolerance in measures when comparing positions
const eps = 1e-9

// Listener receives a callback for every interval boundary it registered for.
// time is in milliseconds on the transport clock.
type Listener interface {
	OnTimeEvent(time float64)
}

// Offset shifts a listener away from the interval grid.
// Phase is a fraction of a measure, or milliseconds when InMs is set.
type Offset struct {
	Phase float64
	InMs  bool
}

type listenerInfo struct {
	listener   Listener
	interval   Interval
	offset     Offset
	autoRemove bool
	k          int64 // index of the next boundary to fire
}

// Transport is the shared clock: tempo, meter, quantization and a list of
// interval listeners. It is driven by Advance and never reads the wall clock.
type Transport struct {
	tempo  float64 // quarter notes per minute
	top    int
	bottom int

	// position (in measures) is anchorPos at anchorTime, linear after that
	anchorTime float64
	anchorPos  float64

	now       float64
	inclusive bool // nothing has fired at the current position yet

	listeners []*listenerInfo
	log       *log.Logger
}

// New creates a stopped transport at 120bpm in 4/4
func New(logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{
		tempo:     120,
		top:       4,
		bottom:    4,
		inclusive: true,
		log:       logger.WithPrefix("transport"),
	}
}

// Start resets the clock so that measure 0 begins at time
func (t *Transport) Start(time float64) {
	t.anchorTime = time
	t.anchorPos = 0
	t.now = time
	t.inclusive = true
	for _, li := range t.listeners {
		t.schedule(li)
	}
	t.log.Debug("start", "time", time)
}

// Now returns the last time the transport was advanced to
func (t *Transport) Now() float64 {
	return t.now
}

// Tempo returns the current tempo in bpm
func (t *Transport) Tempo() float64 {
	return t.tempo
}

// SetTempo changes the tempo from the current time onwards
func (t *Transport) SetTempo(bpm float64) {
	if bpm < 20 {
		bpm = 20
	}
	if bpm > 300 {
		bpm = 300
	}
	t.reanchor()
	t.tempo = bpm
	for _, li := range t.listeners {
		if li.offset.InMs {
			t.schedule(li)
		}
	}
}

// SetTimeSignature changes the meter from the current time onwards. The
// measure position stays continuous; listeners realign to the new grid.
func (t *Transport) SetTimeSignature(top, bottom int) error {
	if top <= 0 || bottom <= 0 || bottom&(bottom-1) != 0 {
		return fmt.Errorf("%w: %d/%d", ErrTimeSignature, top, bottom)
	}
	t.reanchor()
	t.top = top
	t.bottom = bottom
	for _, li := range t.listeners {
		t.schedule(li)
	}
	return nil
}

func (t *Transport) GetTimeSigTop() int {
	return t.top
}

func (t *Transport) GetTimeSigBottom() int {
	return t.bottom
}

// MeasureMs returns the length of one measure in milliseconds
func (t *Transport) MeasureMs() float64 {
	quarterMs := 60000.0 / t.tempo
	return quarterMs * 4 * float64(t.top) / float64(t.bottom)
}

// CountInStandardMeasure returns the number of intervals in a 4/4 measure
func (t *Transport) CountInStandardMeasure(interval Interval) int {
	return interval.CountInStandardMeasure()
}

// GetMeasureFraction returns the length of one interval as a fraction of a
// measure in the current meter
func (t *Transport) GetMeasureFraction(interval Interval) float64 {
	count := interval.CountInStandardMeasure()
	if count == 0 || t.top == 0 {
		return 0
	}
	return float64(t.bottom) / float64(count*t.top)
}

// StepsPerMeasure returns how many whole intervals fit in a measure of the
// current meter
func (t *Transport) StepsPerMeasure(interval Interval) int {
	return interval.CountInStandardMeasure() * t.top / t.bottom
}

// GetMeasurePosition returns the position of time in measures since Start
func (t *Transport) GetMeasurePosition(time float64) float64 {
	return t.anchorPos + (time-t.anchorTime)/t.MeasureMs()
}

// GetMeasure returns the measure index containing time
func (t *Transport) GetMeasure(time float64) int {
	return int(math.Floor(t.GetMeasurePosition(time) + eps))
}

// GetQuantized returns the index of the interval step containing time,
// counted from the start of its measure
func (t *Transport) GetQuantized(time float64, interval Interval) int {
	frac := t.GetMeasureFraction(interval)
	if frac == 0 {
		return 0
	}
	pos := t.GetMeasurePosition(time)
	inMeasure := pos - math.Floor(pos+eps)
	if inMeasure < 0 {
		inMeasure = 0
	}
	step := int(math.Floor(inMeasure/frac + eps))
	// a trailing partial step belongs to the last whole one
	if steps := t.StepsPerMeasure(interval); steps > 0 && step >= steps {
		step = steps - 1
	}
	return step
}

// AddListener registers l to be called on every interval boundary shifted by
// offset. With autoRemove the listener is dropped after its first callback.
func (t *Transport) AddListener(l Listener, interval Interval, offset Offset, autoRemove bool) {
	if t.find(l) >= 0 {
		t.UpdateListener(l, interval, offset)
		return
	}
	li := &listenerInfo{
		listener:   l,
		interval:   interval,
		offset:     offset,
		autoRemove: autoRemove,
	}
	t.schedule(li)
	t.listeners = append(t.listeners, li)
}

// RemoveListener deregisters l. Removing an unknown listener is a no-op.
func (t *Transport) RemoveListener(l Listener) {
	if i := t.find(l); i >= 0 {
		t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
	}
}

// UpdateListener changes the period and offset of a registered listener
func (t *Transport) UpdateListener(l Listener, interval Interval, offset Offset) {
	i := t.find(l)
	if i < 0 {
		return
	}
	li := t.listeners[i]
	li.interval = interval
	li.offset = offset
	t.schedule(li)
}

// NumListeners reports how many listeners are registered
func (t *Transport) NumListeners() int {
	return len(t.listeners)
}

// Advance moves the clock to time, firing every listener boundary on the way
// in chronological order. Boundaries at equal times fire in registration order.
func (t *Transport) Advance(time float64) {
	toPos := t.GetMeasurePosition(time)
	for {
		li, pos := t.earliest(toPos)
		if li == nil {
			break
		}
		fireTime := t.timeAt(pos)
		t.now = fireTime
		t.inclusive = false
		li.k++
		if li.autoRemove {
			t.RemoveListener(li.listener)
		}
		li.listener.OnTimeEvent(fireTime)
	}
	if time > t.now {
		t.now = time
		t.inclusive = false
	}
}

func (t *Transport) earliest(toPos float64) (*listenerInfo, float64) {
	var best *listenerInfo
	bestPos := 0.0
	for _, li := range t.listeners {
		pos, ok := t.position(li)
		if !ok || pos > toPos+eps {
			continue
		}
		if best == nil || pos < bestPos-eps {
			best = li
			bestPos = pos
		}
	}
	return best, bestPos
}

// position of the listener's next boundary in measures
func (t *Transport) position(li *listenerInfo) (float64, bool) {
	period := t.GetMeasureFraction(li.interval)
	if period == 0 {
		return 0, false
	}
	return float64(li.k)*period + t.offsetPos(li.offset), true
}

func (t *Transport) offsetPos(o Offset) float64 {
	if o.InMs {
		return o.Phase / t.MeasureMs()
	}
	return o.Phase
}

// schedule points li at its first boundary at (or, once something has fired
// there, after) the current position
func (t *Transport) schedule(li *listenerInfo) {
	period := t.GetMeasureFraction(li.interval)
	if period == 0 {
		li.k = 0
		return
	}
	x := (t.GetMeasurePosition(t.now) - t.offsetPos(li.offset)) / period
	if t.inclusive {
		li.k = int64(math.Ceil(x - eps))
	} else {
		li.k = int64(math.Floor(x+eps)) + 1
	}
}

func (t *Transport) timeAt(pos float64) float64 {
	return t.anchorTime + (pos-t.anchorPos)*t.MeasureMs()
}

func (t *Transport) reanchor() {
	t.anchorPos = t.GetMeasurePosition(t.now)
	t.anchorTime = t.now
}

func (t *Transport) find(l Listener) int {
	for i, li := range t.listeners {
		if li.listener == l {
			return i
		}
	}
	return -1
}

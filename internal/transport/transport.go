// Package transport is the musical clock of one arrangement session. It counts
// audio frames, maps them onto a 16th-note step grid at the session tempo and
// fires scheduled events at the exact frame their step begins.
package transport

import (
	"errors"
	"math"
	"sync"
)

// StepsPerBeat is the 16th-note grid resolution
const StepsPerBeat = 4

var (
	// ErrDisposed is returned when scheduling on a disposed transport
	ErrDisposed = errors.New("transport disposed")
	// ErrInvalidLoop is returned for loops with no events or a negative period
	ErrInvalidLoop = errors.New("invalid loop")
)

// State represents the transport state
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Tick identifies the step an event fires on
type Tick struct {
	Step      int // absolute step since position zero
	Iteration int // loop iteration, 0 for the first pass
}

// Event fires Fire when the loop reaches Step (relative to the loop start)
type Event struct {
	Step int
	Fire func(Tick)
}

// Loop is a group of events repeating every Period steps, starting at Start.
// Period 0 fires the events once. Iterations 0 repeats forever.
type Loop struct {
	Name       string
	Start      int
	Period     int
	Iterations int
	Events     []Event
}

type scheduled struct {
	id     int
	loop   Loop
	byStep map[int][]func(Tick)
}

// Transport is a frame-counting clock with step-scheduled loops.
// Event callbacks run with the transport locked and must not call back into it.
type Transport struct {
	mu         sync.Mutex
	sampleRate int
	bpm        float64
	state      State
	position   int64 // frames since step 0
	nextStep   int   // first step not yet fired
	loops      []*scheduled
	nextID     int
	disposed   bool
}

// New creates a stopped transport
func New(sampleRate int, bpm float64) *Transport {
	return &Transport{
		sampleRate: sampleRate,
		bpm:        bpm,
	}
}

// BPM returns the tempo
func (t *Transport) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// SetBPM changes the tempo. Only allowed while stopped so step frames stay consistent.
func (t *Transport) SetBPM(bpm float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateStopped || bpm <= 0 {
		return false
	}
	t.bpm = bpm
	return true
}

// SampleRate returns the frame rate the transport counts in
func (t *Transport) SampleRate() int {
	return t.sampleRate
}

// FramesPerStep returns the (fractional) length of one 16th step
func (t *Transport) FramesPerStep() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.framesPerStepLocked()
}

func (t *Transport) framesPerStepLocked() float64 {
	return float64(t.sampleRate) * 60 / t.bpm / StepsPerBeat
}

// StepFrame returns the frame a step begins on
func (t *Transport) StepFrame(step int) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stepFrameLocked(step)
}

func (t *Transport) stepFrameLocked(step int) int64 {
	return int64(math.Round(float64(step) * t.framesPerStepLocked()))
}

// Schedule registers a loop and returns its id
func (t *Transport) Schedule(l Loop) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return 0, ErrDisposed
	}
	if len(l.Events) == 0 || l.Period < 0 || l.Start < 0 || l.Iterations < 0 {
		return 0, ErrInvalidLoop
	}

	s := &scheduled{id: t.nextID, loop: l, byStep: make(map[int][]func(Tick))}
	for _, ev := range l.Events {
		if ev.Fire == nil || ev.Step < 0 || (l.Period > 0 && ev.Step >= l.Period) {
			return 0, ErrInvalidLoop
		}
		s.byStep[ev.Step] = append(s.byStep[ev.Step], ev.Fire)
	}
	t.nextID++
	t.loops = append(t.loops, s)
	return s.id, nil
}

// Unschedule removes one loop
func (t *Transport) Unschedule(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.loops {
		if s.id == id {
			t.loops = append(t.loops[:i], t.loops[i+1:]...)
			return true
		}
	}
	return false
}

// EventCount returns the number of scheduled events across all loops
func (t *Transport) EventCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.loops {
		n += len(s.loop.Events)
	}
	return n
}

// LoopCount returns the number of scheduled loops
func (t *Transport) LoopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.loops)
}

// State returns the transport state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Position returns the frame position
func (t *Transport) Position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// Start runs the clock from the current position
func (t *Transport) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return false
	}
	t.state = StateRunning
	return true
}

// Pause halts the clock and keeps the position
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateRunning {
		t.state = StatePaused
	}
}

// Stop halts the clock and rewinds to step 0
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Transport) stopLocked() {
	t.state = StateStopped
	t.position = 0
	t.nextStep = 0
}

// Cancel drops every scheduled loop
func (t *Transport) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loops = nil
}

// Dispose stops the clock, drops all loops and refuses further scheduling
func (t *Transport) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.loops = nil
	t.disposed = true
}

// Disposed reports whether Dispose was called
func (t *Transport) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// Advance moves the clock forward n frames when running. render is called for
// each run of frames between step boundaries (offset relative to this call),
// and events fire before the frames of the step they belong to are rendered.
// It returns the number of frames advanced.
func (t *Transport) Advance(n int, render func(offset, count int)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning || n <= 0 {
		return 0
	}

	start := t.position
	end := start + int64(n)
	cur := start
	for {
		boundary := t.stepFrameLocked(t.nextStep)
		if boundary >= end {
			break
		}
		if boundary > cur {
			if render != nil {
				render(int(cur-start), int(boundary-cur))
			}
			cur = boundary
		}
		t.fireLocked(t.nextStep)
		t.nextStep++
	}
	if end > cur && render != nil {
		render(int(cur-start), int(end-cur))
	}
	t.position = end
	return n
}

func (t *Transport) fireLocked(step int) {
	for _, s := range t.loops {
		rel := step - s.loop.Start
		if rel < 0 {
			continue
		}
		iter, off := 0, rel
		if s.loop.Period > 0 {
			iter, off = rel/s.loop.Period, rel%s.loop.Period
			if s.loop.Iterations > 0 && iter >= s.loop.Iterations {
				continue
			}
		}
		fns := s.byStep[off]
		for _, fn := range fns {
			fn(Tick{Step: step, Iteration: iter})
		}
	}
}

// Names returns the scheduled loop names in scheduling order
func (t *Transport) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.loops))
	for _, s := range t.loops {
		names = append(names, s.loop.Name)
	}
	return names
}

package voice

// Envelope is an ADSR amplitude envelope. Times are in seconds, Sustain is a level.
type Envelope struct {
	Attack  float64 `json:"attack"`
	Decay   float64 `json:"decay"`
	Sustain float64 `json:"sustain"`
	Release float64 `json:"release"`
}

// held returns the level t frames after note-on while the gate is open
func (e Envelope) held(t float64, sampleRate int) float64 {
	sr := float64(sampleRate)
	a := e.Attack * sr
	d := e.Decay * sr
	if t < a {
		return t / a
	}
	if t < a+d {
		return 1 - (1-e.Sustain)*(t-a)/d
	}
	return e.Sustain
}

// Level returns the envelope level t frames after note-on for a gate of gate
// frames. done is true once the release has finished.
func (e Envelope) Level(t, gate, sampleRate int) (level float64, done bool) {
	if t < gate {
		return e.held(float64(t), sampleRate), false
	}
	r := e.Release * float64(sampleRate)
	rt := float64(t - gate)
	if rt >= r {
		return 0, true
	}
	return e.held(float64(gate), sampleRate) * (1 - rt/r), false
}

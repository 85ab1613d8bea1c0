package voice

import (
	"sync"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
)

// maxSamplerHits bounds overlapping one-shots
const maxSamplerHits = 32

type samplerHit struct {
	buf *audio.Buffer
	pos int
	vel float64
}

// Sampler plays one-shot samples mapped to note names
type Sampler struct {
	mu       sync.Mutex
	slots    map[string]*audio.Buffer
	gain     float64
	hits     []samplerHit
	triggers int
	disposed bool
}

// NewSampler creates a sampler over note-keyed slots. Buffers must already be
// at the render sample rate.
func NewSampler(slots map[string]*audio.Buffer, volumeDB float64) *Sampler {
	m := make(map[string]*audio.Buffer, len(slots))
	for k, v := range slots {
		m[k] = v
	}
	return &Sampler{slots: m, gain: DBToGain(volumeDB)}
}

// Trigger starts the sample mapped to note. It returns false for unmapped notes.
func (s *Sampler) Trigger(note string, velocity float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return false
	}
	buf, ok := s.slots[note]
	if !ok || buf == nil {
		return false
	}
	if len(s.hits) >= maxSamplerHits {
		s.hits = s.hits[1:]
	}
	s.hits = append(s.hits, samplerHit{buf: buf, vel: velocity})
	s.triggers++
	return true
}

// Triggers returns the number of accepted triggers
func (s *Sampler) Triggers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggers
}

// Active returns the number of sounding samples
func (s *Sampler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hits)
}

func (s *Sampler) Render(buf [][2]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	live := s.hits[:0]
	for _, h := range s.hits {
		frames := h.buf.Frames
		g := h.vel * s.gain
		n := min(len(buf), len(frames)-h.pos)
		for i := 0; i < n; i++ {
			f := frames[h.pos+i]
			buf[i][0] += f[0] * g
			buf[i][1] += f[1] * g
		}
		h.pos += n
		if h.pos < len(frames) {
			live = append(live, h)
		}
	}
	s.hits = live
}

func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = nil
}

func (s *Sampler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = nil
	s.slots = nil
	s.disposed = true
}

func (s *Sampler) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

var _ Voice = (*Sampler)(nil)

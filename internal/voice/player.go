package voice

import (
	"sync"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
)

// Player plays one recording from the start each time it is started
type Player struct {
	mu       sync.Mutex
	buf      *audio.Buffer
	gain     float64
	pos      int
	playing  bool
	started  bool
	disposed bool
}

// NewPlayer binds a player to a buffer already at the render sample rate
func NewPlayer(buf *audio.Buffer, volumeDB float64) *Player {
	return &Player{buf: buf, gain: DBToGain(volumeDB)}
}

// Start plays from the first frame
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.pos = 0
	p.playing = true
	p.started = true
}

// Len returns the recording length in frames
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf == nil {
		return 0
	}
	return p.buf.Len()
}

// Position returns the next frame to be played
func (p *Player) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Playing reports whether the player is sounding
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Done reports whether the recording has been played through since the last Start
func (p *Player) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.playing
}

func (p *Player) Render(buf [][2]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || !p.playing || p.buf == nil {
		return
	}
	frames := p.buf.Frames
	n := min(len(buf), len(frames)-p.pos)
	for i := 0; i < n; i++ {
		f := frames[p.pos+i]
		buf[i][0] += f[0] * p.gain
		buf[i][1] += f[1] * p.gain
	}
	p.pos += n
	if p.pos >= len(frames) {
		p.playing = false
	}
}

// Reset stops playback and rewinds
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = 0
	p.playing = false
	p.started = false
}

func (p *Player) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.buf = nil
	p.disposed = true
}

func (p *Player) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

var _ Voice = (*Player)(nil)

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
	"github.com/austinkregel/local-media/rhythmd/internal/config"
	"github.com/austinkregel/local-media/rhythmd/internal/kits"
	"github.com/austinkregel/local-media/rhythmd/internal/media"
	"github.com/austinkregel/local-media/rhythmd/internal/rhythm"
	"github.com/austinkregel/local-media/rhythmd/internal/transport"
	"github.com/austinkregel/local-media/rhythmd/internal/types"
	"github.com/austinkregel/local-media/rhythmd/internal/voice"
)

const testRate = 8000

// silentVocal writes a silent WAV and loads it as an upload
func silentVocal(t *testing.T, seconds float64, rate int) types.VocalFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocal.wav")
	buf := &audio.Buffer{SampleRate: rate, Channels: 2, Frames: make([][2]float64, int(seconds*float64(rate)))}
	if err := audio.WriteWAV(path, buf); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	f, err := types.LoadVocalFile(path)
	if err != nil {
		t.Fatalf("LoadVocalFile failed: %v", err)
	}
	return f
}

func testConfig(t *testing.T, genres ...string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.AssetRoot = filepath.Join(t.TempDir(), "kits")
	cfg.OutputDir = filepath.Join(t.TempDir(), "recordings")
	cfg.Audio.SampleRate = testRate
	cfg.Generation.Seed = 7
	for _, g := range genres {
		if _, err := kits.WriteKit(cfg.AssetRoot, g, testRate); err != nil {
			t.Fatalf("WriteKit failed: %v", err)
		}
	}
	return cfg
}

// trackingFactory records every output it creates
type trackingFactory struct {
	mu      sync.Mutex
	outputs []*audio.NullOutput
	fail    error
}

func (f *trackingFactory) New(sampleRate int) (audio.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	o := audio.NewNullOutput(sampleRate, true)
	f.outputs = append(f.outputs, o)
	return o, nil
}

func newTestEngine(cfg *config.Config, f *trackingFactory) *Engine {
	return New(cfg, Options{Output: f.New})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGenerateSilentMakossa(t *testing.T) {
	cfg := testConfig(t, "makossa")
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	var (
		mu       sync.Mutex
		progress []int
	)
	e.SetOnStatus(func(st types.Status) {
		mu.Lock()
		progress = append(progress, st.Progress)
		mu.Unlock()
	})

	if err := e.Generate(context.Background(), silentVocal(t, 4, 44100), "Makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	st := e.Status()
	if st.Phase != types.PhaseReadyToPlay || !st.Ready {
		t.Fatalf("Expected ready, got %s (ready=%v)", st.Phase, st.Ready)
	}
	if st.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", st.Progress)
	}
	if st.BPM != 130 || st.DetectedBPM != 0 {
		t.Errorf("Expected genre default 130 BPM with nothing detected, got %d (detected %d)", st.BPM, st.DetectedBPM)
	}
	if !strings.Contains(st.Message, "MAKOSSA Production Complete") {
		t.Errorf("Unexpected message %q", st.Message)
	}

	s := e.Session()
	if s == nil {
		t.Fatal("Expected a live session")
	}
	if s.Adapted.Len() != rhythm.SequenceLength || s.Expanded.Len() != rhythm.SequenceLength {
		t.Fatalf("Expected 64-step sequences, got %d / %d", s.Adapted.Len(), s.Expanded.Len())
	}
	if s.Adapted.Count(rhythm.Kick) > s.Expanded.Count(rhythm.Kick) {
		t.Errorf("Adapted kicks %d exceed expanded kicks %d", s.Adapted.Count(rhythm.Kick), s.Expanded.Count(rhythm.Kick))
	}
	if s.Intensity.Max() != 0 {
		t.Errorf("Expected silent intensity profile, got max %f", s.Intensity.Max())
	}
	if s.Transport.BPM() != 130 {
		t.Errorf("Expected transport at 130 BPM, got %f", s.Transport.BPM())
	}
	if s.Transport.State() != transport.StateStopped {
		t.Errorf("Expected clock stopped until play, got %s", s.Transport.State())
	}
	// three drum loops, bass, pads and the vocal
	if n := s.Transport.LoopCount(); n != 6 {
		t.Errorf("Expected 6 scheduled loops, got %d", n)
	}
	if _, err := os.Stat(st.MIDIPath); err != nil {
		t.Errorf("Expected MIDI export at %q: %v", st.MIDIPath, err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{10, 25, 35, 50, 65, 80, 95, 100}
	if len(progress) != len(want) {
		t.Fatalf("Expected progress %v, got %v", want, progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("Expected progress %v, got %v", want, progress)
			break
		}
	}
}

func TestGenerateInvalidInput(t *testing.T) {
	cfg := testConfig(t, "makossa")
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	called := false
	e.SetOnStatus(func(types.Status) { called = true })

	tests := []struct {
		name  string
		file  types.VocalFile
		genre string
	}{
		{"no vocal", types.VocalFile{Name: "empty.wav"}, "makossa"},
		{"no genre", silentVocal(t, 0.1, testRate), "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Generate(context.Background(), tt.file, tt.genre)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if called {
		t.Error("Expected no status change for rejected input")
	}
	if e.Status().Phase != types.PhaseIdle {
		t.Errorf("Expected idle, got %s", e.Status().Phase)
	}
}

func TestGenerateMissingKit(t *testing.T) {
	cfg := testConfig(t) // no kits written
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	err := e.Generate(context.Background(), silentVocal(t, 0.5, testRate), "bikutsi")
	if !errors.Is(err, kits.ErrKitMissing) {
		t.Fatalf("Expected ErrKitMissing, got %v", err)
	}

	st := e.Status()
	if st.Phase != types.PhaseIdle || st.Progress != 0 || st.Ready {
		t.Errorf("Expected reset to idle at 0%%, got %s at %d%%", st.Phase, st.Progress)
	}
	if !strings.HasPrefix(st.Message, "Error:") {
		t.Errorf("Expected error message, got %q", st.Message)
	}
	if e.Session() != nil {
		t.Error("Expected no session after failure")
	}
	if err := e.Play(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestGenerateDecodeFailure(t *testing.T) {
	cfg := testConfig(t, "makossa")
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	bad := types.VocalFile{Name: "take.wav", MIMEType: "audio/wav", Data: []byte("RIFF....not really a wave")}
	if err := e.Generate(context.Background(), bad, "makossa"); err == nil {
		t.Fatal("Expected decode error")
	}
	st := e.Status()
	if st.Phase != types.PhaseIdle || st.Progress != 0 {
		t.Errorf("Expected idle at 0%%, got %s at %d%%", st.Phase, st.Progress)
	}
}

func TestUnknownGenreUsesDefaultKit(t *testing.T) {
	cfg := testConfig(t, "afrobeats")
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	if err := e.Generate(context.Background(), silentVocal(t, 0.5, testRate), "polka"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if g := e.Status().Genre; g != "afrobeats" {
		t.Errorf("Expected afrobeats fallback, got %s", g)
	}
}

func TestSessionExclusivity(t *testing.T) {
	cfg := testConfig(t, "makossa", "bikutsi")
	cfg.Behavior.StopAtVocalEnd = false
	f := &trackingFactory{}
	e := newTestEngine(cfg, f)
	defer e.Close()

	if err := e.Generate(context.Background(), silentVocal(t, 1, testRate), "makossa"); err != nil {
		t.Fatalf("first Generate failed: %v", err)
	}
	first := e.Session()
	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "first session to render", func() bool { return first.Transport.Position() > 0 })

	if err := e.Generate(context.Background(), silentVocal(t, 1, testRate), "bikutsi"); err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}
	second := e.Session()
	if second == first {
		t.Fatal("Expected a new session")
	}

	if !first.Transport.Disposed() || first.Transport.State() != transport.StateStopped {
		t.Error("Expected first clock stopped and disposed")
	}
	if first.Transport.LoopCount() != 0 {
		t.Errorf("Expected first session events cancelled, got %d loops", first.Transport.LoopCount())
	}
	for _, v := range []voice.Voice{first.Sampler, first.Vocal, first.Bass, first.Pads} {
		if !v.Disposed() {
			t.Errorf("Expected first session voice %T disposed", v)
		}
	}
	if len(first.Mixer.Voices()) != 0 {
		t.Error("Expected first mixer emptied")
	}
	select {
	case <-first.pumpDone:
	default:
		t.Error("Expected first render pump to have exited")
	}

	if second.Transport.State() != transport.StateStopped {
		t.Errorf("Expected new session idle until play, got %s", second.Transport.State())
	}
	for _, v := range second.Mixer.Voices() {
		if v.Disposed() {
			t.Errorf("New session voice %T is disposed", v)
		}
	}
	if second.Bass.Options().Envelope.Release != 0.3 {
		t.Errorf("Expected bikutsi bass release 0.3, got %f", second.Bass.Options().Envelope.Release)
	}
}

func TestStopAndReplay(t *testing.T) {
	cfg := testConfig(t, "makossa")
	cfg.Behavior.StopAtVocalEnd = false
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	if err := e.Generate(context.Background(), silentVocal(t, 1, testRate), "makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	s := e.Session()
	events := s.Transport.EventCount()

	if path, err := e.Stop(); err != nil || path != "" {
		t.Errorf("Expected stop before play to be a no-op, got %q %v", path, err)
	}

	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Errorf("Expected Play to be idempotent, got %v", err)
	}
	waitFor(t, "playback", func() bool { return s.Transport.Position() > 0 })

	path, err := e.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if path != filepath.Join(cfg.OutputDir, s.ID+".wav") {
		t.Errorf("Unexpected recording path %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected recording on disk: %v", err)
	}
	if s.Transport.Position() != 0 {
		t.Errorf("Expected position 0 after stop, got %d", s.Transport.Position())
	}
	if s.Transport.EventCount() != events {
		t.Errorf("Expected %d events after stop, got %d", events, s.Transport.EventCount())
	}
	st := e.Status()
	if st.Phase != types.PhaseStopped || st.RecordingPath != path {
		t.Errorf("Expected stopped with recording, got %s %q", st.Phase, st.RecordingPath)
	}

	if err := e.Play(); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if s.Recorder.Armed() {
		t.Error("Expected no second capture once a recording exists")
	}
	if s.Transport.EventCount() != events {
		t.Errorf("Expected %d events on replay, got %d", events, s.Transport.EventCount())
	}
	waitFor(t, "vocal restart", func() bool { return s.Vocal.Playing() })

	again, err := e.Stop()
	if err != nil || again != path {
		t.Errorf("Expected the same recording %q, got %q %v", path, again, err)
	}
}

func TestPauseHoldsPosition(t *testing.T) {
	cfg := testConfig(t, "makossa")
	cfg.Behavior.StopAtVocalEnd = false
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	if err := e.Pause(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
	if err := e.Generate(context.Background(), silentVocal(t, 1, testRate), "makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	s := e.Session()
	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "playback", func() bool { return s.Transport.Position() > 0 })

	if err := e.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	held := s.Transport.Position()
	captured := s.Recorder.Len()
	time.Sleep(50 * time.Millisecond)
	if s.Transport.Position() != held {
		t.Errorf("Expected position to hold at %d, got %d", held, s.Transport.Position())
	}
	if s.Recorder.Len() != captured {
		t.Errorf("Expected capture to pause at %d frames, got %d", captured, s.Recorder.Len())
	}
	if int64(captured) != held {
		t.Errorf("Expected capture (%d) to match rendered frames (%d)", captured, held)
	}
	if e.Status().Phase != types.PhasePaused {
		t.Errorf("Expected paused, got %s", e.Status().Phase)
	}

	if err := e.Play(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	waitFor(t, "resume", func() bool { return s.Transport.Position() > held })
}

func TestStopsAtVocalEnd(t *testing.T) {
	cfg := testConfig(t, "makossa")
	e := New(cfg, Options{Output: audio.NullFactory(false)})
	defer e.Close()

	if err := e.Generate(context.Background(), silentVocal(t, 0.5, testRate), "makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	s := e.Session()
	bar := s.Transport.StepFrame(rhythm.StepsPerBar)

	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "auto-stop", func() bool { return e.Status().Phase == types.PhaseStopped })

	st := e.Status()
	if st.RecordingPath == "" {
		t.Fatal("Expected a recording after the take ended")
	}
	rec, err := audio.NewDecoder(testRate).DecodeFile(context.Background(), st.RecordingPath)
	if err != nil {
		t.Fatalf("Recording is not readable: %v", err)
	}
	if int64(rec.Len()) < bar {
		t.Errorf("Expected at least one bar (%d frames) recorded, got %d", bar, rec.Len())
	}
}

func TestAudioStartFailureKeepsSession(t *testing.T) {
	cfg := testConfig(t, "makossa")
	f := &trackingFactory{fail: errors.New("no sound card")}
	e := newTestEngine(cfg, f)
	defer e.Close()

	if err := e.Generate(context.Background(), silentVocal(t, 0.5, testRate), "makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := e.Play(); !errors.Is(err, ErrAudioStart) {
		t.Fatalf("Expected ErrAudioStart, got %v", err)
	}

	st := e.Status()
	if st.Phase != types.PhaseReadyToPlay || !st.Ready || st.Progress != 100 {
		t.Errorf("Expected session still ready, got %s ready=%v %d%%", st.Phase, st.Ready, st.Progress)
	}
	if st.Error == "" {
		t.Error("Expected the failure to be reported")
	}

	f.mu.Lock()
	f.fail = nil
	f.mu.Unlock()
	if err := e.Play(); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if e.Status().Phase != types.PhasePlaying {
		t.Errorf("Expected playing after retry, got %s", e.Status().Phase)
	}
}

func TestOnCommand(t *testing.T) {
	cfg := testConfig(t, "mbole")
	cfg.Behavior.StopAtVocalEnd = false
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	if err := e.OnCommand(media.CmdStop, nil); err != nil {
		t.Errorf("Expected stop without a session to be ignored, got %v", err)
	}
	if err := e.Generate(context.Background(), silentVocal(t, 0.5, testRate), "mbole"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	steps := []struct {
		cmd  media.Command
		want types.Phase
	}{
		{media.CmdPlayPause, types.PhasePlaying},
		{media.CmdPlayPause, types.PhasePaused},
		{media.CmdPlay, types.PhasePlaying},
		{media.CmdPause, types.PhasePaused},
		{media.CmdStop, types.PhaseStopped},
		{media.CmdStop, types.PhaseStopped},
	}
	for _, step := range steps {
		if err := e.OnCommand(step.cmd, nil); err != nil {
			t.Fatalf("%s failed: %v", step.cmd, err)
		}
		if got := e.Status().Phase; got != step.want {
			t.Errorf("After %s expected %s, got %s", step.cmd, step.want, got)
		}
	}
}

func TestCloseReleasesOutput(t *testing.T) {
	cfg := testConfig(t, "makossa")
	f := &trackingFactory{}
	e := newTestEngine(cfg, f)

	if err := e.Generate(context.Background(), silentVocal(t, 0.5, testRate), "makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	s := e.Session()
	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if e.Session() != nil || e.Status().Phase != types.PhaseIdle {
		t.Error("Expected engine idle after close")
	}
	if !s.Transport.Disposed() {
		t.Error("Expected session disposed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outputs) != 1 || !f.outputs[0].Closed() {
		t.Error("Expected the output to be closed")
	}
}

func TestSupersededGenerateIsCancelled(t *testing.T) {
	cfg := testConfig(t, "makossa")
	block := make(chan struct{})
	started := make(chan struct{})
	slow := loaderFunc(func(ctx context.Context, genre string, sr int) (*kits.Kit, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return nil, errors.New("unreachable")
		}
	})
	e := New(cfg, Options{Kits: slow, Output: (&trackingFactory{}).New})
	defer e.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- e.Generate(context.Background(), silentVocal(t, 0.5, testRate), "makossa")
	}()
	<-started

	// swap in a working loader for the second call
	e.kits = kits.NewDirLoader(cfg.AssetRoot, audio.NewDecoder(testRate))
	if err := e.Generate(context.Background(), silentVocal(t, 0.5, testRate), "makossa"); err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected first Generate cancelled, got %v", err)
	}
	if st := e.Status(); st.Phase != types.PhaseReadyToPlay {
		t.Errorf("Expected the newer generation to win, got %s %q", st.Phase, st.Message)
	}
	close(block)
}

type loaderFunc func(ctx context.Context, genre string, sampleRate int) (*kits.Kit, error)

func (f loaderFunc) Load(ctx context.Context, genre string, sampleRate int) (*kits.Kit, error) {
	return f(ctx, genre, sampleRate)
}

func TestSpectrumWhilePlaying(t *testing.T) {
	cfg := testConfig(t, "makossa")
	cfg.Behavior.StopAtVocalEnd = false
	e := newTestEngine(cfg, &trackingFactory{})
	defer e.Close()

	var mu sync.Mutex
	var frames int
	var width int
	e.SetOnSpectrum(func(bands []uint8, pos time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		frames++
		width = len(bands)
	})

	if err := e.Generate(context.Background(), silentVocal(t, 1, testRate), "makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "spectrum", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames > 0
	})

	mu.Lock()
	defer mu.Unlock()
	if width != SpectrumBands {
		t.Errorf("Expected %d bands, got %d", SpectrumBands, width)
	}
}

// drainOutput behaves like the sound card output: a bounded buffer drained at
// playback speed only while not paused, with Write blocking while it is full
type drainOutput struct {
	rate  int
	limit int

	mu       sync.Mutex
	buffered int
	written  int
	dropped  int
	paused   bool
	stopped  bool
	closed   bool
	done     chan struct{}
}

func newDrainOutput(rate int) *drainOutput {
	o := &drainOutput{rate: rate, limit: rate / 10, done: make(chan struct{})}
	go o.drain()
	return o
}

func (o *drainOutput) drain() {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	per := o.rate * 5 / 1000
	for {
		select {
		case <-o.done:
			return
		case <-tick.C:
		}
		o.mu.Lock()
		if !o.paused && !o.stopped {
			o.buffered = max(o.buffered-per, 0)
		}
		o.mu.Unlock()
	}
}

func (o *drainOutput) Write(data []byte) (int, error) {
	frames := len(data) / 4
	for {
		o.mu.Lock()
		switch {
		case o.closed:
			o.mu.Unlock()
			return 0, audio.ErrOutputClosed
		case o.stopped:
			o.mu.Unlock()
			return 0, audio.ErrOutputStopped
		case o.buffered < o.limit:
			o.buffered += frames
			o.written += frames
			o.mu.Unlock()
			return len(data), nil
		}
		o.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
}

func (o *drainOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
	return nil
}

func (o *drainOutput) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
}

func (o *drainOutput) Resume() {
	o.mu.Lock()
	o.paused = false
	o.stopped = false
	o.mu.Unlock()
}

func (o *drainOutput) Stop() {
	o.mu.Lock()
	o.dropped += o.buffered
	o.buffered = 0
	o.paused = false
	o.stopped = true
	o.mu.Unlock()
}

func (o *drainOutput) Buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffered
}

func (o *drainOutput) counts() (written, dropped int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written, o.dropped
}

func (o *drainOutput) SetVolume(float64) {}

func (o *drainOutput) SampleRate() int { return o.rate }

func (o *drainOutput) Channels() int { return 2 }

var _ audio.Output = (*drainOutput)(nil)

func within(t *testing.T, what string, d time.Duration, fn func() error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("%s failed: %v", what, err)
		}
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", what, d)
	}
}

func TestTeardownWhilePausedOnBlockingOutput(t *testing.T) {
	tests := []struct {
		name string
		next func(e *Engine, file types.VocalFile) error
	}{
		{"generate", func(e *Engine, file types.VocalFile) error {
			return e.Generate(context.Background(), file, "makossa")
		}},
		{"close", func(e *Engine, _ types.VocalFile) error {
			return e.Close()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "makossa")
			cfg.Behavior.StopAtVocalEnd = false
			out := newDrainOutput(testRate)
			e := New(cfg, Options{Output: func(int) (audio.Output, error) { return out, nil }})
			defer e.Close()

			file := silentVocal(t, 2, testRate)
			if err := e.Generate(context.Background(), file, "makossa"); err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			first := e.Session()
			if err := e.Play(); err != nil {
				t.Fatalf("Play failed: %v", err)
			}
			waitFor(t, "output buffer to fill", func() bool { return out.Buffered() >= out.limit })
			time.Sleep(100 * time.Millisecond)
			if err := e.Pause(); err != nil {
				t.Fatalf("Pause failed: %v", err)
			}

			within(t, tt.name, 5*time.Second, func() error { return tt.next(e, file) })

			select {
			case <-first.pumpDone:
			default:
				t.Error("Expected the paused session's pump to have exited")
			}
		})
	}
}

func TestRecordingExcludesUnplayedAudio(t *testing.T) {
	cfg := testConfig(t, "makossa")
	cfg.Behavior.StopAtVocalEnd = false
	out := newDrainOutput(testRate)
	e := New(cfg, Options{Output: func(int) (audio.Output, error) { return out, nil }})
	defer e.Close()

	if err := e.Generate(context.Background(), silentVocal(t, 2, testRate), "makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, "output buffer to fill", func() bool { return out.Buffered() >= out.limit })
	time.Sleep(200 * time.Millisecond)

	var path string
	within(t, "Stop", 5*time.Second, func() (err error) {
		path, err = e.Stop()
		return err
	})
	if path == "" {
		t.Fatal("Expected a recording")
	}

	rec, err := audio.NewDecoder(testRate).DecodeFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Decoding recording failed: %v", err)
	}
	written, dropped := out.counts()
	if dropped == 0 {
		t.Fatal("Expected Stop to discard buffered audio")
	}
	if rec.Len() == 0 || rec.Len() > written-dropped {
		t.Errorf("Expected at most %d played frames in the recording, got %d (%d written)", written-dropped, rec.Len(), written)
	}
}

func TestPlaybackVolume(t *testing.T) {
	cfg := testConfig(t, "makossa")
	cfg.Behavior.StopAtVocalEnd = false
	cfg.Audio.DefaultVolume = 0.6
	f := &trackingFactory{}
	e := newTestEngine(cfg, f)
	defer e.Close()

	if err := e.Generate(context.Background(), silentVocal(t, 1, testRate), "makossa"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	f.mu.Lock()
	out := f.outputs[0]
	f.mu.Unlock()
	if out.Volume() != 0.6 {
		t.Errorf("Expected volume 0.6 on play, got %f", out.Volume())
	}

	next := e.Config()
	next.Audio.DefaultVolume = 0.2
	e.SetConfig(next)
	if out.Volume() != 0.2 {
		t.Errorf("Expected live volume 0.2, got %f", out.Volume())
	}
}

// Package main is the entry point for the rhythmd daemon.
// rhythmd turns a vocal take into a drum, bass and pad arrangement in an
// African popular-music style, plays it back and records the mix. It runs as
// a headless daemon driven over IPC, or once from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
	"github.com/austinkregel/local-media/rhythmd/internal/config"
	"github.com/austinkregel/local-media/rhythmd/internal/engine"
	"github.com/austinkregel/local-media/rhythmd/internal/ipc"
	"github.com/austinkregel/local-media/rhythmd/internal/kits"
	"github.com/austinkregel/local-media/rhythmd/internal/media"
	"github.com/austinkregel/local-media/rhythmd/internal/rhythm"
	"github.com/austinkregel/local-media/rhythmd/internal/types"
)

// Version is set at build time via ldflags
var Version = "dev"

// Config holds command-line configuration
type Config struct {
	SocketPath string
	ConfigDir  string
	Verbose    bool

	// One-shot mode
	VocalPath string
	Genre     string
	Play      bool

	Offline  bool
	InitKits bool
}

func main() {
	cfg := parseFlags()

	if cfg.Verbose {
		log.Printf("rhythmd version %s starting...", Version)
	}

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.SocketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	flag.StringVar(&cfg.ConfigDir, "config", "", "Configuration directory (default: ~/.config/rhythmd)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.StringVar(&cfg.VocalPath, "vocal", "", "Produce an arrangement for this vocal file and exit")
	flag.StringVar(&cfg.Genre, "genre", rhythm.GenreMakossa.String(), "Genre for -vocal (bikutsi, makossa, mbole, afrobeats)")
	flag.BoolVar(&cfg.Play, "play", false, "With -vocal, play the arrangement and record the mix")
	flag.BoolVar(&cfg.Offline, "offline", false, "Render to a silent clock instead of the sound card")
	flag.BoolVar(&cfg.InitKits, "init-kits", false, "Write synthesized drum kits for every genre missing one")
	flag.Parse()

	// Set defaults
	if cfg.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		cfg.ConfigDir = filepath.Join(homeDir, ".config", "rhythmd")
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = fmt.Sprintf("/tmp/rhythmd-%d.sock", os.Getuid())
	}

	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	// Ensure config directory exists
	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Initialize config manager
	configMgr := config.NewManager(cfg.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	daemonCfg := configMgr.Get()

	if cfg.InitKits {
		return initKits(ctx, daemonCfg)
	}

	opts := engine.Options{}
	if cfg.Offline {
		opts.Output = audio.NullFactory(true)
	}

	if cfg.VocalPath != "" {
		return produce(ctx, cfg, daemonCfg, opts)
	}
	return serve(ctx, cfg, configMgr, opts)
}

// serve runs the daemon until ctx is cancelled
func serve(ctx context.Context, cfg *Config, configMgr *config.Manager, opts engine.Options) error {
	daemonCfg := configMgr.Get()

	// Initialize media session (platform-specific)
	var mediaSession media.Session = media.NewNoOpSession()
	if daemonCfg.Behavior.MediaKeys {
		session, err := media.NewSession()
		if err != nil {
			log.Printf("[MEDIA] Warning: failed to initialize media session: %v", err)
			log.Printf("[MEDIA] Continuing without OS media integration")
		} else {
			log.Printf("[MEDIA] Media session initialized successfully")
			mediaSession = session
		}
	}
	defer mediaSession.Close()
	opts.Media = mediaSession

	eng := engine.New(daemonCfg, opts)
	defer eng.Close()

	// Connect media session commands to the engine
	mediaSession.SetCommandHandler(eng)

	// Initialize IPC server
	server, err := ipc.NewServer(cfg.SocketPath, configMgr, eng)
	if err != nil {
		return fmt.Errorf("failed to initialize IPC server: %w", err)
	}

	log.Printf("Starting IPC server on %s", cfg.SocketPath)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}
	return nil
}

// produce generates one arrangement with a progress bar, optionally plays it,
// and prints where the outputs went
func produce(ctx context.Context, cfg *Config, daemonCfg *config.Config, opts engine.Options) error {
	file, err := types.LoadVocalFile(cfg.VocalPath)
	if err != nil {
		return err
	}

	// Keep the bar readable; engine logs only with -verbose
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
		defer log.SetOutput(os.Stderr)
	}

	eng := engine.New(daemonCfg, opts)
	defer eng.Close()

	var message atomic.Value
	message.Store("Starting...")
	stopped := make(chan types.Status, 1)

	p := mpb.NewWithContext(ctx, mpb.WithWidth(40))
	bar := p.AddBar(100,
		mpb.PrependDecorators(
			decor.Name("Producing: "),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				return message.Load().(string)
			}),
		),
	)

	eng.SetOnStatus(func(st types.Status) {
		message.Store(st.Message)
		if st.Progress > 0 && !bar.Completed() {
			bar.SetCurrent(int64(st.Progress))
		}
		if st.Phase == types.PhaseStopped {
			select {
			case stopped <- st:
			default:
			}
		}
	})

	if err := eng.Generate(ctx, file, cfg.Genre); err != nil {
		bar.Abort(false)
		p.Wait()
		return fmt.Errorf("generation failed: %w", err)
	}
	bar.SetCurrent(100)
	p.Wait()

	st := eng.Status()
	fmt.Printf("%s\n", st.Message)
	if st.DetectedBPM > 0 {
		fmt.Printf("  tempo:   %d BPM (detected from vocal)\n", st.BPM)
	} else {
		fmt.Printf("  tempo:   %d BPM (genre default)\n", st.BPM)
	}
	fmt.Printf("  session: %s\n", st.SessionID)
	if st.MIDIPath != "" {
		fmt.Printf("  midi:    %s\n", st.MIDIPath)
	}

	if !cfg.Play {
		return nil
	}

	if err := eng.Play(); err != nil {
		return err
	}
	fmt.Printf("Playing... (Ctrl+C to stop)\n")

	var recording string
	select {
	case st := <-stopped:
		recording = st.RecordingPath
	case <-ctx.Done():
		recording, err = eng.Stop()
		if err != nil && !errors.Is(err, engine.ErrNoSession) {
			return err
		}
	}

	if recording != "" {
		fmt.Printf("  recording: %s\n", recording)
	}
	return nil
}

// initKits writes a synthesized kit for every genre without a complete one
func initKits(ctx context.Context, daemonCfg *config.Config) error {
	scan := kits.Scan(ctx, daemonCfg.AssetRoot)
	for _, g := range rhythm.Genres() {
		if k, ok := scan.Find(g.String()); ok && k.Complete {
			fmt.Printf("%-10s %s (kept)\n", g, k.Dir)
			continue
		}
		dir, err := kits.WriteKit(daemonCfg.AssetRoot, g.String(), daemonCfg.Audio.SampleRate)
		if err != nil {
			return fmt.Errorf("failed to write %s kit: %w", g, err)
		}
		fmt.Printf("%-10s %s (synthesized)\n", g, dir)
	}
	return nil
}

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/austinkregel/local-media/rhythmd/internal/config"
	"github.com/austinkregel/local-media/rhythmd/internal/engine"
	"github.com/austinkregel/local-media/rhythmd/internal/kits"
	"github.com/austinkregel/local-media/rhythmd/internal/rhythm"
	"github.com/austinkregel/local-media/rhythmd/internal/types"
)

const (
	// statusQueueSize bounds status pushes waiting for slow subscribers
	statusQueueSize = 64
	// spectrumQueueSize is small; stale meter frames are worthless
	spectrumQueueSize = 8
)

// client is one connected socket; writes are serialized so responses and
// pushes never interleave on the wire
type client struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *client) writeLine(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(append(data, '\n'))
	return err
}

// Server handles IPC communication with clients
type Server struct {
	socketPath string
	configMgr  *config.Manager
	engine     *engine.Engine
	listener   net.Listener
	mu         sync.Mutex
	clients    map[net.Conn]*client

	// Status streaming (callback-based, no polling)
	statusSubsMu sync.RWMutex
	statusSubs   map[net.Conn]*client
	statusCh     chan types.Status

	spectrumSubsMu sync.RWMutex
	spectrumSubs   map[net.Conn]*client
	spectrumCh     chan SpectrumResponse

	// generations run detached from the request that started them
	genWG  sync.WaitGroup
	genMu  sync.Mutex
	genCtx context.Context
}

// NewServer creates a new IPC server
func NewServer(socketPath string, configMgr *config.Manager, eng *engine.Engine) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	s := &Server{
		socketPath: socketPath,
		configMgr:  configMgr,
		engine:     eng,
		clients:    make(map[net.Conn]*client),
		statusSubs: make(map[net.Conn]*client),
		statusCh:   make(chan types.Status, statusQueueSize),
		genCtx:     context.Background(),

		spectrumSubs: make(map[net.Conn]*client),
		spectrumCh:   make(chan SpectrumResponse, spectrumQueueSize),
	}

	// Status callbacks run under engine locks; hand off to the push loop
	eng.SetOnStatus(func(st types.Status) {
		select {
		case s.statusCh <- st:
		default:
			log.Printf("[IPC] Status queue full, dropping %s update", st.Phase)
		}
	})

	// Meter frames come from the render loop, which must never wait on a socket
	eng.SetOnSpectrum(func(bands []uint8, position time.Duration) {
		if !s.hasSpectrumSubs() {
			return
		}
		levels := make([]int, len(bands))
		for i, b := range bands {
			levels[i] = int(b)
		}
		select {
		case s.spectrumCh <- SpectrumResponse{
			Bands:     levels,
			Position:  position.Milliseconds(),
			Timestamp: time.Now().UnixMilli(),
		}:
		default:
		}
	})

	return s, nil
}

// Start starts the IPC server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	log.Printf("[IPC] Creating socket at %s", s.socketPath)

	// Create Unix socket listener
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions (user-only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.genMu.Lock()
	s.genCtx = ctx
	s.genMu.Unlock()

	log.Printf("[IPC] Server listening, waiting for connections...")

	// Accept connections in background
	go s.acceptLoop(ctx)
	go s.pushLoop(ctx)

	// Wait for context cancellation
	<-ctx.Done()

	log.Printf("[IPC] Shutting down server...")

	listener.Close()

	// Cleanup
	s.mu.Lock()
	clientCount := len(s.clients)
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	log.Printf("[IPC] Closed %d client connections", clientCount)

	// Generations observe ctx; wait for them to unwind
	s.genWG.Wait()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] Server stopped")

	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[IPC] Accept error: %v", err)
			continue
		}

		go s.serveConn(ctx, conn)
	}
}

// serveConn registers conn and handles it until it disconnects
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	c := &client{conn: conn}

	s.mu.Lock()
	s.clients[conn] = c
	clientCount := len(s.clients)
	s.mu.Unlock()

	log.Printf("[IPC] New client connection (active clients: %d)", clientCount)

	s.handleConnection(ctx, c)
}

func (s *Server) handleConnection(ctx context.Context, c *client) {
	conn := c.conn

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()
		// Remove from status subscribers
		s.statusSubsMu.Lock()
		delete(s.statusSubs, conn)
		s.statusSubsMu.Unlock()
		s.spectrumSubsMu.Lock()
		delete(s.spectrumSubs, conn)
		s.spectrumSubsMu.Unlock()
		log.Printf("[IPC] Client disconnected (active clients: %d)", clientCount)
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read line (newline-delimited JSON)
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Printf("[IPC] Read error: %v", err)
			}
			return
		}

		// Parse request
		req, err := DecodeRequest(line)
		if err != nil {
			log.Printf("[IPC] Invalid request format: %v", err)
			if err := s.sendResponse(c, NewErrorResponse("invalid request format")); err != nil {
				return
			}
			continue
		}

		// Skip verbose logging for frequent polling commands
		isPollingCmd := req.Cmd == CmdStatus

		start := time.Now()
		if !isPollingCmd {
			RequestLogger(req)
		}

		resp := s.handleRequest(c, req)

		if !isPollingCmd {
			ResponseLogger(resp, time.Since(start))
		}

		// Send response
		if err := s.sendResponse(c, resp); err != nil {
			log.Printf("[IPC] Send error: %v", err)
			return
		}
	}
}

func (s *Server) handleRequest(c *client, req *Request) *Response {
	switch req.Cmd {
	case CmdGenerate:
		return s.handleGenerate(req)
	case CmdPlay:
		return s.handlePlay()
	case CmdPause:
		return s.handlePause()
	case CmdStop:
		return s.handleStop()
	case CmdStatus:
		return s.handleStatus()
	case CmdGetConfig:
		return s.handleGetConfig()
	case CmdSetConfig:
		return s.handleSetConfig(req)
	case CmdKits:
		return s.handleKits()
	case CmdGenres:
		return s.handleGenres()
	case CmdSubscribeStatus:
		return s.handleSubscribeStatus(c)
	case CmdUnsubscribeStatus:
		return s.handleUnsubscribeStatus(c)
	case CmdSubscribeSpectrum:
		return s.handleSubscribeSpectrum(c)
	case CmdUnsubscribeSpectrum:
		return s.handleUnsubscribeSpectrum(c)
	default:
		return NewErrorResponse(fmt.Sprintf("unknown command: %s", req.Cmd))
	}
}

// handleGenerate validates the vocal and starts a generation in the background.
// Progress and the final result arrive as status pushes.
func (s *Server) handleGenerate(req *Request) *Response {
	var genReq GenerateRequest
	if err := json.Unmarshal(req.Data, &genReq); err != nil {
		return NewErrorResponse("invalid generate request")
	}
	if genReq.Genre == "" {
		return NewErrorResponse("genre is required")
	}

	var file types.VocalFile
	switch {
	case len(genReq.Audio) > 0:
		file = types.VocalFile{Name: "upload", MIMEType: genReq.MIMEType, Data: genReq.Audio}
	case genReq.Path != "":
		var err error
		file, err = types.LoadVocalFile(genReq.Path)
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		if genReq.MIMEType != "" {
			file.MIMEType = genReq.MIMEType
		}
	default:
		return NewErrorResponse("a vocal path or audio payload is required")
	}
	if len(file.Data) == 0 {
		return NewErrorResponse("vocal file is empty")
	}

	genre, _ := rhythm.ParseGenre(genReq.Genre)

	s.genMu.Lock()
	ctx := s.genCtx
	s.genMu.Unlock()

	s.genWG.Add(1)
	go func() {
		defer s.genWG.Done()
		if err := s.engine.Generate(ctx, file, genReq.Genre); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Printf("[IPC] Generation superseded")
				return
			}
			log.Printf("[IPC] Generation failed: %v", err)
		}
	}()

	resp, _ := NewSuccessResponse(GenerateResponse{Accepted: true, Genre: genre.String()})
	return resp
}

func (s *Server) handlePlay() *Response {
	if err := s.engine.Play(); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handlePause() *Response {
	if err := s.engine.Pause(); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(nil)
	return resp
}

func (s *Server) handleStop() *Response {
	path, err := s.engine.Stop()
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewSuccessResponse(StopResponse{RecordingPath: path})
	return resp
}

func (s *Server) handleStatus() *Response {
	resp, err := NewSuccessResponse(NewStatusResponse(s.engine.Status()))
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleGetConfig() *Response {
	cfg := s.configMgr.Get()
	resp, err := NewSuccessResponse(ConfigResponse{
		ConfigPath:     s.configMgr.GetPath(),
		AssetRoot:      cfg.AssetRoot,
		OutputDir:      cfg.OutputDir,
		SampleRate:     cfg.Audio.SampleRate,
		BufferSizeMs:   cfg.Audio.BufferSizeMs,
		DefaultVolume:  cfg.Audio.DefaultVolume,
		Progression:    cfg.Generation.Progression,
		ExportMIDI:     cfg.Generation.ExportMIDI,
		StopAtVocalEnd: cfg.Behavior.StopAtVocalEnd,
		Seed:           cfg.Generation.Seed,
		Tuning:         cfg.Generation.Tuning,
	})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// handleSetConfig applies a partial update. The new values take effect on the
// next generation; the live session keeps the settings it was built with.
func (s *Server) handleSetConfig(req *Request) *Response {
	var cfgReq ConfigRequest
	if err := json.Unmarshal(req.Data, &cfgReq); err != nil {
		return NewErrorResponse("invalid config request")
	}

	cfg := s.configMgr.Get()

	if cfgReq.AssetRoot != nil {
		cfg.AssetRoot = *cfgReq.AssetRoot
	}
	if cfgReq.OutputDir != nil {
		cfg.OutputDir = *cfgReq.OutputDir
	}
	if cfgReq.SampleRate != nil {
		cfg.Audio.SampleRate = *cfgReq.SampleRate
	}
	if cfgReq.BufferSizeMs != nil {
		cfg.Audio.BufferSizeMs = *cfgReq.BufferSizeMs
	}
	if cfgReq.DefaultVolume != nil {
		cfg.Audio.DefaultVolume = *cfgReq.DefaultVolume
	}
	if cfgReq.Progression != nil {
		cfg.Generation.Progression = *cfgReq.Progression
	}
	if cfgReq.ExportMIDI != nil {
		cfg.Generation.ExportMIDI = *cfgReq.ExportMIDI
	}
	if cfgReq.StopAtVocalEnd != nil {
		cfg.Behavior.StopAtVocalEnd = *cfgReq.StopAtVocalEnd
	}
	if cfgReq.Seed != nil {
		cfg.Generation.Seed = *cfgReq.Seed
	}
	if cfgReq.Tuning != nil {
		cfg.Generation.Tuning = *cfgReq.Tuning
	}

	if err := s.configMgr.Update(cfg); err != nil {
		return NewErrorResponse(err.Error())
	}
	s.engine.SetConfig(s.configMgr.Get())

	log.Printf("[IPC] Config updated")
	return s.handleGetConfig()
}

func (s *Server) handleKits() *Response {
	root := s.configMgr.Get().AssetRoot
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := NewSuccessResponse(NewKitsResponse(kits.Scan(ctx, root)))
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleGenres() *Response {
	var out GenresResponse
	for _, g := range rhythm.Genres() {
		p := g.Pattern()
		out.Genres = append(out.Genres, GenreInfo{
			Name:          g.String(),
			DefaultBPM:    p.DefaultBPM,
			TimeSignature: p.TimeSignature,
			Description:   p.Description,
			Default:       g == rhythm.DefaultGenre,
		})
	}
	resp, _ := NewSuccessResponse(out)
	return resp
}

func (s *Server) sendResponse(c *client, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return c.writeLine(data)
}

func (s *Server) handleSubscribeStatus(c *client) *Response {
	s.statusSubsMu.Lock()
	s.statusSubs[c.conn] = c
	count := len(s.statusSubs)
	s.statusSubsMu.Unlock()

	log.Printf("[IPC] Client subscribed to status (total: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": true})
	return resp
}

func (s *Server) handleUnsubscribeStatus(c *client) *Response {
	s.statusSubsMu.Lock()
	delete(s.statusSubs, c.conn)
	count := len(s.statusSubs)
	s.statusSubsMu.Unlock()

	log.Printf("[IPC] Client unsubscribed from status (total: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": false})
	return resp
}

func (s *Server) handleSubscribeSpectrum(c *client) *Response {
	s.spectrumSubsMu.Lock()
	s.spectrumSubs[c.conn] = c
	count := len(s.spectrumSubs)
	s.spectrumSubsMu.Unlock()

	log.Printf("[IPC] Client subscribed to spectrum (total: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": true})
	return resp
}

func (s *Server) handleUnsubscribeSpectrum(c *client) *Response {
	s.spectrumSubsMu.Lock()
	delete(s.spectrumSubs, c.conn)
	count := len(s.spectrumSubs)
	s.spectrumSubsMu.Unlock()

	log.Printf("[IPC] Client unsubscribed from spectrum (total: %d)", count)

	resp, _ := NewSuccessResponse(map[string]bool{"subscribed": false})
	return resp
}

func (s *Server) hasSpectrumSubs() bool {
	s.spectrumSubsMu.RLock()
	defer s.spectrumSubsMu.RUnlock()
	return len(s.spectrumSubs) > 0
}

// pushLoop forwards queued engine events to subscribers
func (s *Server) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-s.statusCh:
			s.pushStatus(st)
		case frame := <-s.spectrumCh:
			s.pushSpectrum(frame)
		}
	}
}

func (s *Server) pushStatus(st types.Status) {
	s.statusSubsMu.RLock()
	if len(s.statusSubs) == 0 {
		s.statusSubsMu.RUnlock()
		return
	}

	// Copy subscriber list to avoid holding lock during I/O
	subs := make([]*client, 0, len(s.statusSubs))
	for _, c := range s.statusSubs {
		subs = append(subs, c)
	}
	s.statusSubsMu.RUnlock()

	msgBytes, err := NewPushMessage(PushStatus, NewStatusResponse(st))
	if err != nil {
		return
	}

	for _, c := range subs {
		if err := c.writeLine(msgBytes); err != nil {
			// Remove failed connection from subscribers
			s.statusSubsMu.Lock()
			delete(s.statusSubs, c.conn)
			s.statusSubsMu.Unlock()
		}
	}
}

func (s *Server) pushSpectrum(frame SpectrumResponse) {
	s.spectrumSubsMu.RLock()
	subs := make([]*client, 0, len(s.spectrumSubs))
	for _, c := range s.spectrumSubs {
		subs = append(subs, c)
	}
	s.spectrumSubsMu.RUnlock()
	if len(subs) == 0 {
		return
	}

	msgBytes, err := NewPushMessage(PushSpectrum, frame)
	if err != nil {
		return
	}

	for _, c := range subs {
		if err := c.writeLine(msgBytes); err != nil {
			s.spectrumSubsMu.Lock()
			delete(s.spectrumSubs, c.conn)
			s.spectrumSubsMu.Unlock()
		}
	}
}

// Package ipc handles inter-process communication between the daemon and clients.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/austinkregel/local-media/rhythmd/internal/kits"
	"github.com/austinkregel/local-media/rhythmd/internal/rhythm"
	"github.com/austinkregel/local-media/rhythmd/internal/types"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdGenerate  CommandType = "generate"
	CmdPlay      CommandType = "play"
	CmdPause     CommandType = "pause"
	CmdStop      CommandType = "stop"
	CmdStatus    CommandType = "status"
	CmdGetConfig CommandType = "getConfig"
	CmdSetConfig CommandType = "setConfig"
	CmdKits      CommandType = "kits"
	CmdGenres    CommandType = "genres"

	// Status and level meter streaming
	CmdSubscribeStatus     CommandType = "subscribeStatus"
	CmdUnsubscribeStatus   CommandType = "unsubscribeStatus"
	CmdSubscribeSpectrum   CommandType = "subscribeSpectrum"
	CmdUnsubscribeSpectrum CommandType = "unsubscribeSpectrum"
)

// Push message types
const (
	PushStatus   = "status"   // StatusResponse
	PushSpectrum = "spectrum" // SpectrumResponse
)

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// GenerateRequest is the data for a generate command. The vocal is either read
// from Path on the daemon's filesystem or sent inline in Audio.
type GenerateRequest struct {
	Path     string `json:"path,omitempty"`
	Audio    []byte `json:"audio,omitempty"` // base64 in JSON
	MIMEType string `json:"mimeType,omitempty"`
	Genre    string `json:"genre"`
}

// GenerateResponse acknowledges a generation; progress arrives as status pushes
type GenerateResponse struct {
	Accepted bool   `json:"accepted"`
	Genre    string `json:"genre"` // resolved catalog genre
}

// StopResponse is the response to a stop command
type StopResponse struct {
	RecordingPath string `json:"recordingPath,omitempty"`
}

// StatusResponse is the response to a status command and the payload of status pushes
type StatusResponse struct {
	Phase         string `json:"phase"`
	Message       string `json:"message"`
	Progress      int    `json:"progress"`
	Ready         bool   `json:"ready"`
	Genre         string `json:"genre,omitempty"`
	BPM           int    `json:"bpm,omitempty"`
	DetectedBPM   int    `json:"detectedBpm,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	Position      int64  `json:"position"` // milliseconds
	RecordingPath string `json:"recordingPath,omitempty"`
	MIDIPath      string `json:"midiPath,omitempty"`
	Error         string `json:"error,omitempty"`
}

// NewStatusResponse converts an engine status snapshot
func NewStatusResponse(st types.Status) StatusResponse {
	return StatusResponse{
		Phase:         st.Phase.String(),
		Message:       st.Message,
		Progress:      st.Progress,
		Ready:         st.Ready,
		Genre:         st.Genre,
		BPM:           st.BPM,
		DetectedBPM:   st.DetectedBPM,
		SessionID:     st.SessionID,
		Position:      st.PositionMs,
		RecordingPath: st.RecordingPath,
		MIDIPath:      st.MIDIPath,
		Error:         st.Error,
	}
}

// SpectrumResponse carries mix band levels for visualization
type SpectrumResponse struct {
	Bands     []int `json:"bands"`     // 0-255 per band, low to high
	Position  int64 `json:"position"`  // playback position in ms
	Timestamp int64 `json:"timestamp"` // server time in ms, for latency compensation
}

// ConfigRequest is the data for a setConfig command
type ConfigRequest struct {
	AssetRoot      *string        `json:"assetRoot,omitempty"`
	OutputDir      *string        `json:"outputDir,omitempty"`
	SampleRate     *int           `json:"sampleRate,omitempty"`
	BufferSizeMs   *int           `json:"bufferSizeMs,omitempty"`
	DefaultVolume  *float64       `json:"defaultVolume,omitempty"`
	Progression    *string        `json:"progression,omitempty"`
	ExportMIDI     *bool          `json:"exportMidi,omitempty"`
	StopAtVocalEnd *bool          `json:"stopAtVocalEnd,omitempty"`
	Seed           *uint64        `json:"seed,omitempty"`
	Tuning         *rhythm.Tuning `json:"tuning,omitempty"`
}

// ConfigResponse is the response to a getConfig command
type ConfigResponse struct {
	ConfigPath     string        `json:"configPath"`
	AssetRoot      string        `json:"assetRoot"`
	OutputDir      string        `json:"outputDir"`
	SampleRate     int           `json:"sampleRate"`
	BufferSizeMs   int           `json:"bufferSizeMs"`
	DefaultVolume  float64       `json:"defaultVolume"`
	Progression    string        `json:"progression"`
	ExportMIDI     bool          `json:"exportMidi"`
	StopAtVocalEnd bool          `json:"stopAtVocalEnd"`
	Seed           uint64        `json:"seed"`
	Tuning         rhythm.Tuning `json:"tuning"`
}

// KitInfo describes one kit folder
type KitInfo struct {
	Genre    string   `json:"genre"`
	Dir      string   `json:"dir"`
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing,omitempty"`
}

// KitsResponse is the response to a kits command
type KitsResponse struct {
	Root       string    `json:"root"`
	Kits       []KitInfo `json:"kits"`
	ScanTimeMs int64     `json:"scanTimeMs"`
	Error      string    `json:"error,omitempty"`
}

// NewKitsResponse converts a kit scan
func NewKitsResponse(r kits.ScanResult) KitsResponse {
	resp := KitsResponse{
		Root:       r.Root,
		Kits:       make([]KitInfo, 0, len(r.Kits)),
		ScanTimeMs: r.ScanTimeMs,
		Error:      r.Error,
	}
	for _, k := range r.Kits {
		resp.Kits = append(resp.Kits, KitInfo{
			Genre:    k.Genre,
			Dir:      k.Dir,
			Complete: k.Complete,
			Missing:  k.Missing,
		})
	}
	return resp
}

// GenreInfo describes one catalog entry
type GenreInfo struct {
	Name          string `json:"name"`
	DefaultBPM    int    `json:"defaultBpm"`
	TimeSignature string `json:"timeSignature"`
	Description   string `json:"description"`
	Default       bool   `json:"default,omitempty"`
}

// GenresResponse is the response to a genres command
type GenresResponse struct {
	Genres []GenreInfo `json:"genres"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}

// Package types provides shared type definitions used across the rhythmd daemon.
package types

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// VocalFile is an uploaded vocal take: raw bytes plus a MIME type hint
type VocalFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// LoadVocalFile reads a vocal take from disk
func LoadVocalFile(path string) (VocalFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VocalFile{}, fmt.Errorf("failed to read vocal file: %w", err)
	}
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mt == "" {
		mt = "application/octet-stream"
	}
	return VocalFile{Name: path, MIMEType: mt, Data: data}, nil
}

// Phase is the arrangement engine state
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAnalyzing
	PhasePatterning
	PhaseInstantiating
	PhaseArranging
	PhaseReadyToPlay
	PhasePlaying
	PhasePaused
	PhaseStopped
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseAnalyzing:
		return "analyzing"
	case PhasePatterning:
		return "patterning"
	case PhaseInstantiating:
		return "instantiating"
	case PhaseArranging:
		return "arranging"
	case PhaseReadyToPlay:
		return "ready"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// ParsePhase parses a string into a Phase
func ParsePhase(s string) Phase {
	for p := PhaseIdle; p <= PhaseStopped; p++ {
		if p.String() == s {
			return p
		}
	}
	return PhaseIdle
}

// Playable reports whether transport controls apply in this phase
func (p Phase) Playable() bool {
	switch p {
	case PhaseReadyToPlay, PhasePlaying, PhasePaused, PhaseStopped:
		return true
	}
	return false
}

// MarshalText encodes the phase as its name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name
func (p *Phase) UnmarshalText(b []byte) error {
	*p = ParsePhase(string(b))
	return nil
}

// Status is a snapshot of the engine for progress bars and clients
type Status struct {
	Phase         Phase  `json:"phase"`
	Message       string `json:"message"`
	Progress      int    `json:"progress"` // 0-100
	Ready         bool   `json:"ready"`
	Genre         string `json:"genre,omitempty"`
	BPM           int    `json:"bpm,omitempty"`
	DetectedBPM   int    `json:"detectedBpm,omitempty"` // 0 when the genre default was used
	SessionID     string `json:"sessionId,omitempty"`
	PositionMs    int64  `json:"positionMs"`
	RecordingPath string `json:"recordingPath,omitempty"`
	MIDIPath      string `json:"midiPath,omitempty"`
	Error         string `json:"error,omitempty"`
}

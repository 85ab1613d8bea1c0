// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/austinkregel/local-media/rhythmd/internal/analysis"
	"github.com/austinkregel/local-media/rhythmd/internal/rhythm"
)

// Config represents the daemon configuration
type Config struct {
	// AssetRoot holds the {genre}_kit sample folders (default: <configDir>/kits)
	AssetRoot string `json:"assetRoot"`

	// OutputDir is where recordings and MIDI exports go (default: <configDir>/recordings)
	OutputDir string `json:"outputDir"`

	// Audio settings
	Audio AudioConfig `json:"audio"`

	// Generation settings
	Generation GenerationConfig `json:"generation"`

	// Behavior settings
	Behavior BehaviorConfig `json:"behavior"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	// SampleRate for rendering and output (default: 44100)
	SampleRate int `json:"sampleRate"`

	// BufferSize in milliseconds (default: 100)
	BufferSizeMs int `json:"bufferSizeMs"`

	// Volume level 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `json:"defaultVolume"`

	// BlockFrames is the render block size (default: 512)
	BlockFrames int `json:"blockFrames"`
}

// GenerationConfig contains the arrangement pipeline settings
type GenerationConfig struct {
	// Tuning holds the expander and adapter probabilities
	Tuning rhythm.Tuning `json:"tuning"`

	// Tempo tunes the onset detector
	Tempo analysis.TempoOptions `json:"tempo"`

	// DecodeTimeoutSec bounds vocal decoding (default: 30)
	DecodeTimeoutSec int `json:"decodeTimeoutSec"`

	// AssetTimeoutSec bounds kit loading (default: 30)
	AssetTimeoutSec int `json:"assetTimeoutSec"`

	// Progression names the bass and pad progression (default: "C")
	Progression string `json:"progression"`

	// ExportMIDI writes a .mid file next to every generated arrangement
	ExportMIDI bool `json:"exportMidi"`

	// Seed fixes pattern randomness; 0 draws a fresh seed per generation
	Seed uint64 `json:"seed"`
}

// DecodeTimeout returns the vocal decode deadline
func (g GenerationConfig) DecodeTimeout() time.Duration {
	return time.Duration(g.DecodeTimeoutSec) * time.Second
}

// AssetTimeout returns the kit loading deadline
func (g GenerationConfig) AssetTimeout() time.Duration {
	return time.Duration(g.AssetTimeoutSec) * time.Second
}

// BehaviorConfig contains behavior-related settings
type BehaviorConfig struct {
	// StopAtVocalEnd stops playback once the vocal and its final bar have played
	StopAtVocalEnd bool `json:"stopAtVocalEnd"`

	// MediaKeys registers an OS media session (MPRIS on Linux)
	MediaKeys bool `json:"mediaKeys"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    44100,
			BufferSizeMs:  100,
			DefaultVolume: 1.0,
			BlockFrames:   512,
		},
		Generation: GenerationConfig{
			Tuning:           rhythm.DefaultTuning(),
			Tempo:            analysis.DefaultTempoOptions(),
			DecodeTimeoutSec: 30,
			AssetTimeoutSec:  30,
			Progression:      "C",
			ExportMIDI:       true,
		},
		Behavior: BehaviorConfig{
			StopAtVocalEnd: true,
			MediaKeys:      true,
		},
	}
}

// Validate checks values the engine cannot run with
func (c *Config) Validate() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("sampleRate %d out of range", c.Audio.SampleRate)
	}
	if c.Audio.BlockFrames <= 0 {
		return fmt.Errorf("blockFrames must be positive")
	}
	if c.Audio.DefaultVolume < 0 || c.Audio.DefaultVolume > 1 {
		return fmt.Errorf("defaultVolume must be within 0-1")
	}
	if c.Generation.Tempo.WindowSeconds <= 0 || c.Generation.Tempo.ThresholdFactor <= 0 {
		return fmt.Errorf("tempo window and threshold must be positive")
	}
	if c.Generation.DecodeTimeoutSec <= 0 || c.Generation.AssetTimeoutSec <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	out := *c
	return &out
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.RWMutex
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	m := &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
	m.applyDirDefaults(m.config)
	return m
}

// applyDirDefaults fills empty directories relative to the config dir
func (m *Manager) applyDirDefaults(c *Config) {
	if c.AssetRoot == "" {
		c.AssetRoot = filepath.Join(m.configDir, "kits")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(m.configDir, "recordings")
	}
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Ensure config directory exists
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Check if config file exists
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		m.applyDirDefaults(m.config)
		return m.saveLocked()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	m.applyDirDefaults(config)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Clone()
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update validates and saves a new configuration
func (m *Manager) Update(config *Config) error {
	m.applyDirDefaults(config)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config.Clone()
	return m.saveLocked()
}

// SetAssetRoot updates the kit directory
func (m *Manager) SetAssetRoot(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.AssetRoot = path
	return m.saveLocked()
}

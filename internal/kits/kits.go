// Package kits finds and loads the per-genre percussion sample folders.
// A kit lives at {root}/{genre}_kit/ and holds one file per slot, named
// kick, snare and hihat with any supported audio extension.
package kits

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
)

// ErrKitMissing is returned when a kit folder or one of its slot samples is absent or unreadable
var ErrKitMissing = errors.New("sample kit missing")

// Slot is a percussion sample position in a kit
type Slot string

const (
	SlotKick  Slot = "kick"
	SlotSnare Slot = "snare"
	SlotHiHat Slot = "hihat"
)

// Slots lists every slot a complete kit provides
var Slots = []Slot{SlotKick, SlotSnare, SlotHiHat}

// extensions in lookup order; the first match for a slot wins
var extensions = []string{".wav", ".mp3", ".flac", ".ogg", ".m4a", ".aac", ".opus"}

// SupportedExtensions are the sample file extensions we recognize
var SupportedExtensions = func() map[string]bool {
	m := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		m[e] = true
	}
	return m
}()

// Kit is a loaded sample set, every buffer at the same sample rate
type Kit struct {
	Genre   string
	Dir     string
	Samples map[Slot]*audio.Buffer
}

// Sample returns one slot's buffer
func (k *Kit) Sample(s Slot) *audio.Buffer {
	return k.Samples[s]
}

// Loader loads the kit for a genre, resampled to sampleRate
type Loader interface {
	Load(ctx context.Context, genre string, sampleRate int) (*Kit, error)
}

// Dir returns the kit folder for a genre
func Dir(root, genre string) string {
	return filepath.Join(root, strings.ToLower(genre)+"_kit")
}

// DirLoader loads kits from folders under Root
type DirLoader struct {
	Root    string
	Decoder *audio.Decoder
}

// NewDirLoader creates a loader rooted at root
func NewDirLoader(root string, dec *audio.Decoder) *DirLoader {
	return &DirLoader{Root: root, Decoder: dec}
}

// Load decodes the three slot samples of a genre's kit concurrently
func (l *DirLoader) Load(ctx context.Context, genre string, sampleRate int) (*Kit, error) {
	dir := Dir(l.Root, genre)
	files, err := findSlots(dir)
	if err != nil {
		return nil, err
	}

	kit := &Kit{Genre: genre, Dir: dir, Samples: make(map[Slot]*audio.Buffer, len(Slots))}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	for _, slot := range Slots {
		wg.Add(1)
		go func(slot Slot, path string) {
			defer wg.Done()
			buf, err := l.Decoder.DecodeFile(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					if ctx.Err() != nil {
						firstErr = ctx.Err()
					} else {
						firstErr = fmt.Errorf("%w: %s: %w", ErrKitMissing, path, err)
					}
				}
				return
			}
			kit.Samples[slot] = buf.Resample(sampleRate)
		}(slot, files[slot])
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	log.Printf("[KITS] Loaded %s kit from %s", genre, dir)
	return kit, nil
}

// findSlots maps every slot to a file in dir, matching names case-insensitively
func findSlots(dir string) (map[Slot]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKitMissing, dir, err)
	}

	byName := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		byName[strings.ToLower(e.Name())] = e.Name()
	}

	files := make(map[Slot]string, len(Slots))
	var missing []string
	for _, slot := range Slots {
		found := false
		for _, ext := range extensions {
			if name, ok := byName[string(slot)+ext]; ok {
				files[slot] = filepath.Join(dir, name)
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, string(slot))
		}
	}
	if len(missing) > 0 {
		return files, fmt.Errorf("%w: %s has no %s sample", ErrKitMissing, dir, strings.Join(missing, ", "))
	}
	return files, nil
}

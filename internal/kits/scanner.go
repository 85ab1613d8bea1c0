package kits

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// KitInfo describes one kit folder found on disk
type KitInfo struct {
	Genre    string            `json:"genre"`
	Dir      string            `json:"dir"`
	Complete bool              `json:"complete"`
	Missing  []string          `json:"missing,omitempty"`
	Files    map[string]string `json:"files,omitempty"` // slot -> path
}

// ScanResult is the result of scanning an asset root
type ScanResult struct {
	Root       string    `json:"root"`
	Kits       []KitInfo `json:"kits"`
	ScanTimeMs int64     `json:"scanTimeMs"`
	Error      string    `json:"error,omitempty"`
}

// Find returns the kit for a genre, if the scan saw one
func (r ScanResult) Find(genre string) (KitInfo, bool) {
	for _, k := range r.Kits {
		if strings.EqualFold(k.Genre, genre) {
			return k, true
		}
	}
	return KitInfo{}, false
}

// Scan lists the {genre}_kit folders under root and checks each for all slots
func Scan(ctx context.Context, root string) ScanResult {
	start := time.Now()
	result := ScanResult{Root: root, Kits: []KitInfo{}}

	info, err := os.Stat(root)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !info.IsDir() {
		result.Error = "path is not a directory"
		return result
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			result.Error = ctx.Err().Error()
			break
		}

		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(strings.ToLower(name), "_kit") {
			continue
		}

		genre := strings.TrimSuffix(strings.ToLower(name), "_kit")
		dir := filepath.Join(root, name)
		kit := KitInfo{Genre: genre, Dir: dir, Files: make(map[string]string)}

		files, _ := findSlots(dir)
		for slot, path := range files {
			kit.Files[string(slot)] = path
		}
		for _, slot := range Slots {
			if _, ok := files[slot]; !ok {
				kit.Missing = append(kit.Missing, string(slot))
			}
		}
		kit.Complete = len(kit.Missing) == 0
		result.Kits = append(result.Kits, kit)
	}

	sort.Slice(result.Kits, func(i, j int) bool {
		return result.Kits[i].Genre < result.Kits[j].Genre
	})
	result.ScanTimeMs = time.Since(start).Milliseconds()

	log.Printf("[KITS] Discovered %d kits in %s", len(result.Kits), root)
	return result
}

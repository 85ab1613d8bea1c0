package kits

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/austinkregel/local-media/rhythmd/internal/audio"
)

func TestLoadKit(t *testing.T) {
	root := t.TempDir()
	if _, err := WriteKit(root, "makossa", 22050); err != nil {
		t.Fatalf("WriteKit failed: %v", err)
	}

	l := NewDirLoader(root, audio.NewDecoder(44100))
	kit, err := l.Load(context.Background(), "makossa", 44100)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, slot := range Slots {
		buf := kit.Sample(slot)
		if buf == nil {
			t.Fatalf("Missing %s sample", slot)
		}
		if buf.SampleRate != 44100 {
			t.Errorf("%s: expected resample to 44100, got %d", slot, buf.SampleRate)
		}
		if buf.Len() == 0 {
			t.Errorf("%s: empty sample", slot)
		}
	}
}

func TestLoadMissingKit(t *testing.T) {
	root := t.TempDir()
	l := NewDirLoader(root, audio.NewDecoder(44100))

	_, err := l.Load(context.Background(), "bikutsi", 44100)
	if !errors.Is(err, ErrKitMissing) {
		t.Fatalf("Expected ErrKitMissing, got %v", err)
	}
}

func TestLoadMissingSlot(t *testing.T) {
	root := t.TempDir()
	dir, err := WriteKit(root, "mbole", 8000)
	if err != nil {
		t.Fatalf("WriteKit failed: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "hihat.wav")); err != nil {
		t.Fatal(err)
	}

	_, err = NewDirLoader(root, audio.NewDecoder(8000)).Load(context.Background(), "mbole", 8000)
	if !errors.Is(err, ErrKitMissing) {
		t.Fatalf("Expected ErrKitMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "hihat") {
		t.Errorf("Expected error to name the hihat slot, got %v", err)
	}
}

func TestLoadCorruptSlot(t *testing.T) {
	root := t.TempDir()
	dir, err := WriteKit(root, "afrobeats", 8000)
	if err != nil {
		t.Fatalf("WriteKit failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "snare.wav"), []byte("RIFF\x00\x00\x00\x00WAVEbad!"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = NewDirLoader(root, audio.NewDecoder(8000)).Load(context.Background(), "afrobeats", 8000)
	if !errors.Is(err, ErrKitMissing) || !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("Expected ErrKitMissing wrapping ErrDecode, got %v", err)
	}
}

func TestSlotLookupIsCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	dir := Dir(root, "makossa")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Kick.WAV", "snare.mp3", "HiHat.flac"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := findSlots(dir)
	if err != nil {
		t.Fatalf("findSlots failed: %v", err)
	}
	if filepath.Base(files[SlotKick]) != "Kick.WAV" {
		t.Errorf("Expected Kick.WAV, got %s", files[SlotKick])
	}
	if filepath.Base(files[SlotHiHat]) != "HiHat.flac" {
		t.Errorf("Expected HiHat.flac, got %s", files[SlotHiHat])
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	if _, err := WriteKit(root, "makossa", 8000); err != nil {
		t.Fatal(err)
	}
	dir, err := WriteKit(root, "bikutsi", 8000)
	if err != nil {
		t.Fatal(err)
	}
	os.Remove(filepath.Join(dir, "kick.wav"))
	os.MkdirAll(filepath.Join(root, "not_a_kit_folder"), 0755)
	os.MkdirAll(filepath.Join(root, ".hidden_kit"), 0755)

	result := Scan(context.Background(), root)
	if result.Error != "" {
		t.Fatalf("Scan error: %s", result.Error)
	}
	if len(result.Kits) != 2 {
		t.Fatalf("Expected 2 kits, got %d: %+v", len(result.Kits), result.Kits)
	}
	if result.Kits[0].Genre != "bikutsi" || result.Kits[1].Genre != "makossa" {
		t.Errorf("Expected kits sorted [bikutsi makossa], got %s, %s", result.Kits[0].Genre, result.Kits[1].Genre)
	}

	bik, ok := result.Find("BIKUTSI")
	if !ok {
		t.Fatal("Expected to find bikutsi")
	}
	if bik.Complete || len(bik.Missing) != 1 || bik.Missing[0] != "kick" {
		t.Errorf("Expected bikutsi incomplete missing kick, got %+v", bik)
	}
	mak, _ := result.Find("makossa")
	if !mak.Complete {
		t.Errorf("Expected makossa complete, got %+v", mak)
	}
}

func TestScanMissingRoot(t *testing.T) {
	result := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if result.Error == "" {
		t.Error("Expected an error for a missing root")
	}
}

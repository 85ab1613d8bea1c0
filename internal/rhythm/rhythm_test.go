package rhythm

import (
	"testing"
)

func TestLookupKnownGenres(t *testing.T) {
	tests := []struct {
		name     string
		genre    Genre
		bpm      int
		meter    string
		seedSize int
	}{
		{"bikutsi", GenreBikutsi, 160, "6/8", 24},
		{"Makossa", GenreMakossa, 130, "4/4", 32},
		{"  MBOLE ", GenreMbole, 120, "12/8", 24},
		{"afrobeats", GenreAfrobeats, 116, "4/4", 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Lookup(tt.name)
			if p.Genre != tt.genre {
				t.Errorf("Expected genre %s, got %s", tt.genre, p.Genre)
			}
			if p.DefaultBPM != tt.bpm {
				t.Errorf("Expected %d BPM, got %d", tt.bpm, p.DefaultBPM)
			}
			if p.TimeSignature != tt.meter {
				t.Errorf("Expected meter %s, got %s", tt.meter, p.TimeSignature)
			}
			for _, ch := range [][]Hit{p.Kick, p.Snare, p.HiHat} {
				if len(ch) != tt.seedSize {
					t.Errorf("Expected seed length %d, got %d", tt.seedSize, len(ch))
				}
			}
			if p.Description == "" {
				t.Error("Expected a description")
			}
		})
	}
}

func TestLookupFallback(t *testing.T) {
	for _, name := range []string{"", "zouk", "hip hop", "makossa2"} {
		p := Lookup(name)
		if p.Genre != DefaultGenre {
			t.Errorf("Lookup(%q): expected default genre, got %s", name, p.Genre)
		}
		if p.DefaultBPM != 116 {
			t.Errorf("Lookup(%q): expected 116 BPM, got %d", name, p.DefaultBPM)
		}
		if _, ok := ParseGenre(name); ok {
			t.Errorf("ParseGenre(%q) reported a match", name)
		}
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	p := Lookup("makossa")
	p.Kick[0] = Rest
	p.HiHat = nil

	again := Lookup("makossa")
	if again.Kick[0] != Kick {
		t.Error("Catalog kick was mutated through a returned pattern")
	}
	if len(again.HiHat) != 32 {
		t.Errorf("Expected 32 hi-hat steps, got %d", len(again.HiHat))
	}
}

func TestCatalogHitsMatchChannel(t *testing.T) {
	for _, g := range Genres() {
		p := g.Pattern()
		check := func(name string, ch []Hit, want Hit) {
			for i, h := range ch {
				if h != Rest && h != want {
					t.Errorf("%s %s step %d: expected %s or rest, got %s", g, name, i, want, h)
				}
			}
		}
		check("kick", p.Kick, Kick)
		check("snare", p.Snare, Snare)
		check("hihat", p.HiHat, HiHat)
	}
}

func TestAfrobeatsKickPositions(t *testing.T) {
	p := Lookup("afrobeats")
	want := []int{0, 6, 10, 16, 22, 26, 29}
	var got []int
	for i, h := range p.Kick {
		if h == Kick {
			got = append(got, i)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("Expected kicks at %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected kicks at %v, got %v", want, got)
			break
		}
	}
}

func seedOf(n int) []Hit {
	seed := make([]Hit, n)
	for i := range seed {
		if i%3 == 0 {
			seed[i] = Kick
		}
	}
	return seed
}

func TestExpandLength(t *testing.T) {
	for _, n := range []int{1, 5, 12, 24, 32, 64, 100} {
		for s := uint64(1); s <= 20; s++ {
			out := Expand(seedOf(n), SequenceLength, DefaultTuning(), NewRand(s))
			if len(out) != SequenceLength {
				t.Fatalf("seed length %d: expected %d steps, got %d", n, SequenceLength, len(out))
			}
		}
	}
}

func TestExpandEvenTilesVerbatim(t *testing.T) {
	seed := seedOf(12)
	for s := uint64(1); s <= 50; s++ {
		out := Expand(seed, SequenceLength, DefaultTuning(), NewRand(s))
		for tile := 0; tile*12 < SequenceLength; tile += 2 {
			for j := 0; j < 12 && tile*12+j < SequenceLength; j++ {
				if out[tile*12+j] != seed[j] {
					t.Fatalf("seed %d tile %d step %d: expected %s, got %s", s, tile, j, seed[j], out[tile*12+j])
				}
			}
		}
	}
}

func TestExpandOnlyBorrowsFromSeed(t *testing.T) {
	p := Lookup("bikutsi")
	for s := uint64(1); s <= 50; s++ {
		out := Expand(p.Snare, SequenceLength, DefaultTuning(), NewRand(s))
		for i, h := range out {
			if h != Rest && h != Snare {
				t.Fatalf("seed %d step %d: unexpected hit %s", s, i, h)
			}
		}
	}
}

func TestExpandWithoutVariation(t *testing.T) {
	tuning := DefaultTuning()
	tuning.VariationChance = 1.0 // a draw in [0,1) never exceeds it

	seed := Lookup("makossa").Kick
	out := Expand(seed, SequenceLength, tuning, NewRand(7))
	for i, h := range out {
		if h != seed[i%len(seed)] {
			t.Fatalf("step %d: expected %s, got %s", i, seed[i%len(seed)], h)
		}
	}
}

func TestExpandEmptySeed(t *testing.T) {
	out := Expand(nil, SequenceLength, DefaultTuning(), NewRand(1))
	if len(out) != SequenceLength {
		t.Fatalf("Expected %d steps, got %d", SequenceLength, len(out))
	}
	for i, h := range out {
		if h != Rest {
			t.Errorf("step %d: expected rest, got %s", i, h)
		}
	}
}

func TestExpandIsReproducibleWithSeed(t *testing.T) {
	p := Lookup("mbole")
	a := ExpandPattern(p, DefaultTuning(), NewRand(42))
	b := ExpandPattern(p, DefaultTuning(), NewRand(42))
	for i := 0; i < SequenceLength; i++ {
		if a.Kick[i] != b.Kick[i] || a.Snare[i] != b.Snare[i] || a.HiHat[i] != b.HiHat[i] {
			t.Fatalf("step %d differs between identically seeded expansions", i)
		}
	}
}

func TestAdaptSafety(t *testing.T) {
	profiles := map[string][]float64{
		"silent": make([]float64, 16),
		"loud":   {1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		"ramp":   {0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 0.9, 0.5, 0.2, 0.05, 0},
	}

	for name, profile := range profiles {
		t.Run(name, func(t *testing.T) {
			for _, g := range Genres() {
				for s := uint64(1); s <= 20; s++ {
					rng := NewRand(s)
					expanded := ExpandPattern(g.Pattern(), DefaultTuning(), rng)
					adapted := Adapt(expanded, profile, DefaultTuning(), rng)

					if adapted.Len() != SequenceLength {
						t.Fatalf("Expected %d steps, got %d", SequenceLength, adapted.Len())
					}
					for i := 0; i < SequenceLength; i++ {
						if adapted.Kick[i] != Rest && expanded.Kick[i] == Rest {
							t.Errorf("%s step %d: kick added", g, i)
						}
						if expanded.Snare[i] != Rest && adapted.Snare[i] == Rest {
							t.Errorf("%s step %d: snare removed", g, i)
						}
						if adapted.HiHat[i] != expanded.HiHat[i] {
							t.Errorf("%s step %d: hi-hat changed", g, i)
						}
					}
					if adapted.Count(Kick) > expanded.Count(Kick) {
						t.Errorf("%s: adapted kicks %d exceed expanded %d", g, adapted.Count(Kick), expanded.Count(Kick))
					}
				}
			}
		})
	}
}

func TestAdaptShortProfile(t *testing.T) {
	expanded := ExpandPattern(Lookup("makossa"), DefaultTuning(), NewRand(11))
	zeros := make([]float64, 16)

	tests := []struct {
		name    string
		profile []float64
	}{
		{"nil", nil},
		{"four segments", zeros[:4]},
	}

	want := Adapt(expanded, zeros, DefaultTuning(), NewRand(5))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Adapt(expanded, tt.profile, DefaultTuning(), NewRand(5))
			for i := 0; i < SequenceLength; i++ {
				if got.Kick[i] != want.Kick[i] || got.Snare[i] != want.Snare[i] {
					t.Fatalf("step %d: expected missing segments to read as silence", i)
				}
			}
			if got.Count(Snare) != expanded.Count(Snare) {
				t.Errorf("Expected no snare fills on silence, got %d snares from %d", got.Count(Snare), expanded.Count(Snare))
			}
		})
	}
}

func TestAdaptSegments(t *testing.T) {
	tuning := DefaultTuning()
	tuning.KickThinChance = -1  // every eligible kick is thinned
	tuning.SnareFillChance = -1 // every eligible rest gets a snare

	full := make([]Hit, SequenceLength)
	empty := make([]Hit, SequenceLength)
	for i := range full {
		full[i] = Kick
	}
	expanded := Sequence{Kick: full, Snare: empty, HiHat: empty}

	profile := make([]float64, 16)
	for i := range profile {
		profile[i] = 0.5
	}
	profile[0] = 0.1  // steps 0-3 thin
	profile[15] = 0.9 // steps 60-63 fill

	adapted := Adapt(expanded, profile, tuning, NewRand(3))
	for i := 0; i < SequenceLength; i++ {
		wantKick := Kick
		if i < 4 {
			wantKick = Rest
		}
		if adapted.Kick[i] != wantKick {
			t.Errorf("step %d: expected kick %s, got %s", i, wantKick, adapted.Kick[i])
		}
		wantSnare := Rest
		if i >= 60 {
			wantSnare = Snare
		}
		if adapted.Snare[i] != wantSnare {
			t.Errorf("step %d: expected snare %s, got %s", i, wantSnare, adapted.Snare[i])
		}
	}
	if expanded.Kick[0] != Kick {
		t.Error("Adapt mutated its input")
	}
}

func TestLookupProgression(t *testing.T) {
	tests := []struct {
		name  string
		first string
		bass  []string
	}{
		{"C", "C3", []string{"C2", "C2", "F2", "F2"}},
		{"C_Major", "C3", []string{"C2", "C2", "F2", "F2"}},
		{"g", "G3", []string{"G2", "G2", "C2", "C2"}},
		{"unknown", "C3", []string{"C2", "C2", "F2", "F2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := LookupProgression(tt.name)
			if len(p.Chords) != 2 {
				t.Fatalf("Expected 2 chords, got %d", len(p.Chords))
			}
			if p.Chords[0].Notes[0] != tt.first {
				t.Errorf("Expected first chord root %s, got %s", tt.first, p.Chords[0].Notes[0])
			}
			if p.Chords[1].Bar != 2 {
				t.Errorf("Expected second chord at bar 2, got %d", p.Chords[1].Bar)
			}
			for i, n := range tt.bass {
				if p.Bass[i].Note != n || p.Bass[i].Bar != i {
					t.Errorf("bass %d: expected %s at bar %d, got %s at bar %d", i, n, i, p.Bass[i].Note, p.Bass[i].Bar)
				}
			}
		})
	}
}

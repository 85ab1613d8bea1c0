package rhythm

import "strings"

const (
	// BassLengthSteps is an eighth note
	BassLengthSteps = 2
	// ChordLengthSteps is two bars
	ChordLengthSteps = 2 * StepsPerBar
	// PartLoopSteps is the loop length of the bass and pad parts (4 bars)
	PartLoopSteps = 4 * StepsPerBar
	// PartIterations bounds how many times the bass and pad parts repeat
	PartIterations = 32
)

// BassNote is one monophonic bass hit at the start of a bar
type BassNote struct {
	Bar  int    `json:"bar"`
	Note string `json:"note"`
}

// Chord is one pad chord starting at a bar
type Chord struct {
	Bar   int      `json:"bar"`
	Notes []string `json:"notes"`
}

// Progression is the fixed bass line and pad part looped under every genre
type Progression struct {
	Name   string     `json:"name"`
	Bass   []BassNote `json:"bass"`
	Chords []Chord    `json:"chords"`
}

// Step returns the 16th-step offset of a bar within the part loop
func Step(bar int) int {
	return bar * StepsPerBar
}

var progressions = map[string]Progression{
	"C": {
		Name: "C",
		Bass: []BassNote{{0, "C2"}, {1, "C2"}, {2, "F2"}, {3, "F2"}},
		Chords: []Chord{
			{0, []string{"C3", "E3", "G3", "C4"}},
			{2, []string{"F3", "A3", "C4", "F4"}},
		},
	},
	"G": {
		Name: "G",
		Bass: []BassNote{{0, "G2"}, {1, "G2"}, {2, "C2"}, {3, "C2"}},
		Chords: []Chord{
			{0, []string{"G3", "B3", "D4", "G4"}},
			{2, []string{"C3", "E3", "G3", "C4"}},
		},
	},
}

// LookupProgression returns the named progression ("C", "C_Major", "g"...),
// falling back to C major.
func LookupProgression(name string) Progression {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimSuffix(key, "_MAJOR")
	p, ok := progressions[key]
	if !ok {
		p = progressions["C"]
	}
	out := Progression{Name: p.Name, Bass: append([]BassNote(nil), p.Bass...)}
	for _, c := range p.Chords {
		out.Chords = append(out.Chords, Chord{Bar: c.Bar, Notes: append([]string(nil), c.Notes...)})
	}
	return out
}

// Package rhythm holds the genre rhythm catalog and the pattern expander and
// adapter that turn a catalog entry into the 64-step drum sequence a session plays.
package rhythm

import "strings"

// Genre identifies a catalog entry
type Genre int

const (
	GenreAfrobeats Genre = iota
	GenreBikutsi
	GenreMakossa
	GenreMbole
)

// DefaultGenre is returned for any genre string the catalog doesn't know
const DefaultGenre = GenreAfrobeats

// String returns the lowercase catalog key, which is also the kit directory prefix
func (g Genre) String() string {
	switch g {
	case GenreBikutsi:
		return "bikutsi"
	case GenreMakossa:
		return "makossa"
	case GenreMbole:
		return "mbole"
	default:
		return "afrobeats"
	}
}

// ParseGenre resolves a free-text genre name case-insensitively.
// Unknown names resolve to DefaultGenre; ok reports whether the name matched.
func ParseGenre(name string) (g Genre, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bikutsi":
		return GenreBikutsi, true
	case "makossa":
		return GenreMakossa, true
	case "mbole", "mbolé":
		return GenreMbole, true
	case "afrobeats":
		return GenreAfrobeats, true
	default:
		return DefaultGenre, false
	}
}

// Hit is one step of a percussion channel
type Hit uint8

const (
	Rest Hit = iota
	Kick
	Snare
	HiHat
)

// String returns the sampler note the hit was authored against
func (h Hit) String() string {
	switch h {
	case Kick:
		return "C1"
	case Snare:
		return "D1"
	case HiHat:
		return "E1"
	default:
		return "-"
	}
}

// Pattern is a genre template: three short seed channels plus tempo and meter.
// TimeSignature is descriptive only; seed lengths are not tied to it.
type Pattern struct {
	Genre         Genre
	DefaultBPM    int
	TimeSignature string
	Description   string
	Kick          []Hit
	Snare         []Hit
	HiHat         []Hit
}

func (p Pattern) clone() Pattern {
	p.Kick = append([]Hit(nil), p.Kick...)
	p.Snare = append([]Hit(nil), p.Snare...)
	p.HiHat = append([]Hit(nil), p.HiHat...)
	return p
}

// Lookup returns the catalog pattern for a genre name, falling back to the default entry
func Lookup(name string) Pattern {
	g, _ := ParseGenre(name)
	return g.Pattern()
}

// Pattern returns a copy of the catalog entry for g
func (g Genre) Pattern() Pattern {
	p, ok := catalog[g]
	if !ok {
		p = catalog[DefaultGenre]
	}
	return p.clone()
}

// Genres lists the catalog in a stable order
func Genres() []Genre {
	return []Genre{GenreBikutsi, GenreMakossa, GenreMbole, GenreAfrobeats}
}

// steps builds a channel from a compact string: 'x' is a hit, anything else a rest.
// Spaces and bar separators are ignored.
func steps(h Hit, s string) []Hit {
	out := make([]Hit, 0, len(s))
	for _, c := range s {
		switch c {
		case ' ', '|':
			continue
		case 'x':
			out = append(out, h)
		default:
			out = append(out, Rest)
		}
	}
	return out
}

var catalog = map[Genre]Pattern{
	// Fast syncopated 6/8 with polyrhythmic layers, four bars of six
	GenreBikutsi: {
		Genre:         GenreBikutsi,
		DefaultBPM:    160,
		TimeSignature: "6/8",
		Description:   "Fast syncopated 6/8 rhythm with polyrhythmic layers",
		Kick:          steps(Kick, "x..x.. | x....x | x..x.. | ..x..x"),
		Snare:         steps(Snare, "..x..x | .x..x. | ..x..x | .x.x.."),
		HiHat:         steps(HiHat, "x.xx.x | xx.xx. | x.xx.x | xx.xxx"),
	},
	// Kick and snare weight 2 and 4 with a swung hat
	GenreMakossa: {
		Genre:         GenreMakossa,
		DefaultBPM:    130,
		TimeSignature: "4/4",
		Description:   "Groove-heavy 4/4 with African swing and syncopation",
		Kick:          steps(Kick, "x...x... | x..x..x. | x...x... | x.x...x."),
		Snare:         steps(Snare, "....x... | ....x..x | ....x... | ...xx..."),
		HiHat:         steps(HiHat, "x.xx.xx. | xx.x.xx. | x.xx.xx. | xx.xx.xx"),
	},
	// 12/8 call-and-response, two bars of twelve
	GenreMbole: {
		Genre:         GenreMbole,
		DefaultBPM:    120,
		TimeSignature: "12/8",
		Description:   "Traditional 12/8 with call-and-response drum conversation",
		Kick:          steps(Kick, "x..x....x... | x...x...x..."),
		Snare:         steps(Snare, "..x..x.x..x. | .x..x.x..x.."),
		HiHat:         steps(HiHat, "xx.xx.x.xx.x | x.xx.x.xx.xx"),
	},
	GenreAfrobeats: {
		Genre:         GenreAfrobeats,
		DefaultBPM:    116,
		TimeSignature: "4/4",
		Description:   "Modern Afrobeats groove with syncopated hi-hats",
		Kick:          steps(Kick, "x.....x...x..... | x.....x...x..x.."),
		Snare:         steps(Snare, "....x......xx... | ....x....x..x..."),
		HiHat:         steps(HiHat, "x.xx.x.xxx.x.xx. | x.xx.x.xxx.x.xxx"),
	},
}

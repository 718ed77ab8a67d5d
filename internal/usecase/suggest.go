package usecase

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"
)

// Drawing-themed words for suggested names
var nouns = []string{
	"Crayon", "Pencil", "Brush", "Easel", "Canvas", "Palette", "Marker", "Chalk",
	"Pastel", "Charcoal", "Quill", "Sketch", "Doodle", "Stroke", "Smudge", "Splash",
	"Ink", "Eraser", "Ruler", "Stencil", "Roller", "Spray", "Sponge", "Stamp",
	"Otter", "Heron", "Fox", "Owl", "Lynx", "Gecko", "Koala", "Panda",
}

var adjectives = []string{
	"Swift", "Bold", "Quiet", "Brave", "Lucky", "Sunny", "Misty", "Dizzy",
	"Wobbly", "Sparkly", "Inky", "Dotty", "Stripy", "Fuzzy", "Jolly", "Nimble",
	"Curly", "Zesty", "Breezy", "Cosmic", "Neon", "Pastel", "Velvet", "Golden",
}

// NameSuggester proposes free usernames when a requested one is taken
type NameSuggester struct {
	maxAttempts int
}

// NewNameSuggester creates a new NameSuggester
func NewNameSuggester() *NameSuggester {
	return &NameSuggester{maxAttempts: 100}
}

// Suggest returns a name derived from base that taken reports as free and that fits in maxLen runes.
// maxLen <= 0 means no limit.
func (s *NameSuggester) Suggest(base string, maxLen int, taken func(string) bool) string {
	base = strings.TrimSpace(base)
	fits := func(name string) bool {
		return maxLen <= 0 || utf8.RuneCountInString(name) <= maxLen
	}

	// "alice Swift" keeps the requested name recognisable
	if base != "" {
		for i := 0; i < s.maxAttempts/2; i++ {
			name := fmt.Sprintf("%s %s", base, adjectives[rand.Intn(len(adjectives))])
			if fits(name) && !taken(name) {
				return name
			}
		}
	}

	// "Crayon Swift" when base is too long to decorate
	for i := 0; i < s.maxAttempts; i++ {
		name := fmt.Sprintf("%s %s", nouns[rand.Intn(len(nouns))], adjectives[rand.Intn(len(adjectives))])
		if i >= s.maxAttempts/2 {
			name = fmt.Sprintf("%s %d", name, rand.Intn(999))
		}
		if fits(name) && !taken(name) {
			return name
		}
	}
	return ""
}

// Package certid finds certificate identifiers in OCR text and canonicalizes
// them for comparison.
package certid

import (
	"regexp"
	"strings"
)

// confusions repairs glyphs OCR commonly reads in place of digits. It is
// applied blindly: a letter that really is an S or a B becomes a digit too.
// The pattern search below sees the corrected text, so such false corrections
// reach the candidate (CSE turns into C5E).
var confusions = strings.NewReplacer(
	"O", "0", "o", "0",
	"I", "1", "l", "1",
	"S", "5", "B", "8",
)

// Correct uppercases text and applies the confusion table.
func Correct(text string) string {
	return confusions.Replace(strings.ToUpper(text))
}

var (
	// two or three letters, year, department letters, serial; or a FAKE test id
	structuredRE = regexp.MustCompile(`(?i)[A-Z]{2,3}\d{4}[A-Z]{2,4}\d{1,4}|FAKE\d{1,6}`)
	fallbackRE   = regexp.MustCompile(`[A-Z0-9]{6,20}`)
)

// Strategy searches corrected text for an identifier.
type Strategy struct {
	Name string
	Find func(corrected string) (string, bool)
}

func leftmost(re *regexp.Regexp) func(string) (string, bool) {
	return func(s string) (string, bool) {
		m := re.FindString(s)
		return strings.ToUpper(m), m != ""
	}
}

// Strategies are tried in order; the first one that finds a token wins and
// later ones never run.
var Strategies = []Strategy{
	{Name: "structured", Find: leftmost(structuredRE)},
	{Name: "fallback", Find: leftmost(fallbackRE)},
}

// Candidate is an identifier-shaped token and the strategy that found it.
type Candidate struct {
	ID       string
	Strategy string
}

// Find returns the leftmost token of the first strategy that matches the
// corrected text. Empty text or no match reports false.
func Find(text string) (Candidate, bool) {
	if text == "" {
		return Candidate{}, false
	}
	corrected := Correct(text)
	for _, s := range Strategies {
		if id, ok := s.Find(corrected); ok {
			return Candidate{ID: id, Strategy: s.Name}, true
		}
	}
	return Candidate{}, false
}

// Normalize keeps only ASCII letters and digits and uppercases them, so
// hyphens, spaces and case never affect matching. Normalize is idempotent.
func Normalize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			b.WriteByte(c)
		}
	}
	return b.String()
}

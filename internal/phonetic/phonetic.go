// Package phonetic picks the title that best matches a spoken title.
//
// Speech recognisers return what the user said, not how the title is
// spelled: "the god father" for "The Godfather", "amelie" for "Amélie",
// "jurassic parc" for "Jurassic Park". The [Matcher] compares the spoken
// phrase against candidate titles in two stages:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for the content
//     words of the phrase and of each title (plus the words run together).
//     A title sharing at least one code is a phonetic candidate.
//
//  2. Jaro-Winkler ranking: phonetic candidates are ranked by Jaro-Winkler
//     similarity and accepted above the phonetic threshold. If no phonetic
//     candidate qualifies, pure Jaro-Winkler similarity is tried against
//     every title with the stricter fuzzy threshold.
//
// An exact match after normalisation always wins with a score of 1.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultPhoneticThreshold = 0.75
	defaultFuzzyThreshold    = 0.88
)

// stopWords carry no phonetic signal in titles and are ignored unless the
// phrase consists of nothing else.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "in": {}, "on": {}, "to": {},
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching title. Default: 0.75.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a title with no
// phonetic overlap. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Best returns the index in titles of the title that best matches spoken,
// and its score in [0, 1]. ok is false when no title is close enough; idx is
// then -1.
func (m *Matcher) Best(spoken string, titles []string) (idx int, score float64, ok bool) {
	in := tokenize(spoken)
	if len(in) == 0 || len(titles) == 0 {
		return -1, 0, false
	}
	inFull := strings.Join(in, " ")
	inCodes := codesFor(in)

	idx = -1
	var phonetic bool
	for i, title := range titles {
		t := tokenize(title)
		if len(t) == 0 {
			continue
		}
		tFull := strings.Join(t, " ")
		if tFull == inFull {
			return i, 1, true
		}

		s := similarity(in, t, inFull, tFull)
		switch {
		case overlaps(inCodes, codesFor(t)):
			if s >= m.phoneticThreshold && (!phonetic || s > score) {
				idx, score, phonetic = i, s, true
			}
		case !phonetic:
			if s >= m.fuzzyThreshold && s > score {
				idx, score = i, s
			}
		}
	}
	if idx < 0 {
		return -1, 0, false
	}
	return idx, score, true
}

// tokenize lowercases s, strips accents and punctuation, and drops stop
// words unless only stop words remain.
func tokenize(s string) []string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	fields := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	content := fields[:0:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			content = append(content, f)
		}
	}
	if len(content) == 0 {
		return fields
	}
	return content
}

// codesFor returns the Double Metaphone codes of every token and of all
// tokens run together, so "god father" and "godfather" share a code.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2+2)
	add := func(w string) {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	for _, t := range tokens {
		add(t)
	}
	if len(tokens) > 1 {
		add(strings.Join(tokens, ""))
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score of the full phrases and of the
// phrases with spaces removed. Per-word scores are averaged over the longer
// phrase so one shared word does not make two titles look alike.
func similarity(in, title []string, inFull, titleFull string) float64 {
	score := matchr.JaroWinkler(inFull, titleFull, false)

	if len(in) > 1 || len(title) > 1 {
		if s := matchr.JaroWinkler(strings.Join(in, ""), strings.Join(title, ""), false); s > score {
			score = s
		}
	}

	long, short := in, title
	if len(short) > len(long) {
		long, short = short, long
	}
	var sum float64
	for _, a := range long {
		var best float64
		for _, b := range short {
			if s := matchr.JaroWinkler(a, b, false); s > best {
				best = s
			}
		}
		sum += best
	}
	if s := sum / float64(len(long)); s > score {
		score = s
	}
	return score
}

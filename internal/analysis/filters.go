package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bbalet/stopwords"
	"github.com/kljensen/snowball/french"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxTokenRunes drops pathological tokens (base64 blobs, URIs glued
// together) that would bloat the term dictionary.
const maxTokenRunes = 40

// TokenFilter rewrites or drops terms after tokenization.
type TokenFilter interface {
	Filter(terms []string) []string
}

type lowercaseFilter struct{}

func (lowercaseFilter) Filter(terms []string) []string {
	for i, t := range terms {
		terms[i] = strings.ToLower(t)
	}
	return terms
}

// stopwordFilter drops French stop words. The check runs before diacritic
// folding because the stop-word list carries accented forms. Tokens with
// digits (years, article numbers) are never stop words; they bypass the
// check since the list's segmenter only understands letters.
type stopwordFilter struct{}

func (stopwordFilter) Filter(terms []string) []string {
	out := terms[:0]
	for _, t := range terms {
		if hasDigit(t) || strings.TrimSpace(stopwords.CleanString(t, "fr", false)) != "" {
			out = append(out, t)
		}
	}
	return out
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// foldingFilter strips diacritics: NFD decomposition, removal of
// combining marks, NFC recomposition. "sécurité" and "securite" become
// the same term.
type foldingFilter struct{}

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

func (foldingFilter) Filter(terms []string) []string {
	for i, t := range terms {
		folded, _, err := transform.String(foldTransformer, t)
		if err != nil {
			continue // keep the unfolded term rather than drop it
		}
		terms[i] = folded
	}
	return terms
}

type lengthFilter struct {
	max int
}

func (f lengthFilter) Filter(terms []string) []string {
	out := terms[:0]
	for _, t := range terms {
		if utf8.RuneCountInString(t) <= f.max {
			out = append(out, t)
		}
	}
	return out
}

// stemmerFilter reduces terms to their French snowball stem. Off by
// default; enabled with WithStemming.
type stemmerFilter struct{}

func (stemmerFilter) Filter(terms []string) []string {
	for i, t := range terms {
		terms[i] = french.Stem(t, false)
	}
	return terms
}

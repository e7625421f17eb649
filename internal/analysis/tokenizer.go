package analysis

import (
	"strings"
	"unicode"
)

// Tokenizer splits filtered text into raw terms.
type Tokenizer interface {
	Tokenize(text string) []string
}

// standardTokenizer splits on any rune that is neither a letter nor a
// digit. Apostrophes and hyphens are separators, so "l'état" yields two
// terms and "porte-parole" yields two terms.
type standardTokenizer struct{}

func (standardTokenizer) Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

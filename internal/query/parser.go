// Package query parses and evaluates boolean/phrase queries against a
// sealed index. The grammar: bare terms are implicitly ANDed, OR binds
// looser than the implicit AND, a leading '-' (or NOT) excludes, and a
// quoted phrase matches only adjacent positions.
package query

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/dilarxiv/dilarxiv/pkg/errors"
)

type node interface{ isNode() }

// phraseNode holds an analyzed term sequence. A single bare word is a
// phrase of length one; longer sequences require adjacent positions.
type phraseNode struct {
	terms []string
}

type notNode struct {
	child node
}

type andNode struct {
	children []node
}

type orNode struct {
	children []node
}

// matchNoneNode results from a query whose every term was filtered out
// (stop words only). It matches nothing rather than everything: the index
// holds no trace of such terms.
type matchNoneNode struct{}

func (phraseNode) isNode()    {}
func (notNode) isNode()       {}
func (andNode) isNode()       {}
func (orNode) isNode()        {}
func (matchNoneNode) isNode() {}

// syntaxErr builds a query syntax error naming the offending token.
func syntaxErr(token, msg string) error {
	return fmt.Errorf("%w: %q: %s", apperrors.ErrQuerySyntax, token, msg)
}

type tokenKind int

const (
	tokTerm tokenKind = iota
	tokPhrase
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
}

// lex splits the raw query into terms, quoted phrases, and operators.
func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"':
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			if j >= len(runes) {
				return nil, syntaxErr(string(runes[i:]), "unterminated phrase")
			}
			tokens = append(tokens, token{kind: tokPhrase, text: string(runes[i+1 : j])})
			i = j + 1
		case r == '-':
			tokens = append(tokens, token{kind: tokNot, text: "-"})
			i++
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && runes[j] != '"' {
				j++
			}
			word := string(runes[i:j])
			switch word {
			case "OR":
				tokens = append(tokens, token{kind: tokOr, text: word})
			case "NOT":
				tokens = append(tokens, token{kind: tokNot, text: word})
			default:
				tokens = append(tokens, token{kind: tokTerm, text: word})
			}
			i = j
		}
	}
	return tokens, nil
}

// analyzer is the minimal slice of the analysis chain the parser needs.
type analyzer interface {
	Terms(text string) []string
}

// parser consumes the token stream with one token of lookahead.
type parser struct {
	tokens []token
	pos    int
	an     analyzer
}

// Parse turns a raw query string into an evaluable tree, analyzing each
// term and phrase with the same chain used at index time.
func Parse(input string, an analyzer) (node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, syntaxErr(input, "empty query")
	}
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, an: an}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, syntaxErr(p.tokens[p.pos].text, "unexpected token")
	}
	return root, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseOr() (node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []node{first}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOr {
			break
		}
		p.pos++
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &orNode{children: children}, nil
}

func (p *parser) parseAnd() (node, error) {
	var children []node
	positives := 0
	consumed := 0
	for {
		tok, ok := p.peek()
		if !ok || tok.kind == tokOr {
			break
		}
		factor, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		consumed++
		if factor == nil {
			continue // term dissolved by analysis (stop word)
		}
		if _, neg := factor.(*notNode); !neg {
			positives++
		}
		children = append(children, factor)
	}
	if consumed == 0 {
		if tok, ok := p.peek(); ok {
			return nil, syntaxErr(tok.text, "expected a term")
		}
		return nil, syntaxErr("OR", "dangling operator")
	}
	if len(children) == 0 {
		return &matchNoneNode{}, nil
	}
	if positives == 0 {
		return nil, syntaxErr(p.tokens[p.pos-1].text, "exclusion requires at least one positive term")
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &andNode{children: children}, nil
}

func (p *parser) parseFactor() (node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, syntaxErr("", "expected a term")
	}
	switch tok.kind {
	case tokNot:
		p.pos++
		next, ok := p.peek()
		if !ok || (next.kind != tokTerm && next.kind != tokPhrase) {
			return nil, syntaxErr(tok.text, "exclusion must be followed by a term or phrase")
		}
		child, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		if child == nil {
			// The excluded term was entirely stop words: nothing to
			// exclude, and nothing to keep either.
			return nil, nil
		}
		return &notNode{child: child}, nil
	case tokTerm, tokPhrase:
		p.pos++
		terms := p.an.Terms(tok.text)
		if len(terms) == 0 {
			return nil, nil
		}
		return &phraseNode{terms: terms}, nil
	default:
		return nil, syntaxErr(tok.text, "unexpected token")
	}
}

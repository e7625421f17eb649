// Package analysis turns raw document text into a stream of positioned
// terms. The same chain runs at index time and at query time so that a
// query term always takes the exact form stored in the index.
//
// The chain is: tokenizer -> lowercase -> French stop-word removal ->
// diacritic folding -> long-token cutoff -> optional French stemming.
// Positions are assigned after all filters, so phrase adjacency is
// evaluated over the terms that actually survive.
package analysis

// Token is one term with its position in the filtered stream.
type Token struct {
	Term     string
	Position uint32
}

// Analyzer runs the full analysis chain.
type Analyzer struct {
	tokenizer    Tokenizer
	tokenFilters []TokenFilter
}

// Option customizes a new Analyzer.
type Option func(*Analyzer)

// WithStemming appends the French snowball stemmer to the filter chain.
func WithStemming() Option {
	return func(a *Analyzer) {
		a.tokenFilters = append(a.tokenFilters, stemmerFilter{})
	}
}

// New builds the standard French analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		tokenizer: standardTokenizer{},
		tokenFilters: []TokenFilter{
			lowercaseFilter{},
			stopwordFilter{},
			foldingFilter{},
			lengthFilter{max: maxTokenRunes},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs text through the chain and returns the surviving tokens
// with consecutive positions starting at 0.
func (a *Analyzer) Analyze(text string) []Token {
	terms := a.tokenizer.Tokenize(text)
	for _, tf := range a.tokenFilters {
		terms = tf.Filter(terms)
	}
	tokens := make([]Token, len(terms))
	for i, term := range terms {
		tokens[i] = Token{Term: term, Position: uint32(i)}
	}
	return tokens
}

// Terms is Analyze without positions, for callers that only need the
// normalized term forms (query-time analysis of a single word).
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Analyze(text)
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Term
	}
	return out
}

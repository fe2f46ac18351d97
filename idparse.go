package imap

import (
	"strings"
	"unicode"
)

// ParseEmailIDs tokenizes the body of a SEARCH response, for example
// " 1 2 3 ". Any whitespace-delimited field is accepted as an identifier.
func ParseEmailIDs(line string) (TokenStream, error) {
	return parseEmailIDs(line, false)
}

func parseEmailIDs(line string, strict bool) (TokenStream, error) {
	tokens := make(TokenStream, 0, strings.Count(line, " ")+1)
	rest := strings.TrimLeftFunc(line, unicode.IsSpace)
	for len(rest) > 0 {
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end == -1 {
			end = len(rest)
		}
		f := rest[:end]
		if strict && !isNumber(f) {
			return nil, &ParseError{Line: line, Offset: len(line) - len(rest)}
		}
		tokens = append(tokens, Token{Kind: TIdentifier, Value: f})
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return tokens, nil
}

func isNumber(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// EmailIDParser accumulates the identifiers of successive SEARCH lines.
//
// With Strict set, fields that are not made of ASCII digits only are
// rejected with ErrUnrecognizedToken.
type EmailIDParser struct {
	Strict bool
	tokens TokenStream
}

// Parse tokenizes line and appends its tokens. On failure nothing is appended.
func (p *EmailIDParser) Parse(line string) error {
	tokens, err := parseEmailIDs(line, p.Strict)
	if err != nil {
		return err
	}
	p.tokens = append(p.tokens, tokens...)
	return nil
}

// Tokens returns the accumulated tokens
func (p *EmailIDParser) Tokens() TokenStream {
	return p.tokens
}

// Values returns the accumulated identifiers
func (p *EmailIDParser) Values() []string {
	return p.tokens.Values()
}

// Reset clears the accumulated tokens
func (p *EmailIDParser) Reset() {
	p.tokens = nil
}

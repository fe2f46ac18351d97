package imap

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// RE2's \s leaves out \v, which the whitespace trimming accepts
	attributeListRE = regexp.MustCompile(`^\((\\[A-Za-z]+(?:[\s\v]+\\[A-Za-z]+)*)\)`)
	attributeSepRE  = regexp.MustCompile(`[\s\v]+`)
	barePathRE      = regexp.MustCompile(`^(?:[/|.]|[A-Za-z_]+)`)
)

// match is the result of one alternative applied at the start of a string.
// A match with no values still consumes length bytes.
type match struct {
	kind   TokenKind
	values []string
	length int
}

// alternative tries to match a token at the very start of s.
type alternative func(s string) (match, bool)

// Tried in order; the first alternative that matches wins.
var mailboxListAlternatives = []alternative{
	matchEmptyAttributes,
	matchAttributeList,
	matchQuotedPath,
	matchBarePath,
}

// nextToken runs the alternatives in priority order against s
func nextToken(s string, alternatives []alternative) (match, bool) {
	for _, alt := range alternatives {
		if m, ok := alt(s); ok {
			return m, true
		}
	}
	return match{}, false
}

// matchEmptyAttributes matches "()", which yields no token.
func matchEmptyAttributes(s string) (match, bool) {
	if !strings.HasPrefix(s, "()") {
		return match{}, false
	}
	return match{kind: TAttribute, length: len("()")}, true
}

// matchAttributeList matches a parenthesized list of backslash-prefixed
// words, such as (\HasNoChildren \Drafts).
func matchAttributeList(s string) (match, bool) {
	loc := attributeListRE.FindStringSubmatchIndex(s)
	if loc == nil {
		return match{}, false
	}
	words := attributeSepRE.Split(s[loc[2]:loc[3]], -1)
	values := make([]string, 0, len(words))
	for _, w := range words {
		values = append(values, strings.TrimPrefix(w, `\`))
	}
	return match{kind: TAttribute, values: values, length: loc[1]}, true
}

// matchQuotedPath matches a non-empty double-quoted string. A quote preceded
// by a backslash does not end the string, and the content is kept verbatim.
//
// RE2 has no lookbehind, so this one is scanned by hand.
func matchQuotedPath(s string) (match, bool) {
	if len(s) == 0 || s[0] != '"' {
		return match{}, false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != '"' || s[i-1] == '\\' {
			continue
		}
		if i == 1 {
			return match{}, false
		}
		return match{kind: TPathSegment, values: []string{s[1:i]}, length: i + 1}, true
	}
	return match{}, false
}

// matchBarePath matches a single hierarchy delimiter or a run of letters and
// underscores.
func matchBarePath(s string) (match, bool) {
	loc := barePathRE.FindStringIndex(s)
	if loc == nil {
		return match{}, false
	}
	return match{kind: TPathSegment, values: []string{s[:loc[1]]}, length: loc[1]}, true
}

// tokenize applies the alternatives repeatedly until line is consumed. It
// never backtracks: a committed match is consumed in full.
func tokenize(line string, alternatives []alternative) (TokenStream, error) {
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	rest := strings.TrimLeftFunc(line, unicode.IsSpace)
	tokens := make(TokenStream, 0, 4)
	for len(rest) > 0 {
		m, ok := nextToken(rest, alternatives)
		if !ok {
			return nil, &ParseError{Line: line, Offset: len(line) - len(rest)}
		}
		for _, v := range m.values {
			tokens = append(tokens, Token{Kind: m.kind, Value: v})
		}
		rest = strings.TrimLeftFunc(rest[m.length:], unicode.IsSpace)
	}
	return tokens, nil
}

// ParseMailboxList tokenizes the body of one LIST response, for example
// `(\HasNoChildren) "/" "INBOX"`.
func ParseMailboxList(line string) (TokenStream, error) {
	return tokenize(line, mailboxListAlternatives)
}

// MailboxListParser accumulates the tokens of successive LIST lines.
// Use one parser per goroutine.
type MailboxListParser struct {
	tokens TokenStream
}

// Parse tokenizes line and appends its tokens. On failure nothing is
// appended and the error wraps ErrUnrecognizedToken.
func (p *MailboxListParser) Parse(line string) error {
	tokens, err := ParseMailboxList(line)
	if err != nil {
		return err
	}
	p.tokens = append(p.tokens, tokens...)
	return nil
}

// Tokens returns the accumulated tokens
func (p *MailboxListParser) Tokens() TokenStream {
	return p.tokens
}

// Values returns the accumulated token values
func (p *MailboxListParser) Values() []string {
	return p.tokens.Values()
}

// Reset clears the accumulated tokens
func (p *MailboxListParser) Reset() {
	p.tokens = nil
}

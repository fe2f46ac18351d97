package imap

import (
	"errors"
	"fmt"
)

// TokenKind represents the kind of a parsed response token
type TokenKind uint8

const (
	TUnset TokenKind = iota
	TAttribute
	TPathSegment
	TIdentifier
)

// ErrUnrecognizedToken is returned when no token matches at the current
// position of a response line.
var ErrUnrecognizedToken = errors.New("unrecognized token")

// Token is a single (kind, value) pair extracted from a response line.
//
// Attribute values never carry their leading backslash. Path segment values
// are the raw text between the quotes, escape sequences included.
type Token struct {
	Kind  TokenKind
	Value string
}

// TokenStream is an ordered sequence of tokens, in order of appearance.
type TokenStream []Token

// ParseError reports the position at which a line stopped matching.
type ParseError struct {
	Line   string
	Offset int
}

func (e *ParseError) Error() string {
	rest := ""
	if e.Offset <= len(e.Line) {
		rest = e.Line[e.Offset:]
	}
	return fmt.Sprintf("%s at char %d in %q (near %q)", ErrUnrecognizedToken, e.Offset, e.Line, rest)
}

func (e *ParseError) Unwrap() error { return ErrUnrecognizedToken }

// GetTokenKindName returns the string name of a token kind
func GetTokenKindName(kind TokenKind) string {
	switch kind {
	case TUnset:
		return "TUnset"
	case TAttribute:
		return "TAttribute"
	case TPathSegment:
		return "TPathSegment"
	case TIdentifier:
		return "TIdentifier"
	}
	return ""
}

func (k TokenKind) String() string {
	if name := GetTokenKindName(k); name != "" {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", uint8(k))
}

// String returns a string representation of a Token
func (t Token) String() string {
	return fmt.Sprintf("(%s %#v)", t.Kind, t.Value)
}

// Values returns the token values without their kinds.
func (s TokenStream) Values() []string {
	values := make([]string, 0, len(s))
	for _, t := range s {
		values = append(values, t.Value)
	}
	return values
}

// Attributes returns the values of the attribute tokens.
func (s TokenStream) Attributes() []string {
	return s.valuesOf(TAttribute)
}

// PathSegments returns the values of the path segment tokens.
func (s TokenStream) PathSegments() []string {
	return s.valuesOf(TPathSegment)
}

func (s TokenStream) valuesOf(kind TokenKind) []string {
	values := make([]string, 0, len(s))
	for _, t := range s {
		if t.Kind == kind {
			values = append(values, t.Value)
		}
	}
	return values
}

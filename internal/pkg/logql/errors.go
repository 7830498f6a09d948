package logql

import (
	"errors"
	"fmt"
)

var (
	// ErrLexical matches every *LexError via errors.Is.
	ErrLexical = errors.New("lexical error")
	// ErrSyntax matches every *SyntaxError via errors.Is.
	ErrSyntax = errors.New("syntax error")
)

// LexError reports a character the lexer does not recognize.
// Err is set when a digit run does not fit into an unsigned 64-bit integer.
type LexError struct {
	Char   rune
	Offset int
	Err    error
}

func (e *LexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid number at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("unexpected character %q at offset %d", e.Char, e.Offset)
}

func (e *LexError) Is(target error) bool {
	return target == ErrLexical
}

func (e *LexError) Unwrap() error {
	return e.Err
}

// SyntaxErrorKind classifies a failed grammar expectation.
type SyntaxErrorKind int

const (
	ErrExpectedKeyword SyntaxErrorKind = iota
	ErrExpectedIdentifier
	ErrExpectedIdentifierGotKeyword
	ErrExpectedComma
	ErrDanglingComma
	ErrExpectedString
	ErrExpectedComparator
	ErrExpectedNumber
	ErrExpectedEndOfInput
)

func (k SyntaxErrorKind) String() string {
	switch k {
	case ErrExpectedKeyword:
		return "expected_keyword"
	case ErrExpectedIdentifier:
		return "expected_identifier"
	case ErrExpectedIdentifierGotKeyword:
		return "expected_identifier_got_keyword"
	case ErrExpectedComma:
		return "expected_comma"
	case ErrDanglingComma:
		return "dangling_comma"
	case ErrExpectedString:
		return "expected_string"
	case ErrExpectedComparator:
		return "expected_comparator"
	case ErrExpectedNumber:
		return "expected_number"
	case ErrExpectedEndOfInput:
		return "expected_end_of_input"
	default:
		return "unknown"
	}
}

// SyntaxError reports the first grammar expectation that was not met.
type SyntaxError struct {
	Kind     SyntaxErrorKind
	Expected string
	Found    Token
}

func (e *SyntaxError) Error() string {
	if e.Kind == ErrDanglingComma {
		return fmt.Sprintf("dangling comma before FROM at offset %d", e.Found.Pos)
	}
	return fmt.Sprintf("expected %s, got %s at offset %d", e.Expected, e.Found, e.Found.Pos)
}

func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

package logql

import (
	"fmt"
	"strconv"
)

// TokenKind represents the type of a lexical token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIdentifier
	TokenString
	TokenNumber
	TokenEquals
	TokenComma
)

func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "EOF"
	case TokenIdentifier:
		return "Identifier"
	case TokenString:
		return "String"
	case TokenNumber:
		return "Number"
	case TokenEquals:
		return "Equals"
	case TokenComma:
		return "Comma"
	default:
		return "Unknown"
	}
}

// Token represents a lexical token.
// Text holds the identifier or string payload, Number the value of a number token.
// Pos is the byte offset of the token in the query.
type Token struct {
	Kind   TokenKind
	Text   string
	Number uint64
	Pos    int
}

// IsKeyword reports whether the token is an identifier spelled exactly kw.
// Keywords are not reserved by the lexer; the parser checks them by position.
func (t Token) IsKeyword(kw string) bool {
	return t.Kind == TokenIdentifier && t.Text == kw
}

// String renders the token for error messages.
func (t Token) String() string {
	switch t.Kind {
	case TokenEOF:
		return "end of input"
	case TokenIdentifier:
		return fmt.Sprintf("identifier %q", t.Text)
	case TokenString:
		return fmt.Sprintf("string '%s'", t.Text)
	case TokenNumber:
		return "number " + strconv.FormatUint(t.Number, 10)
	case TokenEquals:
		return "'='"
	case TokenComma:
		return "','"
	default:
		return t.Kind.String()
	}
}

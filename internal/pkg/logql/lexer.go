package logql

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes LogQL input.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, pos: 0}
}

// Tokenize converts a query into its token sequence, terminated by exactly one
// EOF token. The first unrecognized character aborts tokenization.
func Tokenize(query string) ([]Token, error) {
	l := NewLexer(query)
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens, nil
		}
	}
}

// NextToken returns the next token from the input.
// Once the input is exhausted it keeps returning EOF.
func (l *Lexer) NextToken() (Token, error) {
	l.skipSpaces()

	ch, width := l.peek()
	if width == 0 {
		return Token{Kind: TokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	switch {
	case ch == '\'':
		return l.readString(), nil
	case ch == '=':
		l.pos += width
		return Token{Kind: TokenEquals, Text: "=", Pos: start}, nil
	case ch == ',':
		l.pos += width
		return Token{Kind: TokenComma, Text: ",", Pos: start}, nil
	case isDigit(ch):
		return l.readNumber()
	case isAlphabetic(ch):
		return l.readIdentifier(), nil
	}

	return Token{}, &LexError{Char: ch, Offset: start}
}

// peek decodes the rune at the current position. Width is 0 at end of input.
func (l *Lexer) peek() (rune, int) {
	if l.pos >= len(l.input) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.input[l.pos:])
}

// Only the space character separates tokens.
func (l *Lexer) skipSpaces() {
	for l.pos < len(l.input) && l.input[l.pos] == ' ' {
		l.pos++
	}
}

// readString consumes a quoted literal verbatim. There is no escaping, and a
// literal without a closing quote runs to the end of the input.
func (l *Lexer) readString() Token {
	start := l.pos
	l.pos++ // opening quote
	valueStart := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '\'' {
		l.pos++
	}
	value := l.input[valueStart:l.pos]
	if l.pos < len(l.input) {
		l.pos++ // closing quote
	}
	return Token{Kind: TokenString, Text: value, Pos: start}
}

func (l *Lexer) readNumber() (Token, error) {
	start := l.pos
	for l.pos < len(l.input) && isDigit(rune(l.input[l.pos])) {
		l.pos++
	}
	text := l.input[start:l.pos]
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return Token{}, &LexError{Char: rune(text[0]), Offset: start, Err: err}
	}
	return Token{Kind: TokenNumber, Text: text, Number: n, Pos: start}, nil
}

func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for {
		ch, width := l.peek()
		if width == 0 || !isAlphabetic(ch) {
			break
		}
		l.pos += width
	}
	return Token{Kind: TokenIdentifier, Text: l.input[start:l.pos], Pos: start}
}

// isAlphabetic reports whether ch has the Unicode Alphabetic property:
// letters, letter numbers and combining marks such as Indic vowel signs.
func isAlphabetic(ch rune) bool {
	return unicode.In(ch, unicode.Letter, unicode.Nl, unicode.Other_Alphabetic)
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

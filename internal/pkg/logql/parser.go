package logql

import (
	"strconv"
	"strings"
)

const (
	kwSelect = "SELECT"
	kwFrom   = "FROM"
	kwWhere  = "WHERE"
	kwLike   = "LIKE"
	kwLimit  = "LIMIT"
	kwLast   = "LAST"
)

// Parser parses LogQL queries with one token of lookahead.
//
//	query        := "SELECT" field_list "FROM" String [where_clause] [limit_clause] EOF
//	field_list   := Identifier { "," Identifier }
//	where_clause := "WHERE" Identifier ("=" | "LIKE") String
//	limit_clause := "LIMIT" ["LAST"] Number
type Parser struct {
	query  string
	tokens []Token
	pos    int
}

// NewParser creates a Parser for the given query.
func NewParser(query string) *Parser {
	return &Parser{query: query}
}

// Parse parses the input string and returns the query.
func Parse(query string) (*Query, error) {
	return NewParser(query).Parse()
}

// Parse tokenizes the stored query and parses it. Every call starts from
// scratch, so calling it again yields an equal result.
func (p *Parser) Parse() (*Query, error) {
	tokens, err := Tokenize(p.query)
	if err != nil {
		return nil, err
	}
	p.tokens = tokens
	p.pos = 0

	if err := p.expectKeyword(kwSelect); err != nil {
		return nil, err
	}

	source, err := p.parseLogFile()
	if err != nil {
		return nil, err
	}
	q := &Query{Source: source}

	// WHERE must come before LIMIT; nothing backtracks.
	if p.current().IsKeyword(kwWhere) {
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		q.Filter = cond
	}

	if p.current().IsKeyword(kwLimit) {
		limit, err := p.parseLimit()
		if err != nil {
			return nil, err
		}
		q.Limit = limit
	}

	if p.current().Kind != TokenEOF {
		return nil, p.fail(ErrExpectedEndOfInput, "end of input")
	}
	return q, nil
}

// current returns the token under the cursor. The token stream always ends
// with EOF, which is returned for any position past the end.
func (p *Parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) next() Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *Parser) fail(kind SyntaxErrorKind, expected string) *SyntaxError {
	return &SyntaxError{Kind: kind, Expected: expected, Found: p.current()}
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.current().IsKeyword(kw) {
		return p.fail(ErrExpectedKeyword, "keyword "+kw)
	}
	p.advance()
	return nil
}

func (p *Parser) expectIdentifier(what string) (string, error) {
	tok := p.current()
	if tok.Kind != TokenIdentifier {
		return "", p.fail(ErrExpectedIdentifier, what)
	}
	p.advance()
	return tok.Text, nil
}

func (p *Parser) expectString(what string) (string, error) {
	tok := p.current()
	if tok.Kind != TokenString {
		return "", p.fail(ErrExpectedString, what)
	}
	p.advance()
	return tok.Text, nil
}

func (p *Parser) expectNumber(what string) (uint64, error) {
	tok := p.current()
	if tok.Kind != TokenNumber {
		return 0, p.fail(ErrExpectedNumber, what)
	}
	p.advance()
	return tok.Number, nil
}

// parseLogFile handles: field_list "FROM" String
func (p *Parser) parseLogFile() (LogFile, error) {
	fields, err := p.parseFieldList()
	if err != nil {
		return LogFile{}, err
	}

	if err := p.expectKeyword(kwFrom); err != nil {
		return LogFile{}, err
	}

	filename, err := p.expectString("filename string")
	if err != nil {
		return LogFile{}, err
	}

	return LogFile{Fields: fields, Filename: filename}, nil
}

// parseFieldList reads at least one field and stops in front of FROM.
func (p *Parser) parseFieldList() ([]string, error) {
	var fields []string
	for {
		tok := p.current()
		if tok.IsKeyword(kwFrom) {
			return nil, p.fail(ErrExpectedIdentifierGotKeyword, "field name")
		}
		field, err := p.expectIdentifier("field name")
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)

		if p.current().IsKeyword(kwFrom) {
			return fields, nil
		}
		if p.current().Kind != TokenComma {
			return nil, p.fail(ErrExpectedComma, "',' or keyword FROM")
		}
		if p.next().IsKeyword(kwFrom) {
			return nil, p.fail(ErrDanglingComma, "field name")
		}
		p.advance()
	}
}

// parseCondition handles: "WHERE" Identifier ("=" | "LIKE") String
func (p *Parser) parseCondition() (*Condition, error) {
	if err := p.expectKeyword(kwWhere); err != nil {
		return nil, err
	}

	field, err := p.expectIdentifier("field name")
	if err != nil {
		return nil, err
	}

	var cmp Comparator
	switch tok := p.current(); {
	case tok.Kind == TokenEquals:
		cmp = StrictEquals
	case tok.IsKeyword(kwLike):
		cmp = Like
	default:
		return nil, p.fail(ErrExpectedComparator, "'=' or LIKE")
	}
	p.advance()

	value, err := p.expectString("value string")
	if err != nil {
		return nil, err
	}

	return &Condition{Field: field, Comparator: cmp, Value: value}, nil
}

// parseLimit handles: "LIMIT" ["LAST"] Number
func (p *Parser) parseLimit() (*Limit, error) {
	if err := p.expectKeyword(kwLimit); err != nil {
		return nil, err
	}

	direction := First
	if p.current().IsKeyword(kwLast) {
		direction = Last
		p.advance()
	}

	count, err := p.expectNumber("row count")
	if err != nil {
		return nil, err
	}

	return &Limit{Count: count, Direction: direction}, nil
}

// String renders q as canonical query text. Parsing the result yields an
// equal Query as long as no string value contains a quote.
func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString(kwSelect + " ")
	sb.WriteString(strings.Join(q.Source.Fields, ", "))
	sb.WriteString(" " + kwFrom + " '" + q.Source.Filename + "'")
	if q.Filter != nil {
		sb.WriteString(" " + kwWhere + " " + q.Filter.Field + " " + q.Filter.Comparator.String() + " '" + q.Filter.Value + "'")
	}
	if q.Limit != nil {
		sb.WriteString(" " + kwLimit + " ")
		if q.Limit.Direction == Last {
			sb.WriteString(kwLast + " ")
		}
		sb.WriteString(strconv.FormatUint(q.Limit.Count, 10))
	}
	return sb.String()
}

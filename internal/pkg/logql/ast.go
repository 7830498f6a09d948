package logql

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Comparator is the matching mode of a WHERE clause.
type Comparator int

const (
	StrictEquals Comparator = iota
	Like
)

func (c Comparator) String() string {
	if c == Like {
		return "LIKE"
	}
	return "="
}

func (c Comparator) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Comparator) UnmarshalText(text []byte) error {
	switch string(text) {
	case "=":
		*c = StrictEquals
	case "LIKE":
		*c = Like
	default:
		return fmt.Errorf("unknown comparator %q", text)
	}
	return nil
}

// Direction selects whether LIMIT counts from the head or the tail of a file.
type Direction int

const (
	First Direction = iota
	Last
)

func (d Direction) String() string {
	if d == Last {
		return "LAST"
	}
	return "FIRST"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "FIRST":
		*d = First
	case "LAST":
		*d = Last
	default:
		return fmt.Errorf("unknown direction %q", text)
	}
	return nil
}

// GrammarItem is the payload of a tree node.
// The marker method keeps the set of implementations closed.
type GrammarItem interface {
	grammarItem()
	// Name returns the grammar item's tag, e.g. "LogFile".
	Name() string
}

// QueryItem tags the root node.
type QueryItem struct{}

// LogFile names the fields to select and the file they come from.
// Invariant: len(Fields) >= 1
type LogFile struct {
	Fields   []string `json:"fields" yaml:"fields"`
	Filename string   `json:"filename" yaml:"filename"`
}

// Condition is the WHERE clause.
type Condition struct {
	Field      string     `json:"field" yaml:"field"`
	Comparator Comparator `json:"comparator" yaml:"comparator"`
	Value      string     `json:"value" yaml:"value"`
}

// Limit is the LIMIT clause.
type Limit struct {
	Count     uint64    `json:"count" yaml:"count"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// LogResult groups the optional WHERE and LIMIT clauses in the tree view.
type LogResult struct{}

func (QueryItem) grammarItem() {}
func (LogFile) grammarItem()   {}
func (Condition) grammarItem() {}
func (Limit) grammarItem()     {}
func (LogResult) grammarItem() {}

func (QueryItem) Name() string { return "Query" }
func (LogFile) Name() string   { return "LogFile" }
func (Condition) Name() string { return "Condition" }
func (Limit) Name() string     { return "Limit" }
func (LogResult) Name() string { return "LogResult" }

// Query is the parsed form of a query.
type Query struct {
	Source LogFile    `json:"source" yaml:"source"`
	Filter *Condition `json:"filter,omitempty" yaml:"filter,omitempty"`
	Limit  *Limit     `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// ASTNode is the positional binary view of a query.
//
// The root holds QueryItem with the LogFile on the left. The right child is a
// LogResult node only when a WHERE or LIMIT clause exists; its left child is
// the Condition and its right child the Limit.
type ASTNode struct {
	Entry GrammarItem
	Left  *ASTNode
	Right *ASTNode
}

// Tree builds the positional tree for q. Each call returns a fresh tree.
func (q *Query) Tree() *ASTNode {
	fields := make([]string, len(q.Source.Fields))
	copy(fields, q.Source.Fields)

	root := &ASTNode{
		Entry: QueryItem{},
		Left:  &ASTNode{Entry: LogFile{Fields: fields, Filename: q.Source.Filename}},
	}

	if q.Filter == nil && q.Limit == nil {
		return root
	}

	result := &ASTNode{Entry: LogResult{}}
	if q.Filter != nil {
		result.Left = &ASTNode{Entry: *q.Filter}
	}
	if q.Limit != nil {
		result.Right = &ASTNode{Entry: *q.Limit}
	}
	root.Right = result
	return root
}

// nodeView is the serialized shape of an ASTNode.
type nodeView struct {
	Item  string      `json:"item" yaml:"item"`
	Entry GrammarItem `json:"entry,omitempty" yaml:"entry,omitempty"`
	Left  *nodeView   `json:"left,omitempty" yaml:"left,omitempty"`
	Right *nodeView   `json:"right,omitempty" yaml:"right,omitempty"`
}

func (n *ASTNode) view() *nodeView {
	if n == nil {
		return nil
	}
	v := &nodeView{Item: n.Entry.Name(), Left: n.Left.view(), Right: n.Right.view()}
	switch n.Entry.(type) {
	case QueryItem, LogResult:
	default:
		v.Entry = n.Entry
	}
	return v
}

// MarshalJSON tags each node with its grammar item name.
func (n *ASTNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.view())
}

// MarshalYAML implements the yaml.Marshaler interface.
func (n *ASTNode) MarshalYAML() (interface{}, error) {
	return n.view(), nil
}

// String renders the tree one node per line, children indented below their parent.
func (n *ASTNode) String() string {
	var sb strings.Builder
	n.write(&sb, 0)
	return sb.String()
}

func (n *ASTNode) write(sb *strings.Builder, depth int) {
	if n == nil {
		return
	}
	sb.WriteString(strings.Repeat("  ", depth))
	switch e := n.Entry.(type) {
	case LogFile:
		fmt.Fprintf(sb, "LogFile fields=%s filename='%s'", strings.Join(e.Fields, ","), e.Filename)
	case Condition:
		fmt.Fprintf(sb, "Condition %s %s '%s'", e.Field, e.Comparator, e.Value)
	case Limit:
		fmt.Fprintf(sb, "Limit %s %d", e.Direction, e.Count)
	default:
		sb.WriteString(n.Entry.Name())
	}
	sb.WriteByte('\n')
	n.Left.write(sb, depth+1)
	n.Right.write(sb, depth+1)
}

package core

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
)

/*
This is a parser for the evaluation search language:

Query       := Expr
Expr        := OrExpr ( "OR" OrExpr )*
OrExpr      := Condition ( "AND" Condition )*
Condition   := "NOT"? ( Filter | "(" Expr ")" )
Filter      := Label Op Value
Label       := "SCORE" <identifier> | <identifier>
Op          := "CONTAINS" | "<" | ">" | "="
Value       := <string> | <number>

Fields are brand, category, objective, status, verdict, confidence,
hard_gate and index. SCORE <short name> selects a role score.
*/

var (
	parser = participle.MustBuild[QueryExpr](
		participle.Unquote("String"),
		participle.Union[Value](StringValue{}, NumberValue{}),
	)

	stringFields = map[string]bool{
		"brand": true, "category": true, "objective": true, "status": true,
		"verdict": true, "confidence": true, "hard_gate": true,
	}
)

const indexField = "index"

func ParseQuery(query string) (Filter, error) {
	q, err := parser.ParseString("", query)
	if err != nil {
		return nil, fmt.Errorf("error parsing query '%s': %w", query, err)
	}

	filter, err := q.ToFilter()
	if err != nil {
		return nil, fmt.Errorf("error converting query '%s' to filter: %w", query, err)
	}

	return filter, nil
}

type QueryExpr struct {
	Expr *Expr `@@`
}

func (q *QueryExpr) ToFilter() (Filter, error) {
	return q.Expr.ToFilter()
}

func (q *QueryExpr) String() string {
	return q.Expr.String()
}

type Expr struct {
	Ors []*OrExpr `@@ ( "OR" @@ )*`
}

func (q *Expr) ToFilter() (Filter, error) {
	if len(q.Ors) == 0 {
		return nil, fmt.Errorf("empty OR expression")
	}

	if len(q.Ors) == 1 {
		return q.Ors[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range q.Ors {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &OrFilter{filters: filters}, nil
}

func (e *Expr) String() string {
	if len(e.Ors) == 0 {
		return ""
	}

	if len(e.Ors) == 1 {
		return e.Ors[0].String()
	}

	out := fmt.Sprintf("(%s)", e.Ors[0].String())
	for _, cond := range e.Ors[1:] {
		out += fmt.Sprintf(" OR (%s)", cond.String())
	}

	return out
}

type OrExpr struct {
	Ands []*Condition `@@ ( "AND" @@ )*`
}

func (o *OrExpr) ToFilter() (Filter, error) {
	if len(o.Ands) == 0 {
		return nil, fmt.Errorf("empty AND expression")
	}

	if len(o.Ands) == 1 {
		return o.Ands[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range o.Ands {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &AndFilter{filters: filters}, nil
}

func (e *OrExpr) String() string {
	if len(e.Ands) == 0 {
		return ""
	}

	if len(e.Ands) == 1 {
		return e.Ands[0].String()
	}

	out := fmt.Sprintf("(%s)", e.Ands[0].String())
	for _, cond := range e.Ands[1:] {
		out += fmt.Sprintf(" AND (%s)", cond.String())
	}

	return out
}

type Condition struct {
	Not     bool        `@"NOT"?`
	Filter  *FilterExpr `( @@`
	SubExpr *Expr       `| "(" @@ ")" )`
}

func (c *Condition) ToFilter() (Filter, error) {
	var filter Filter
	var err error
	if c.Filter != nil {
		filter, err = c.Filter.ToFilter()
	} else if c.SubExpr != nil {
		filter, err = c.SubExpr.ToFilter()
	} else {
		err = fmt.Errorf("empty condition")
	}

	if err != nil {
		return nil, err
	}

	if c.Not {
		filter = &NotFilter{filter: filter}
	}

	return filter, nil
}

func (c *Condition) String() string {
	var out string
	if c.SubExpr != nil {
		out = c.SubExpr.String()
	} else {
		out = c.Filter.String()
	}
	if c.Not {
		return fmt.Sprintf("NOT (%s)", out)
	}
	return out
}

type FilterExpr struct {
	Label Label  `@@`
	Op    string `@("CONTAINS" | "<" | ">" | "=" )`
	Value Value  `@@`
}

func (f *FilterExpr) ToFilter() (Filter, error) {
	if f.Label.Score || f.Label.Name == indexField {
		n, ok := f.Value.(NumberValue)
		if !ok {
			return nil, fmt.Errorf("%s requires a number value to compare to", f.Label.String())
		}
		if f.Op == "CONTAINS" {
			return nil, fmt.Errorf("invalid operator %s used with %s", f.Op, f.Label.String())
		}
		role := ""
		if f.Label.Score {
			role = ScoreKey(f.Label.Name)
		}
		return &NumberFilter{role: role, op: f.Op, value: n.Value}, nil
	}

	if !stringFields[f.Label.Name] {
		return nil, fmt.Errorf("unknown field '%s'", f.Label.Name)
	}

	s, ok := f.Value.(StringValue)
	if !ok {
		return nil, fmt.Errorf("field %s must be compared to a quoted string", f.Label.Name)
	}

	switch f.Op {
	case "CONTAINS":
		return &SubstringFilter{field: f.Label.Name, substr: s.Value}, nil
	case "<":
		return &StringLtFilter{field: f.Label.Name, value: s.Value}, nil
	case ">":
		return &StringGtFilter{field: f.Label.Name, value: s.Value}, nil
	case "=":
		return &StringEqFilter{field: f.Label.Name, value: s.Value}, nil
	default:
		return nil, fmt.Errorf("invalid operator %s used with string value", f.Op)
	}
}

func (f *FilterExpr) String() string {
	return fmt.Sprintf("%v %s %v", f.Label.String(), f.Op, f.Value)
}

type Label struct {
	Score bool   `@"SCORE"?`
	Name  string `@Ident`
}

func (l *Label) String() string {
	if l.Score {
		return fmt.Sprintf("SCORE(%s)", l.Name)
	}
	return l.Name
}

type Value interface{ value() }

type StringValue struct {
	Value string `@String`
}

func (s StringValue) value() {}

func (s StringValue) String() string {
	return strconv.Quote(s.Value)
}

type NumberValue struct {
	Value float64 `@(Float | Int)`
}

func (n NumberValue) value() {}

func (n NumberValue) String() string {
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

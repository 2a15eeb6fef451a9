package assertions

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Operator is a comparison applied to a subject
type Operator int

const (
	OpEquals Operator = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpMatches
	OpExists
	OpNotExists
	OpLength
	OpType
	OpIn
	OpSchema
)

var operatorNames = map[string]Operator{
	"==":         OpEquals,
	"equals":     OpEquals,
	"!=":         OpNotEquals,
	">":          OpGreaterThan,
	">=":         OpGreaterOrEqual,
	"<":          OpLessThan,
	"<=":         OpLessOrEqual,
	"contains":   OpContains,
	"!contains":  OpNotContains,
	"startsWith": OpStartsWith,
	"endsWith":   OpEndsWith,
	"matches":    OpMatches,
	"exists":     OpExists,
	"!exists":    OpNotExists,
	"length":     OpLength,
	"type":       OpType,
	"in":         OpIn,
	"schema":     OpSchema,
}

var operatorSymbols = [...]string{
	OpEquals:         "==",
	OpNotEquals:      "!=",
	OpGreaterThan:    ">",
	OpGreaterOrEqual: ">=",
	OpLessThan:       "<",
	OpLessOrEqual:    "<=",
	OpContains:       "contains",
	OpNotContains:    "!contains",
	OpStartsWith:     "startsWith",
	OpEndsWith:       "endsWith",
	OpMatches:        "matches",
	OpExists:         "exists",
	OpNotExists:      "!exists",
	OpLength:         "length",
	OpType:           "type",
	OpIn:             "in",
	OpSchema:         "schema",
}

func (o Operator) String() string {
	if int(o) < len(operatorSymbols) {
		return operatorSymbols[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// unary operators take no expected value
func (o Operator) unary() bool {
	return o == OpExists || o == OpNotExists
}

// Assertion is a single check against a response
type Assertion struct {
	Subject  string
	Operator Operator
	Expected any
}

// Parse reads an assertion such as `status == 200`,
// `header Content-Type contains json` or `body.items length 3`.
// The expected value is decoded as JSON when possible and kept as a
// string otherwise.
func Parse(s string) (*Assertion, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty assertion")
	}

	subject := fields[0]
	rest := fields[1:]
	if subject == "header" {
		if len(rest) == 0 {
			return nil, fmt.Errorf("assertion %q: missing header name", s)
		}
		subject = "header " + rest[0]
		rest = rest[1:]
	}

	if len(rest) == 0 {
		return nil, fmt.Errorf("assertion %q: missing operator", s)
	}
	op, ok := operatorNames[rest[0]]
	if !ok {
		return nil, fmt.Errorf("assertion %q: unknown operator %q", s, rest[0])
	}

	a := &Assertion{Subject: subject, Operator: op}
	raw := strings.Join(rest[1:], " ")
	switch {
	case op.unary():
		if raw != "" {
			return nil, fmt.Errorf("assertion %q: %s takes no value", s, rest[0])
		}
	case raw == "":
		return nil, fmt.Errorf("assertion %q: missing expected value", s)
	default:
		a.Expected = parseValue(raw)
	}
	return a, nil
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func (a *Assertion) String() string {
	if a.Operator.unary() {
		return a.Subject + " " + a.Operator.String()
	}
	return fmt.Sprintf("%s %s %v", a.Subject, a.Operator, a.Expected)
}

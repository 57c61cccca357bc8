package query

import (
	"fmt"
	"strings"
)

// Operator is the parsed form of a condition's operator string. Parsing
// happens eagerly at compile time so arity checks live in one place instead
// of string comparisons scattered through emission.
type Operator int

const (
	OpInvalid Operator = iota
	OpEq
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpLike
	OpNotLike
	OpContains
	OpNotContains
	OpRegexp
	OpNotRegexp
	OpRegexpExact
	OpEmpty
	OpNotEmpty
	OpIn
	OpNotIn
	OpBetween
	OpNotBetween
)

// operatorNames maps the form-submitted operator strings to parsed operators.
var operatorNames = map[string]Operator{
	"=":              OpEq,
	"!=":             OpNe,
	">":              OpGt,
	">=":             OpGte,
	"<":              OpLt,
	"<=":             OpLte,
	"LIKE":           OpLike,
	"NOT LIKE":       OpNotLike,
	"LIKE %...%":     OpContains,
	"NOT LIKE %...%": OpNotContains,
	"REGEXP":         OpRegexp,
	"NOT REGEXP":     OpNotRegexp,
	"REGEXP ^...$":   OpRegexpExact,
	"= ''":           OpEmpty,
	"!= ''":          OpNotEmpty,
	"IN":             OpIn,
	"NOT IN":         OpNotIn,
	"BETWEEN":        OpBetween,
	"NOT BETWEEN":    OpNotBetween,
}

// ParseOperator parses a form operator string.
func ParseOperator(s string) (Operator, error) {
	op, ok := operatorNames[strings.TrimSpace(s)]
	if !ok {
		return OpInvalid, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
	}
	return op, nil
}

// needsSecond reports whether the operator requires value2.
func (o Operator) needsSecond() bool {
	return o == OpBetween || o == OpNotBetween
}

// quoteLiteral renders a user-supplied value as a SQL string literal. Single
// quotes are doubled and backslashes escaped; a literal % passes through
// untouched so LIKE values keep their meaning.
func quoteLiteral(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `''`)
	return "'" + v + "'"
}

// render emits the SQL fragment for one condition. col is the qualified
// column name; v and v2 are the raw form values.
func (o Operator) render(col, v, v2 string) (string, error) {
	switch o {
	case OpEq:
		return col + " = " + quoteLiteral(v), nil
	case OpNe:
		return col + " != " + quoteLiteral(v), nil
	case OpGt:
		return col + " > " + quoteLiteral(v), nil
	case OpGte:
		return col + " >= " + quoteLiteral(v), nil
	case OpLt:
		return col + " < " + quoteLiteral(v), nil
	case OpLte:
		return col + " <= " + quoteLiteral(v), nil
	case OpLike:
		return col + " LIKE " + quoteLiteral(v), nil
	case OpNotLike:
		return col + " NOT LIKE " + quoteLiteral(v), nil
	case OpContains:
		return col + " LIKE " + quoteLiteral("%"+v+"%"), nil
	case OpNotContains:
		return col + " NOT LIKE " + quoteLiteral("%"+v+"%"), nil
	case OpRegexp:
		return col + " REGEXP " + quoteLiteral(v), nil
	case OpNotRegexp:
		return col + " NOT REGEXP " + quoteLiteral(v), nil
	case OpRegexpExact:
		return col + " REGEXP " + quoteLiteral("^"+v+"$"), nil
	case OpEmpty:
		return "(" + col + " = '' OR " + col + " IS NULL)", nil
	case OpNotEmpty:
		return "(" + col + " != '' AND " + col + " IS NOT NULL)", nil
	case OpIn, OpNotIn:
		parts := strings.Split(v, ",")
		quoted := make([]string, 0, len(parts))
		for _, p := range parts {
			quoted = append(quoted, quoteLiteral(strings.TrimSpace(p)))
		}
		kw := " IN ("
		if o == OpNotIn {
			kw = " NOT IN ("
		}
		return col + kw + strings.Join(quoted, ", ") + ")", nil
	case OpBetween, OpNotBetween:
		if v2 == "" {
			return "", fmt.Errorf("%w: BETWEEN needs an upper bound", ErrMissingOperand)
		}
		kw := " BETWEEN "
		if o == OpNotBetween {
			kw = " NOT BETWEEN "
		}
		return col + kw + quoteLiteral(v) + " AND " + quoteLiteral(v2), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownOperator, int(o))
	}
}

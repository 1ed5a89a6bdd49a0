package query

import (
	"strings"

	"github.com/objectql/odata/provider"
	"github.com/shopspring/decimal"
)

// comparisonOperators maps the wire operator tokens to the internal
// operator symbols. Leaf comparisons only ever use this fixed set.
var comparisonOperators = map[string]provider.FilterOperator{
	"eq": provider.OpEqual,
	"ne": provider.OpNotEqual,
	"gt": provider.OpGreaterThan,
	"ge": provider.OpGreaterThanOrEqual,
	"lt": provider.OpLessThan,
	"le": provider.OpLessThanOrEqual,
}

// stringFunctions is the supported string-function set.
var stringFunctions = map[string]provider.FilterFunction{
	"contains":    provider.FnContains,
	"startswith":  provider.FnStartsWith,
	"endswith":    provider.FnEndsWith,
	"substringof": provider.FnSubstringOf,
}

// ParseFilter parses a raw $filter expression into a filter tree.
//
// The grammar is resolved by recursive descent over the raw text: the
// expression is split on " and " first, then " or ", both recognized only
// at parenthesis depth 0 and outside quoted strings. Splitting on AND
// before OR makes AND the outermost connective in unparenthesized mixed
// expressions, the reverse of conventional boolean precedence. That
// grouping is intentional observed behavior; TestParseFilterMixedAndOrGrouping
// pins it down. Do not swap the split order without revisiting that test.
func ParseFilter(raw string) (*provider.FilterExpression, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, invalidFilter("filter expression is empty")
	}
	if err := validateBalance(s); err != nil {
		return nil, err
	}
	return parseExpression(s)
}

func parseExpression(s string) (*provider.FilterExpression, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidFilter("empty sub-expression")
	}

	// AND split runs before OR split; see ParseFilter.
	if parts := splitTopLevel(s, " and "); len(parts) > 1 {
		return parseLogical(provider.LogicalAnd, parts)
	}
	if parts := splitTopLevel(s, " or "); len(parts) > 1 {
		return parseLogical(provider.LogicalOr, parts)
	}

	if rest, ok := strings.CutPrefix(s, "not "); ok {
		operand, err := parseExpression(rest)
		if err != nil {
			return nil, err
		}
		return provider.Not(operand), nil
	}

	if isFullyParenthesized(s) {
		return parseExpression(s[1 : len(s)-1])
	}

	if expr, ok, err := parseStringFunction(s); ok || err != nil {
		return expr, err
	}

	return parseComparison(s)
}

func parseLogical(op provider.LogicalOperator, parts []string) (*provider.FilterExpression, error) {
	operands := make([]*provider.FilterExpression, 0, len(parts))
	for _, part := range parts {
		operand, err := parseExpression(part)
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}
	return provider.Logical(op, operands...), nil
}

// parseStringFunction matches the form name(field,'literal') for the
// supported string functions. Returns ok=false when s is not a function
// call at all, so the caller can fall through to comparison parsing.
func parseStringFunction(s string) (*provider.FilterExpression, bool, error) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return nil, false, nil
	}

	name := strings.TrimSpace(s[:open])
	fn, known := stringFunctions[strings.ToLower(name)]
	if !known {
		return nil, false, nil
	}

	args := splitTopLevelRune(s[open+1:len(s)-1], ',')
	if len(args) != 2 {
		return nil, true, invalidFilter("%s expects two arguments, got %d", name, len(args))
	}

	field := strings.TrimSpace(args[0])
	if field == "" {
		return nil, true, invalidFilter("%s is missing its field argument", name)
	}

	literal := strings.TrimSpace(args[1])
	if literal == "" || literal[0] != '\'' {
		return nil, true, invalidFilter("%s expects a quoted string argument, got %q", name, literal)
	}
	value, err := parseLiteral(literal)
	if err != nil {
		return nil, true, err
	}

	return provider.Function(fn, field, value.(string)), true, nil
}

// parseComparison matches the leaf form "field OP literal". The literal
// may contain spaces inside quotes, so only the first two whitespace
// separated tokens are structural.
func parseComparison(s string) (*provider.FilterExpression, error) {
	field, rest, ok := cutField(s)
	if !ok {
		return nil, unsupportedConstruct(s)
	}

	opToken, literal, ok := cutField(rest)
	if !ok {
		return nil, unsupportedConstruct(s)
	}

	op, known := comparisonOperators[strings.ToLower(opToken)]
	if !known {
		return nil, unsupportedConstruct(s)
	}

	value, err := parseLiteral(strings.TrimSpace(literal))
	if err != nil {
		return nil, err
	}

	return provider.Comparison(field, op, value), nil
}

// cutField splits off the first whitespace-delimited token.
func cutField(s string) (token, rest string, ok bool) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], strings.TrimSpace(s[idx+1:]), true
}

// parseLiteral types a literal from its lexical form: quoted string,
// number, true, false or null.
func parseLiteral(literal string) (interface{}, error) {
	if literal == "" {
		return nil, invalidFilter("missing literal value")
	}

	if literal[0] == '\'' {
		if len(literal) < 2 || literal[len(literal)-1] != '\'' {
			return nil, invalidFilter("unterminated string literal %q", literal)
		}
		inner := literal[1 : len(literal)-1]
		return strings.ReplaceAll(inner, "''", "'"), nil
	}

	switch strings.ToLower(literal) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}

	if num, err := decimal.NewFromString(literal); err == nil {
		return num, nil
	}

	return nil, invalidFilter("unrecognized literal %q: expected a quoted string, number, true, false or null", literal)
}

func unsupportedConstruct(s string) *QueryError {
	return invalidFilter(
		"unsupported filter expression %q: expected a comparison (eq, ne, gt, ge, lt, le) or string function (contains, startswith, endswith, substringof)", s)
}

package gormstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/objectql/odata/provider"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateIdentifier guards column names before they reach SQL text.
// Field names arrive from query strings, never from a trusted source.
func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("gormstore: invalid field name %q", name)
	}
	return nil
}

const likeEscapeClause = "ESCAPE '\\'"

func escapeLikePattern(value string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"%", "\\%",
		"_", "\\_",
	)
	return replacer.Replace(value)
}

func buildLikeComparison(columnName string, value interface{}, prefixWildcard bool, suffixWildcard bool) (string, []interface{}) {
	pattern := escapeLikePattern(fmt.Sprint(value))
	if prefixWildcard {
		pattern = "%" + pattern
	}
	if suffixWildcard {
		pattern = pattern + "%"
	}

	return fmt.Sprintf("%s LIKE ? %s", columnName, likeEscapeClause), []interface{}{pattern}
}

var comparisonSQL = map[provider.FilterOperator]string{
	provider.OpEqual:              "=",
	provider.OpNotEqual:           "<>",
	provider.OpGreaterThan:        ">",
	provider.OpGreaterThanOrEqual: ">=",
	provider.OpLessThan:           "<",
	provider.OpLessThanOrEqual:    "<=",
}

// buildCondition translates a filter tree into a SQL condition with
// placeholder arguments.
func buildCondition(expr *provider.FilterExpression) (string, []interface{}, error) {
	switch expr.Kind {
	case provider.KindComparison:
		return buildComparison(expr)
	case provider.KindLogical:
		return buildLogical(expr)
	case provider.KindNot:
		inner, args, err := buildCondition(expr.Operands[0])
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("NOT (%s)", inner), args, nil
	case provider.KindFunction:
		return buildFunction(expr)
	}
	return "", nil, fmt.Errorf("gormstore: unsupported filter node kind %d", expr.Kind)
}

func buildComparison(expr *provider.FilterExpression) (string, []interface{}, error) {
	if err := validateIdentifier(expr.Property); err != nil {
		return "", nil, err
	}

	if expr.Operator == provider.OpIn {
		values, ok := expr.Value.([]interface{})
		if !ok {
			return "", nil, fmt.Errorf("gormstore: in operator requires a value list")
		}
		return fmt.Sprintf("%s IN ?", expr.Property), []interface{}{values}, nil
	}

	if expr.Value == nil {
		switch expr.Operator {
		case provider.OpEqual:
			return fmt.Sprintf("%s IS NULL", expr.Property), nil, nil
		case provider.OpNotEqual:
			return fmt.Sprintf("%s IS NOT NULL", expr.Property), nil, nil
		default:
			return "", nil, fmt.Errorf("gormstore: operator %q cannot compare against null", expr.Operator)
		}
	}

	sqlOp, ok := comparisonSQL[expr.Operator]
	if !ok {
		return "", nil, fmt.Errorf("gormstore: unsupported comparison operator %q", expr.Operator)
	}
	return fmt.Sprintf("%s %s ?", expr.Property, sqlOp), []interface{}{expr.Value}, nil
}

func buildLogical(expr *provider.FilterExpression) (string, []interface{}, error) {
	var joiner string
	switch expr.Logical {
	case provider.LogicalAnd:
		joiner = " AND "
	case provider.LogicalOr:
		joiner = " OR "
	default:
		return "", nil, fmt.Errorf("gormstore: unsupported logical operator %q", expr.Logical)
	}

	conditions := make([]string, 0, len(expr.Operands))
	var args []interface{}
	for _, operand := range expr.Operands {
		condition, operandArgs, err := buildCondition(operand)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, "("+condition+")")
		args = append(args, operandArgs...)
	}
	return strings.Join(conditions, joiner), args, nil
}

func buildFunction(expr *provider.FilterExpression) (string, []interface{}, error) {
	if err := validateIdentifier(expr.Property); err != nil {
		return "", nil, err
	}

	switch expr.Function {
	case provider.FnContains, provider.FnSubstringOf:
		condition, args := buildLikeComparison(expr.Property, expr.Value, true, true)
		return condition, args, nil
	case provider.FnStartsWith:
		condition, args := buildLikeComparison(expr.Property, expr.Value, false, true)
		return condition, args, nil
	case provider.FnEndsWith:
		condition, args := buildLikeComparison(expr.Property, expr.Value, true, false)
		return condition, args, nil
	}
	return "", nil, fmt.Errorf("gormstore: unsupported function %q", expr.Function)
}

// buildSearchCondition matches the term against every textual field of
// the object type with OR-joined LIKE clauses. No textual fields means
// no matches.
func buildSearchCondition(meta *provider.ObjectMetadata, term string) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	for _, field := range meta.Fields {
		if !field.Type.IsTextual() {
			continue
		}
		if err := validateIdentifier(field.Name); err != nil {
			continue
		}
		condition, fieldArgs := buildLikeComparison(field.Name, term, true, true)
		conditions = append(conditions, condition)
		args = append(args, fieldArgs...)
	}
	if len(conditions) == 0 {
		return "1 = 0", nil
	}
	return strings.Join(conditions, " OR "), args
}

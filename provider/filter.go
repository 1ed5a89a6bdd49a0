package provider

// FilterKind discriminates the variants of a FilterExpression node.
type FilterKind int

const (
	// KindComparison is a leaf comparison: Property Operator Value.
	KindComparison FilterKind = iota
	// KindLogical combines Operands with Logical (and/or).
	KindLogical
	// KindNot negates its single operand in Operands[0].
	KindNot
	// KindFunction is a string function applied to Property with a
	// string Value argument.
	KindFunction
)

// FilterOperator represents filter comparison operators.
type FilterOperator string

const (
	OpEqual              FilterOperator = "eq"
	OpNotEqual           FilterOperator = "ne"
	OpGreaterThan        FilterOperator = "gt"
	OpGreaterThanOrEqual FilterOperator = "ge"
	OpLessThan           FilterOperator = "lt"
	OpLessThanOrEqual    FilterOperator = "le"

	// OpIn matches when the property value is contained in Value, which
	// must be a []interface{}. It has no wire syntax; the expand
	// orchestrator uses it to fetch related records by key set.
	OpIn FilterOperator = "in"
)

// FilterFunction represents the supported string functions.
type FilterFunction string

const (
	FnContains    FilterFunction = "contains"
	FnStartsWith  FilterFunction = "startswith"
	FnEndsWith    FilterFunction = "endswith"
	FnSubstringOf FilterFunction = "substringof"
)

// LogicalOperator represents logical operators for combining filters.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// FilterExpression is a node in a parsed filter tree. Exactly one variant
// is populated, selected by Kind:
//
//   - KindComparison: Property, Operator, Value
//   - KindLogical: Logical, Operands (two or more)
//   - KindNot: Operands[0]
//   - KindFunction: Function, Property, Value (string argument)
//
// Values carry their lexical type: string, decimal.Decimal for numbers,
// bool, or nil for the null literal.
type FilterExpression struct {
	Kind FilterKind

	Property string
	Operator FilterOperator
	Value    interface{}

	Function FilterFunction

	Logical  LogicalOperator
	Operands []*FilterExpression
}

// Comparison builds a leaf comparison node.
func Comparison(property string, op FilterOperator, value interface{}) *FilterExpression {
	return &FilterExpression{Kind: KindComparison, Property: property, Operator: op, Value: value}
}

// Logical builds a logical combination node.
func Logical(op LogicalOperator, operands ...*FilterExpression) *FilterExpression {
	return &FilterExpression{Kind: KindLogical, Logical: op, Operands: operands}
}

// Not builds a negation node.
func Not(operand *FilterExpression) *FilterExpression {
	return &FilterExpression{Kind: KindNot, Operands: []*FilterExpression{operand}}
}

// Function builds a string-function node.
func Function(fn FilterFunction, property string, argument string) *FilterExpression {
	return &FilterExpression{Kind: KindFunction, Function: fn, Property: property, Value: argument}
}

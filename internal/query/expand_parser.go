package query

import (
	"strings"

	"github.com/objectql/odata/provider"
)

// ExpandOption represents a single $expand entry, possibly carrying
// nested query options of the form NavigationProp($select=...;$filter=...).
type ExpandOption struct {
	NavigationProperty string
	Select             []string
	Filter             *provider.FilterExpression
	OrderBy            []provider.OrderByItem
	Top                *int
	Skip               *int
	Expand             []ExpandOption
}

// ParseExpand parses a raw $expand parameter into a list of expand
// specs. Entries are separated by top-level commas (parenthesis-aware);
// nested options inside parentheses use ';' as the OData sub-option
// separator, which is treated like the ordinary query-string '&'.
func ParseExpand(expandStr string) ([]ExpandOption, error) {
	parts := splitTopLevelRune(expandStr, ',')
	result := make([]ExpandOption, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		expand, err := parseSingleExpand(trimmed)
		if err != nil {
			return nil, err
		}
		result = append(result, expand)
	}

	return result, nil
}

func parseSingleExpand(expandStr string) (ExpandOption, error) {
	expand := ExpandOption{}

	idx := strings.IndexByte(expandStr, '(')
	if idx == -1 {
		expand.NavigationProperty = strings.TrimSpace(expandStr)
		return expand, nil
	}

	if !strings.HasSuffix(expandStr, ")") {
		return expand, &QueryError{
			Code:    CodeInvalidExpand,
			Target:  "$expand",
			Message: "invalid expand syntax: " + expandStr,
		}
	}

	expand.NavigationProperty = strings.TrimSpace(expandStr[:idx])
	if err := parseNestedExpandOptions(&expand, expandStr[idx+1:len(expandStr)-1]); err != nil {
		return expand, err
	}

	return expand, nil
}

// parseNestedExpandOptions parses the parenthesized option string of one
// expand entry. The supported nested options mirror the subset the
// expand orchestrator applies to related-record queries.
func parseNestedExpandOptions(expand *ExpandOption, optionsStr string) error {
	for _, part := range splitTopLevelRune(optionsStr, ';') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "$select":
			expand.Select = parseSelect(value)
		case "$filter":
			filter, err := ParseFilter(value)
			if err != nil {
				return err
			}
			expand.Filter = filter
		case "$orderby":
			orderBy, err := ParseOrderBy(value)
			if err != nil {
				return err
			}
			expand.OrderBy = orderBy
		case "$top":
			top, err := parseNonNegativeInt(value, "$top")
			if err != nil {
				return err
			}
			expand.Top = &top
		case "$skip":
			skip, err := parseNonNegativeInt(value, "$skip")
			if err != nil {
				return err
			}
			expand.Skip = &skip
		case "$expand":
			nested, err := ParseExpand(value)
			if err != nil {
				return err
			}
			expand.Expand = nested
		}
	}

	return nil
}

package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/objectql/odata/provider"
)

// Options represents the parsed OData query options of one request.
type Options struct {
	Filter  *provider.FilterExpression
	Select  []string
	OrderBy []provider.OrderByItem
	Top     *int
	Skip    *int
	Count   bool
	Search  string
	Expand  []ExpandOption
}

// Settings controls option parsing behavior. It is derived from the
// immutable service configuration.
type Settings struct {
	// EnableSearch lets $search pass through to the store. When false
	// the option is ignored entirely.
	EnableSearch bool
}

// ParseOptions translates the raw query-string values into an Options
// descriptor. Syntax errors surface as *QueryError with the offending
// option as target.
func ParseOptions(values url.Values, settings Settings) (*Options, error) {
	options := &Options{}

	if filterStr := values.Get("$filter"); filterStr != "" {
		filter, err := ParseFilter(filterStr)
		if err != nil {
			return nil, err
		}
		options.Filter = filter
	}

	if selectStr := values.Get("$select"); selectStr != "" {
		options.Select = parseSelect(selectStr)
	}

	if orderByStr := values.Get("$orderby"); orderByStr != "" {
		orderBy, err := ParseOrderBy(orderByStr)
		if err != nil {
			return nil, err
		}
		options.OrderBy = orderBy
	}

	if topStr := values.Get("$top"); topStr != "" {
		top, err := parseNonNegativeInt(topStr, "$top")
		if err != nil {
			return nil, err
		}
		options.Top = &top
	}

	if skipStr := values.Get("$skip"); skipStr != "" {
		skip, err := parseNonNegativeInt(skipStr, "$skip")
		if err != nil {
			return nil, err
		}
		options.Skip = &skip
	}

	if countStr := values.Get("$count"); countStr != "" {
		switch strings.ToLower(countStr) {
		case "true":
			options.Count = true
		case "false":
		default:
			return nil, invalidQuery("$count", "must be 'true' or 'false', got %q", countStr)
		}
	}

	if searchStr := values.Get("$search"); searchStr != "" && settings.EnableSearch {
		options.Search = searchStr
	}

	if expandStr := values.Get("$expand"); expandStr != "" {
		expand, err := ParseExpand(expandStr)
		if err != nil {
			return nil, err
		}
		options.Expand = expand
	}

	return options, nil
}

// Query converts the options into the generic query descriptor handed to
// the record store. $expand is resolved separately by the expander and is
// not part of the store query.
func (o *Options) Query() *provider.Query {
	return &provider.Query{
		Filter:  o.Filter,
		Fields:  o.Select,
		OrderBy: o.OrderBy,
		Top:     o.Top,
		Skip:    o.Skip,
		Search:  o.Search,
	}
}

// parseSelect splits a $select field list on commas.
func parseSelect(selectStr string) []string {
	parts := strings.Split(selectStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ParseOrderBy parses a $orderby clause list. Each comma-separated
// segment is "property [asc|desc]" with asc as the default direction.
func ParseOrderBy(orderByStr string) ([]provider.OrderByItem, error) {
	parts := strings.Split(orderByStr, ",")
	result := make([]provider.OrderByItem, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}

		tokens := strings.Fields(trimmed)
		item := provider.OrderByItem{Property: tokens[0]}

		if len(tokens) > 1 {
			switch strings.ToLower(tokens[1]) {
			case "desc":
				item.Descending = true
			case "asc":
			default:
				return nil, &QueryError{
					Code:    CodeInvalidOrderBy,
					Target:  "$orderby",
					Message: "invalid direction '" + tokens[1] + "', expected 'asc' or 'desc'",
				}
			}
		}
		if len(tokens) > 2 {
			return nil, &QueryError{
				Code:    CodeInvalidOrderBy,
				Target:  "$orderby",
				Message: "unexpected token '" + tokens[2] + "' in orderby segment",
			}
		}

		result = append(result, item)
	}

	return result, nil
}

// parseNonNegativeInt parses $top/$skip values.
func parseNonNegativeInt(str, paramName string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil || value < 0 {
		return 0, invalidQuery(paramName, "must be a non-negative integer, got %q", str)
	}
	return value, nil
}

package response

import (
	"fmt"
	"strings"
)

// URLComponents is the decomposition of an OData resource path relative
// to the service base path.
type URLComponents struct {
	// EntitySet is the addressed entity set name.
	EntitySet string

	// EntityKey is the single-entity key, with surrounding quotes
	// removed; empty for collection requests.
	EntityKey string

	// IsCount is set for .../$count requests.
	IsCount bool
}

// ParseURLComponents parses a resource path such as "Products",
// "Products('p1')", "Products(42)", "Products/$count" or
// "Products('p1')/$count". Deeper paths are rejected.
func ParseURLComponents(path string) (*URLComponents, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("empty resource path")
	}

	components := &URLComponents{}

	if rest, found := strings.CutSuffix(path, "/$count"); found {
		components.IsCount = true
		path = rest
	}

	if strings.Contains(path, "/") {
		return nil, fmt.Errorf("unsupported resource path %q", path)
	}

	open := strings.IndexByte(path, '(')
	if open == -1 {
		components.EntitySet = path
		return components, validateEntitySet(components.EntitySet)
	}

	if !strings.HasSuffix(path, ")") {
		return nil, fmt.Errorf("malformed key segment in %q", path)
	}

	components.EntitySet = path[:open]
	key := path[open+1 : len(path)-1]
	if key == "" {
		return nil, fmt.Errorf("empty entity key in %q", path)
	}

	// Keys may be quoted ('p1') or bare (42); quotes are stripped and
	// doubled quotes unescaped.
	if len(key) >= 2 && key[0] == '\'' && key[len(key)-1] == '\'' {
		key = strings.ReplaceAll(key[1:len(key)-1], "''", "'")
	}
	components.EntityKey = key

	return components, validateEntitySet(components.EntitySet)
}

func validateEntitySet(name string) error {
	if name == "" {
		return fmt.Errorf("missing entity set name")
	}
	if strings.HasPrefix(name, "$") {
		return fmt.Errorf("unsupported system resource %q", name)
	}
	return nil
}

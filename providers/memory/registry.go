package memory

import (
	"fmt"
	"sort"

	"github.com/objectql/odata/provider"
)

// Registry is a static SchemaRegistry built from declared object
// metadata.
type Registry struct {
	objects map[string]*provider.ObjectMetadata
	names   []string
}

// NewRegistry creates a registry over the given object types. Names are
// listed in sorted order regardless of declaration order.
func NewRegistry(objects ...provider.ObjectMetadata) *Registry {
	r := &Registry{objects: make(map[string]*provider.ObjectMetadata, len(objects))}
	for i := range objects {
		obj := objects[i]
		if _, exists := r.objects[obj.Name]; !exists {
			r.names = append(r.names, obj.Name)
		}
		r.objects[obj.Name] = &obj
	}
	sort.Strings(r.names)
	return r
}

// ListObjectTypes implements provider.SchemaRegistry.
func (r *Registry) ListObjectTypes() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// GetObjectMetadata implements provider.SchemaRegistry.
func (r *Registry) GetObjectMetadata(name string) (*provider.ObjectMetadata, error) {
	meta, ok := r.objects[name]
	if !ok {
		return nil, fmt.Errorf("object type %q not registered", name)
	}
	return meta, nil
}

package sources

import "fmt"

// Registry is the static dispatch table from Kind to adapter. It is built
// once at startup and only read afterwards, so it is safe to share.
type Registry struct {
	sources map[Kind]Source
}

// NewRegistry builds the table. Registering two adapters for the same kind,
// or an adapter with an unknown kind, is a wiring error.
func NewRegistry(srcs ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[Kind]Source, len(srcs))}
	for _, s := range srcs {
		kind := s.Kind()
		if _, err := ParseKind(string(kind)); err != nil {
			return nil, err
		}
		if _, exists := r.sources[kind]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, kind)
		}
		r.sources[kind] = s
	}
	return r, nil
}

// Get retrieves the adapter for a kind.
func (r *Registry) Get(kind Kind) (Source, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.sources[kind]
	return s, ok
}

// Has reports whether a kind is registered.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.Get(kind)
	return ok
}

// Kinds returns registered kinds in AllKinds order.
func (r *Registry) Kinds() []Kind {
	var out []Kind
	for _, k := range allKinds {
		if r.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

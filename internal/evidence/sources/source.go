// Package sources defines the uniform evidence source contract: one adapter
// per external registry or search provider, dispatched through a static
// table keyed by a closed Kind enum.
package sources

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Protocol defines the supported communication protocols for evidence sources
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
)

// Kind identifies an evidence source adapter. The set is closed: a task can
// only name a Kind, and the registry maps each Kind to exactly one adapter.
type Kind string

const (
	KindCompaniesHouse   Kind = "companies_house"
	KindOpenCorporates   Kind = "opencorporates"
	KindAviationRegistry Kind = "aviation_registry"
	KindSanctions        Kind = "opensanctions"
	KindWebSearch        Kind = "web_search"
)

var allKinds = []Kind{
	KindCompaniesHouse,
	KindOpenCorporates,
	KindAviationRegistry,
	KindSanctions,
	KindWebSearch,
}

// AllKinds returns every supported kind in a stable order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown evidence source %q", s)
}

func (k Kind) String() string { return string(k) }

// Label is the human-readable name used in the evidence context.
func (k Kind) Label() string {
	switch k {
	case KindCompaniesHouse:
		return "UK Companies House registry"
	case KindOpenCorporates:
		return "OpenCorporates company registry"
	case KindAviationRegistry:
		return "Aircraft registry"
	case KindSanctions:
		return "Sanctions and PEP screening"
	case KindWebSearch:
		return "Adverse media web search"
	default:
		return string(k)
	}
}

// Params are provider-specific query parameters (e.g. "name", "jurisdiction",
// "registration").
type Params map[string]string

// Get returns a trimmed parameter value.
func (p Params) Get(key string) string {
	return strings.TrimSpace(p[key])
}

// CacheKey is a deterministic rendering of the parameters.
func (p Params) CacheKey() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.ToLower(strings.TrimSpace(p[k])))
	}
	return b.String()
}

// FieldCapability advertises which fields a source exposes
type FieldCapability struct {
	FieldName  string
	Available  bool
	Filterable bool
}

// Capabilities describes what a source supports
type Capabilities struct {
	Protocol Protocol
	Kind     Kind
	Fields   []FieldCapability
	Version  string
	Filters  []string // Required or optional Params keys
}

// Evidence is the generic result from any source
type Evidence struct {
	Kind       Kind              `json:"kind"`
	SourceID   string            `json:"source_id"`
	Confidence float64           `json:"confidence"`
	Facts      map[string]any    `json:"facts"`
	CheckedAt  time.Time         `json:"checked_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Source is the universal interface all evidence adapters implement.
//
// Lookup returns evidence on success, a *ProviderError with ErrorNotFound when
// the source was checked and had nothing, and any other error on failure.
type Source interface {
	Kind() Kind
	Capabilities() Capabilities
	Lookup(ctx context.Context, params Params) (*Evidence, error)
}

// Package sector holds the static table of sector leniency policies and the
// total resolver that maps any caller input onto exactly one of them.
package sector

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Key identifies a sector policy. The set is closed and always contains General.
type Key string

const (
	General        Key = "general"
	Aviation       Key = "aviation"
	Maritime       Key = "maritime"
	FineArt        Key = "fine_art"
	RealEstate     Key = "real_estate"
	LuxuryVehicles Key = "luxury_vehicles"
	JewelryWatches Key = "jewelry_watches"
)

// AutoDetect asks for the sector to be inferred rather than declared.
const AutoDetect = "auto-detect"

var keys = []Key{General, Aviation, Maritime, FineArt, RealEstate, LuxuryVehicles, JewelryWatches}

// Keys returns every sector key in table order.
func Keys() []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	return out
}

func (k Key) String() string { return string(k) }

// Valid reports whether k is a member of the closed set.
func (k Key) Valid() bool {
	for _, known := range keys {
		if k == known {
			return true
		}
	}
	return false
}

// Policy describes what counts as normal, what must be evidenced and what is
// disqualifying for one sector. Policies are immutable and shared.
type Policy struct {
	Key              Key      `yaml:"key" json:"key"`
	Name             string   `yaml:"name" json:"name"`
	Description      string   `yaml:"description" json:"description"`
	Aliases          []string `yaml:"aliases" json:"aliases,omitempty"`
	NormalSignals    []string `yaml:"normal_signals" json:"normal_signals"`
	RequiredEvidence []string `yaml:"required_evidence" json:"required_evidence"`
	RedFlags         []string `yaml:"red_flags" json:"red_flags"`
}

// RulesText renders the policy for inclusion in the assessment prompt.
func (p Policy) RulesText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SECTOR POLICY: %s (%s)\n", p.Name, p.Key)
	if p.Description != "" {
		b.WriteString(p.Description)
		b.WriteByte('\n')
	}
	writeList(&b, "Accepted as normal in this sector (do not penalise):", p.NormalSignals)
	writeList(&b, "Evidence expected for this sector:", p.RequiredEvidence)
	writeList(&b, "Hard red flags (always raise risk):", p.RedFlags)
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title)
	b.WriteByte('\n')
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteByte('\n')
	}
}

//go:embed policies.yaml
var policiesYAML []byte

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// table is built once at init and only read afterwards.
var table = mustLoad(policiesYAML)

func mustLoad(raw []byte) map[Key]Policy {
	t, err := load(raw)
	if err != nil {
		panic(fmt.Sprintf("sector: invalid policy table: %v", err))
	}
	return t
}

func load(raw []byte) (map[Key]Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	t := make(map[Key]Policy, len(f.Policies))
	for _, p := range f.Policies {
		if !p.Key.Valid() {
			return nil, fmt.Errorf("unknown sector key %q", p.Key)
		}
		if _, dup := t[p.Key]; dup {
			return nil, fmt.Errorf("duplicate sector key %q", p.Key)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("sector %q has no name", p.Key)
		}
		t[p.Key] = p
	}
	for _, k := range keys {
		if _, ok := t[k]; !ok {
			return nil, fmt.Errorf("sector %q missing from table", k)
		}
	}
	return t, nil
}

// Lookup returns the policy for a key. Unknown keys yield the general policy
// and false.
func Lookup(k Key) (Policy, bool) {
	p, ok := table[k]
	if !ok {
		return table[General], false
	}
	return p, true
}

// All returns every policy in table order.
func All() []Policy {
	out := make([]Policy, 0, len(keys))
	for _, k := range keys {
		out = append(out, table[k])
	}
	return out
}

package sector

import (
	"sort"
	"strings"
)

// Confidence grades how directly the input named a sector.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Resolution is the result of resolving caller input to a policy.
type Resolution struct {
	Policy     Policy
	Confidence Confidence
	// Requested is the caller's raw input, trimmed.
	Requested string
	// AutoDetect is set when the caller asked for the sector to be inferred.
	AutoDetect bool
}

// Key is a shortcut for r.Policy.Key.
func (r Resolution) Key() Key { return r.Policy.Key }

type alias struct {
	text string
	key  Key
}

// aliases is sorted longest first so "private jet" wins over "jet".
var aliases = buildAliases()

func buildAliases() []alias {
	var out []alias
	for _, k := range keys {
		out = append(out, alias{text: normalize(string(k)), key: k})
		for _, a := range table[k].Aliases {
			out = append(out, alias{text: normalize(a), key: k})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].text) > len(out[j].text) })
	return out
}

// Resolve maps any input onto exactly one policy. It never fails: empty,
// auto-detect and unrecognised input resolve to General with low confidence.
func Resolve(input string) Resolution {
	requested := strings.TrimSpace(input)
	res := Resolution{Requested: requested}

	norm := normalize(requested)
	if norm == "" || norm == normalize(AutoDetect) || norm == "auto" {
		res.AutoDetect = norm != ""
		res.Policy, res.Confidence = table[General], ConfidenceLow
		return res
	}

	if p, ok := table[Key(strings.ReplaceAll(norm, " ", "_"))]; ok {
		res.Policy, res.Confidence = p, ConfidenceHigh
		return res
	}

	for _, a := range aliases {
		if norm == a.text {
			res.Policy, res.Confidence = table[a.key], ConfidenceMedium
			return res
		}
	}
	for _, a := range aliases {
		if containsWord(norm, a.text) {
			res.Policy, res.Confidence = table[a.key], ConfidenceMedium
			return res
		}
	}

	res.Policy, res.Confidence = table[General], ConfidenceLow
	return res
}

// normalize lower-cases and collapses separators to single spaces.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ", "/", " ", "&", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func containsWord(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

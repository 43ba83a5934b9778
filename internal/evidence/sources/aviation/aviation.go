// Package aviation adapts an aircraft registry lookup keyed by registration
// mark (tail number).
package aviation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"diligence/internal/evidence/sources"
)

const version = "v1.0.0"

// Source looks up aircraft by registration mark.
type Source struct {
	client *sources.HTTPClient
}

func New(baseURL, apiKey string, opts ...sources.ClientOption) *Source {
	opts = append([]sources.ClientOption{sources.WithHeader("X-API-Key", apiKey)}, opts...)
	return &Source{client: sources.NewHTTPClient(sources.KindAviationRegistry, baseURL, opts...)}
}

func (s *Source) Kind() sources.Kind { return sources.KindAviationRegistry }

func (s *Source) Capabilities() sources.Capabilities {
	return sources.Capabilities{
		Protocol: sources.ProtocolHTTP,
		Kind:     sources.KindAviationRegistry,
		Version:  version,
		Fields: []sources.FieldCapability{
			{FieldName: "registration", Available: true, Filterable: true},
			{FieldName: "manufacturer", Available: true},
			{FieldName: "model", Available: true},
			{FieldName: "registered_owner", Available: true},
			{FieldName: "registration_status", Available: true},
		},
		Filters: []string{"registration", "name"},
	}
}

// Lookup resolves the registration. When a subject name is supplied the
// evidence records whether it matches the registered owner.
func (s *Source) Lookup(ctx context.Context, params sources.Params) (*sources.Evidence, error) {
	raw, err := sources.RequireParam(sources.KindAviationRegistry, params, "registration")
	if err != nil {
		return nil, err
	}
	reg := NormalizeRegistration(raw)
	if !ValidRegistration(reg) {
		return nil, sources.NewProviderError(sources.ErrorInvalidParams, sources.KindAviationRegistry, fmt.Sprintf("malformed registration %q", raw), nil)
	}
	status, body, err := s.client.GetJSON(ctx, "/aircraft/"+url.PathEscape(reg), nil)
	if err != nil {
		return nil, err
	}
	return parseAircraftResponse(status, body, reg, params.Get("name"))
}

// NormalizeRegistration upper-cases a mark and drops whitespace.
func NormalizeRegistration(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// ValidRegistration reports whether s has the shape of an ICAO registration
// mark: 3 to 10 letters, digits or hyphens, containing at least one letter.
func ValidRegistration(s string) bool {
	if len(s) < 3 || len(s) > 10 {
		return false
	}
	letters := 0
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
		case r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return letters > 0
}

type aircraftResponse struct {
	Registration   string `json:"registration"`
	Manufacturer   string `json:"manufacturer"`
	Model          string `json:"model"`
	SerialNumber   string `json:"serial_number"`
	YearBuilt      int    `json:"year_built"`
	Status         string `json:"status"`
	Registry       string `json:"registry"`
	RegisteredOn   string `json:"registered_on"`
	DeregisteredOn string `json:"deregistered_on"`
	Operator       string `json:"operator"`
	Owner          struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"owner"`
}

func parseAircraftResponse(status int, body []byte, reg, subject string) (*sources.Evidence, error) {
	if status != http.StatusOK {
		return nil, sources.ErrorFromStatus(sources.KindAviationRegistry, status, body)
	}
	var resp aircraftResponse
	if err := sources.DecodeJSON(sources.KindAviationRegistry, body, &resp); err != nil {
		return nil, err
	}
	if resp.Registration == "" {
		return nil, sources.NotFoundError(sources.KindAviationRegistry, fmt.Sprintf("registration %s not on register", reg))
	}

	facts := map[string]any{
		"registration":        resp.Registration,
		"manufacturer":        resp.Manufacturer,
		"model":               resp.Model,
		"registration_status": resp.Status,
		"registered_owner":    resp.Owner.Name,
	}
	if resp.SerialNumber != "" {
		facts["serial_number"] = resp.SerialNumber
	}
	if resp.YearBuilt > 0 {
		facts["year_built"] = resp.YearBuilt
	}
	if resp.Owner.Country != "" {
		facts["owner_country"] = resp.Owner.Country
	}
	if resp.Operator != "" {
		facts["operator"] = resp.Operator
	}
	if resp.RegisteredOn != "" {
		facts["registered_on"] = resp.RegisteredOn
	}
	if resp.DeregisteredOn != "" {
		facts["deregistered_on"] = resp.DeregisteredOn
	}

	confidence := 0.9
	if subject != "" {
		match := ownerMatches(resp.Owner.Name, subject) || ownerMatches(resp.Operator, subject)
		facts["owner_matches_subject"] = match
		if match {
			confidence = 1.0
		}
	}

	metadata := map[string]string{}
	if resp.Registry != "" {
		metadata["registry"] = resp.Registry
	}

	return &sources.Evidence{
		Kind:       sources.KindAviationRegistry,
		SourceID:   resp.Registration,
		Confidence: confidence,
		Facts:      facts,
		CheckedAt:  time.Now(),
		Metadata:   metadata,
	}, nil
}

func ownerMatches(owner, subject string) bool {
	o := strings.ToLower(strings.TrimSpace(owner))
	s := strings.ToLower(strings.TrimSpace(subject))
	if o == "" || s == "" {
		return false
	}
	return strings.Contains(o, s) || strings.Contains(s, o)
}

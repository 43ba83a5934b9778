// Package opencorporates adapts the OpenCorporates company search API, which
// covers registries outside the UK.
package opencorporates

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"diligence/internal/evidence/sources"
)

const version = "v0.4"

// Source searches companies across jurisdictions.
type Source struct {
	client *sources.HTTPClient
}

// New builds an OpenCorporates adapter. The token is optional; anonymous
// access is heavily rate limited upstream.
func New(baseURL, apiToken string, opts ...sources.ClientOption) *Source {
	opts = append([]sources.ClientOption{sources.WithQueryParam("api_token", apiToken)}, opts...)
	return &Source{client: sources.NewHTTPClient(sources.KindOpenCorporates, baseURL, opts...)}
}

func (s *Source) Kind() sources.Kind { return sources.KindOpenCorporates }

func (s *Source) Capabilities() sources.Capabilities {
	return sources.Capabilities{
		Protocol: sources.ProtocolHTTP,
		Kind:     sources.KindOpenCorporates,
		Version:  version,
		Fields: []sources.FieldCapability{
			{FieldName: "company_name", Available: true},
			{FieldName: "company_number", Available: true},
			{FieldName: "jurisdiction", Available: true, Filterable: true},
			{FieldName: "current_status", Available: true},
			{FieldName: "incorporated_on", Available: true},
		},
		Filters: []string{"name", "jurisdiction"},
	}
}

func (s *Source) Lookup(ctx context.Context, params sources.Params) (*sources.Evidence, error) {
	name, err := sources.RequireParam(sources.KindOpenCorporates, params, "name")
	if err != nil {
		return nil, err
	}
	query := url.Values{"q": {name}, "per_page": {"5"}}
	if j := JurisdictionCode(params.Get("jurisdiction")); j != "" {
		query.Set("jurisdiction_code", j)
	}
	status, body, err := s.client.GetJSON(ctx, "/v0.4/companies/search", query)
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(status, body, name)
}

// JurisdictionCode normalises free-form jurisdiction input to the lower-case
// codes OpenCorporates expects ("US-DE" becomes "us_de").
func JurisdictionCode(j string) string {
	j = strings.ToLower(strings.TrimSpace(j))
	return strings.NewReplacer("-", "_", " ", "_").Replace(j)
}

type searchResponse struct {
	Results struct {
		Companies []struct {
			Company company `json:"company"`
		} `json:"companies"`
		TotalCount int `json:"total_count"`
	} `json:"results"`
}

type company struct {
	Name                    string `json:"name"`
	CompanyNumber           string `json:"company_number"`
	JurisdictionCode        string `json:"jurisdiction_code"`
	IncorporationDate       string `json:"incorporation_date"`
	DissolutionDate         string `json:"dissolution_date"`
	CompanyType             string `json:"company_type"`
	CurrentStatus           string `json:"current_status"`
	RegisteredAddressInFull string `json:"registered_address_in_full"`
	OpenCorporatesURL       string `json:"opencorporates_url"`
	Inactive                bool   `json:"inactive"`
}

func parseSearchResponse(status int, body []byte, query string) (*sources.Evidence, error) {
	if status != http.StatusOK {
		return nil, sources.ErrorFromStatus(sources.KindOpenCorporates, status, body)
	}
	var resp searchResponse
	if err := sources.DecodeJSON(sources.KindOpenCorporates, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results.Companies) == 0 {
		return nil, sources.NotFoundError(sources.KindOpenCorporates, fmt.Sprintf("no company matching %q", query))
	}

	best, confidence := resp.Results.Companies[0].Company, 0.6
	for _, c := range resp.Results.Companies {
		if strings.EqualFold(strings.TrimSpace(c.Company.Name), strings.TrimSpace(query)) {
			best, confidence = c.Company, 0.95
			break
		}
	}

	facts := map[string]any{
		"company_name":   best.Name,
		"company_number": best.CompanyNumber,
		"jurisdiction":   best.JurisdictionCode,
		"inactive":       best.Inactive,
		"total_results":  resp.Results.TotalCount,
	}
	for key, value := range map[string]string{
		"current_status":  best.CurrentStatus,
		"company_type":    best.CompanyType,
		"incorporated_on": best.IncorporationDate,
		"dissolved_on":    best.DissolutionDate,
		"address":         best.RegisteredAddressInFull,
	} {
		if value != "" {
			facts[key] = value
		}
	}

	metadata := map[string]string{}
	if best.OpenCorporatesURL != "" {
		metadata["url"] = best.OpenCorporatesURL
	}

	return &sources.Evidence{
		Kind:       sources.KindOpenCorporates,
		SourceID:   best.JurisdictionCode + "/" + best.CompanyNumber,
		Confidence: confidence,
		Facts:      facts,
		CheckedAt:  time.Now(),
		Metadata:   metadata,
	}, nil
}

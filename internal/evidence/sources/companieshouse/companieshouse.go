// Package companieshouse adapts the UK Companies House public data API.
package companieshouse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"diligence/internal/evidence/sources"
)

const version = "v1.0.0"

// Source looks up UK-registered companies by name or company number.
type Source struct {
	client *sources.HTTPClient
}

// New builds a Companies House adapter. The API key is sent as the basic-auth
// username.
func New(baseURL, apiKey string, opts ...sources.ClientOption) *Source {
	opts = append([]sources.ClientOption{sources.WithBasicAuthUser(apiKey)}, opts...)
	return &Source{client: sources.NewHTTPClient(sources.KindCompaniesHouse, baseURL, opts...)}
}

func (s *Source) Kind() sources.Kind { return sources.KindCompaniesHouse }

func (s *Source) Capabilities() sources.Capabilities {
	return sources.Capabilities{
		Protocol: sources.ProtocolHTTP,
		Kind:     sources.KindCompaniesHouse,
		Version:  version,
		Fields: []sources.FieldCapability{
			{FieldName: "company_name", Available: true},
			{FieldName: "company_number", Available: true, Filterable: true},
			{FieldName: "company_status", Available: true},
			{FieldName: "incorporated_on", Available: true},
			{FieldName: "address", Available: true},
		},
		Filters: []string{"name", "company_number"},
	}
}

// Lookup fetches the company profile when a company number is supplied and
// falls back to a name search otherwise.
func (s *Source) Lookup(ctx context.Context, params sources.Params) (*sources.Evidence, error) {
	if number := params.Get("company_number"); number != "" {
		status, body, err := s.client.GetJSON(ctx, "/company/"+url.PathEscape(number), nil)
		if err != nil {
			return nil, err
		}
		return parseProfileResponse(status, body)
	}

	name, err := sources.RequireParam(sources.KindCompaniesHouse, params, "name")
	if err != nil {
		return nil, err
	}
	status, body, err := s.client.GetJSON(ctx, "/search/companies", url.Values{
		"q":              {name},
		"items_per_page": {"5"},
	})
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(status, body, name)
}

type searchResponse struct {
	TotalResults int             `json:"total_results"`
	Items        []companyRecord `json:"items"`
}

type companyRecord struct {
	Title                   string         `json:"title"`
	CompanyName             string         `json:"company_name"`
	CompanyNumber           string         `json:"company_number"`
	CompanyStatus           string         `json:"company_status"`
	CompanyType             string         `json:"company_type"`
	DateOfCreation          string         `json:"date_of_creation"`
	DateOfCessation         string         `json:"date_of_cessation"`
	AddressSnippet          string         `json:"address_snippet"`
	RegisteredOfficeAddress *officeAddress `json:"registered_office_address"`
	HasInsolvencyHistory    bool           `json:"has_insolvency_history"`
	HasCharges              bool           `json:"has_charges"`
}

type officeAddress struct {
	AddressLine1 string `json:"address_line_1"`
	Locality     string `json:"locality"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

func (c companyRecord) name() string {
	if c.CompanyName != "" {
		return c.CompanyName
	}
	return c.Title
}

func (c companyRecord) address() string {
	if c.AddressSnippet != "" {
		return c.AddressSnippet
	}
	if a := c.RegisteredOfficeAddress; a != nil {
		parts := make([]string, 0, 4)
		for _, p := range []string{a.AddressLine1, a.Locality, a.PostalCode, a.Country} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func (c companyRecord) facts() map[string]any {
	facts := map[string]any{
		"company_name":   c.name(),
		"company_number": c.CompanyNumber,
		"company_status": c.CompanyStatus,
	}
	if c.CompanyType != "" {
		facts["company_type"] = c.CompanyType
	}
	if c.DateOfCreation != "" {
		facts["incorporated_on"] = c.DateOfCreation
	}
	if c.DateOfCessation != "" {
		facts["dissolved_on"] = c.DateOfCessation
	}
	if addr := c.address(); addr != "" {
		facts["address"] = addr
	}
	if c.HasInsolvencyHistory {
		facts["insolvency_history"] = true
	}
	if c.HasCharges {
		facts["has_charges"] = true
	}
	return facts
}

func parseSearchResponse(status int, body []byte, query string) (*sources.Evidence, error) {
	if status != http.StatusOK {
		return nil, sources.ErrorFromStatus(sources.KindCompaniesHouse, status, body)
	}
	var resp searchResponse
	if err := sources.DecodeJSON(sources.KindCompaniesHouse, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, sources.NotFoundError(sources.KindCompaniesHouse, fmt.Sprintf("no company matching %q", query))
	}

	best, confidence := resp.Items[0], 0.6
	for _, item := range resp.Items {
		if strings.EqualFold(strings.TrimSpace(item.name()), strings.TrimSpace(query)) {
			best, confidence = item, 1.0
			break
		}
	}

	facts := best.facts()
	facts["total_results"] = resp.TotalResults
	if len(resp.Items) > 1 {
		others := make([]string, 0, len(resp.Items)-1)
		for _, item := range resp.Items {
			if item.CompanyNumber != best.CompanyNumber {
				others = append(others, fmt.Sprintf("%s (%s)", item.name(), item.CompanyNumber))
			}
		}
		facts["other_matches"] = others
	}

	return &sources.Evidence{
		Kind:       sources.KindCompaniesHouse,
		SourceID:   best.CompanyNumber,
		Confidence: confidence,
		Facts:      facts,
		CheckedAt:  time.Now(),
	}, nil
}

func parseProfileResponse(status int, body []byte) (*sources.Evidence, error) {
	if status != http.StatusOK {
		return nil, sources.ErrorFromStatus(sources.KindCompaniesHouse, status, body)
	}
	var rec companyRecord
	if err := sources.DecodeJSON(sources.KindCompaniesHouse, body, &rec); err != nil {
		return nil, err
	}
	if rec.CompanyNumber == "" {
		return nil, sources.NewProviderError(sources.ErrorContractMismatch, sources.KindCompaniesHouse, "profile without company_number", nil)
	}
	return &sources.Evidence{
		Kind:       sources.KindCompaniesHouse,
		SourceID:   rec.CompanyNumber,
		Confidence: 1.0,
		Facts:      rec.facts(),
		CheckedAt:  time.Now(),
	}, nil
}

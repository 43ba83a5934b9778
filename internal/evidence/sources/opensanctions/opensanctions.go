// Package opensanctions adapts the OpenSanctions search API for sanctions
// and politically exposed person screening.
package opensanctions

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"time"

	"diligence/internal/evidence/sources"
)

const (
	version       = "v3"
	defaultCutoff = 0.7
	maxMatches    = 5
)

// Source screens names against the default OpenSanctions collection.
type Source struct {
	client *sources.HTTPClient
	cutoff float64
}

// New builds a screening adapter. Hits scoring below cutoff are ignored; a
// non-positive cutoff selects the default.
func New(baseURL, apiKey string, cutoff float64, opts ...sources.ClientOption) *Source {
	if apiKey != "" {
		opts = append([]sources.ClientOption{sources.WithHeader("Authorization", "ApiKey "+apiKey)}, opts...)
	}
	if cutoff <= 0 || cutoff > 1 {
		cutoff = defaultCutoff
	}
	return &Source{
		client: sources.NewHTTPClient(sources.KindSanctions, baseURL, opts...),
		cutoff: cutoff,
	}
}

func (s *Source) Kind() sources.Kind { return sources.KindSanctions }

func (s *Source) Capabilities() sources.Capabilities {
	return sources.Capabilities{
		Protocol: sources.ProtocolHTTP,
		Kind:     sources.KindSanctions,
		Version:  version,
		Fields: []sources.FieldCapability{
			{FieldName: "sanctioned", Available: true},
			{FieldName: "politically_exposed", Available: true},
			{FieldName: "matches", Available: true},
		},
		Filters: []string{"name", "jurisdiction"},
	}
}

func (s *Source) Lookup(ctx context.Context, params sources.Params) (*sources.Evidence, error) {
	name, err := sources.RequireParam(sources.KindSanctions, params, "name")
	if err != nil {
		return nil, err
	}
	query := url.Values{"q": {name}, "limit": {"10"}}
	if j := params.Get("jurisdiction"); j != "" {
		query.Set("countries", j)
	}
	status, body, err := s.client.GetJSON(ctx, "/search/default", query)
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(status, body, name, s.cutoff)
}

type searchResponse struct {
	Results []entity `json:"results"`
}

type entity struct {
	ID         string   `json:"id"`
	Caption    string   `json:"caption"`
	Schema     string   `json:"schema"`
	Score      float64  `json:"score"`
	Datasets   []string `json:"datasets"`
	Properties struct {
		Topics  []string `json:"topics"`
		Country []string `json:"country"`
	} `json:"properties"`
}

// Match is one screening hit above the cutoff.
type Match struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Schema   string   `json:"schema"`
	Score    float64  `json:"score"`
	Topics   []string `json:"topics,omitempty"`
	Datasets []string `json:"datasets,omitempty"`
}

func parseSearchResponse(status int, body []byte, name string, cutoff float64) (*sources.Evidence, error) {
	if status != http.StatusOK {
		return nil, sources.ErrorFromStatus(sources.KindSanctions, status, body)
	}
	var resp searchResponse
	if err := sources.DecodeJSON(sources.KindSanctions, body, &resp); err != nil {
		return nil, err
	}

	var matches []Match
	sanctioned, pep := false, false
	for _, e := range resp.Results {
		if e.Score < cutoff {
			continue
		}
		topics := e.Properties.Topics
		if slices.Contains(topics, "sanction") {
			sanctioned = true
		}
		if slices.Contains(topics, "role.pep") || slices.Contains(topics, "role.rca") {
			pep = true
		}
		matches = append(matches, Match{
			ID:       e.ID,
			Name:     e.Caption,
			Schema:   e.Schema,
			Score:    e.Score,
			Topics:   topics,
			Datasets: e.Datasets,
		})
	}
	if len(matches) == 0 {
		return nil, sources.NotFoundError(sources.KindSanctions,
			fmt.Sprintf("no sanctions or PEP matches for %q above score %.2f", name, cutoff))
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}

	return &sources.Evidence{
		Kind:       sources.KindSanctions,
		SourceID:   matches[0].ID,
		Confidence: matches[0].Score,
		Facts: map[string]any{
			"sanctioned":          sanctioned,
			"politically_exposed": pep,
			"match_count":         len(matches),
			"matches":             matches,
		},
		CheckedAt: time.Now(),
	}, nil
}

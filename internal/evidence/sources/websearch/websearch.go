// Package websearch adapts a Serper-style web search API for adverse-media
// screening.
package websearch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"diligence/internal/evidence/sources"
)

const (
	version    = "v1.0.0"
	resultsMax = 10
)

// AdverseTerms are appended to the subject name to bias results towards
// negative coverage.
var AdverseTerms = []string{"fraud", "scam", "lawsuit", "sanctions", "money laundering", "investigation", "seized"}

// Source runs adverse-media searches.
type Source struct {
	client *sources.HTTPClient
}

func New(baseURL, apiKey string, opts ...sources.ClientOption) *Source {
	opts = append([]sources.ClientOption{sources.WithHeader("X-API-KEY", apiKey)}, opts...)
	return &Source{client: sources.NewHTTPClient(sources.KindWebSearch, baseURL, opts...)}
}

func (s *Source) Kind() sources.Kind { return sources.KindWebSearch }

func (s *Source) Capabilities() sources.Capabilities {
	return sources.Capabilities{
		Protocol: sources.ProtocolHTTP,
		Kind:     sources.KindWebSearch,
		Version:  version,
		Fields: []sources.FieldCapability{
			{FieldName: "results", Available: true},
			{FieldName: "adverse_hits", Available: true},
		},
		Filters: []string{"name", "query"},
	}
}

// Lookup searches for the subject combined with adverse terms. A "query"
// parameter overrides the generated query.
func (s *Source) Lookup(ctx context.Context, params sources.Params) (*sources.Evidence, error) {
	query := params.Get("query")
	if query == "" {
		name, err := sources.RequireParam(sources.KindWebSearch, params, "name")
		if err != nil {
			return nil, err
		}
		query = BuildQuery(name)
	}
	status, body, err := s.client.PostJSON(ctx, "/search", searchRequest{Q: query, Num: resultsMax})
	if err != nil {
		return nil, err
	}
	return parseSearchResponse(status, body, query)
}

// BuildQuery quotes the subject name and ORs the adverse terms.
func BuildQuery(name string) string {
	terms := make([]string, len(AdverseTerms))
	for i, t := range AdverseTerms {
		if strings.Contains(t, " ") {
			t = `"` + t + `"`
		}
		terms[i] = t
	}
	phrase := strings.TrimSpace(strings.ReplaceAll(name, `"`, ""))
	return `"` + phrase + `" (` + strings.Join(terms, " OR ") + ")"
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic"`
}

// Result is one search hit as handed to the evidence context.
type Result struct {
	Title   string   `json:"title"`
	Link    string   `json:"link"`
	Snippet string   `json:"snippet"`
	Date    string   `json:"date,omitempty"`
	Terms   []string `json:"adverse_terms,omitempty"`
}

func parseSearchResponse(status int, body []byte, query string) (*sources.Evidence, error) {
	if status != http.StatusOK {
		return nil, sources.ErrorFromStatus(sources.KindWebSearch, status, body)
	}
	var resp searchResponse
	if err := sources.DecodeJSON(sources.KindWebSearch, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Organic) == 0 {
		return nil, sources.NotFoundError(sources.KindWebSearch, "no web results")
	}

	results := make([]Result, 0, len(resp.Organic))
	adverse := 0
	for _, o := range resp.Organic {
		if len(results) == resultsMax {
			break
		}
		r := Result{Title: o.Title, Link: o.Link, Snippet: o.Snippet, Date: o.Date}
		r.Terms = matchedTerms(o.Title + " " + o.Snippet)
		if len(r.Terms) > 0 {
			adverse++
		}
		results = append(results, r)
	}

	return &sources.Evidence{
		Kind:       sources.KindWebSearch,
		SourceID:   query,
		Confidence: 0.5,
		Facts: map[string]any{
			"result_count": len(results),
			"adverse_hits": adverse,
			"results":      results,
		},
		CheckedAt: time.Now(),
	}, nil
}

func matchedTerms(text string) []string {
	text = strings.ToLower(text)
	var out []string
	for _, t := range AdverseTerms {
		if strings.Contains(text, t) {
			out = append(out, t)
		}
	}
	return out
}

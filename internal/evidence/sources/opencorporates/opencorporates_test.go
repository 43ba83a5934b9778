package opencorporates

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligence/internal/evidence/sources"
	"diligence/internal/evidence/sources/contract"
)

const searchBody = `{
	"results": {
		"total_count": 1,
		"companies": [
			{"company": {
				"name": "Blue Harbour Marine SA",
				"company_number": "PA-4411",
				"jurisdiction_code": "pa",
				"incorporation_date": "2019-06-01",
				"current_status": "Active",
				"registered_address_in_full": "Calle 50, Panama City",
				"opencorporates_url": "https://opencorporates.com/companies/pa/PA-4411",
				"inactive": false
			}}
		]
	}
}`

func TestJurisdictionCode(t *testing.T) {
	assert.Equal(t, "us_de", JurisdictionCode(" US-DE "))
	assert.Equal(t, "pa", JurisdictionCode("PA"))
	assert.Equal(t, "", JurisdictionCode(""))
}

func TestSearchResponseParser(t *testing.T) {
	t.Run("parses company", func(t *testing.T) {
		evidence, err := parseSearchResponse(200, []byte(searchBody), "blue harbour marine sa")
		require.NoError(t, err)
		assert.Equal(t, "pa/PA-4411", evidence.SourceID)
		assert.Equal(t, 0.95, evidence.Confidence)
		assert.Equal(t, "Active", evidence.Facts["current_status"])
		assert.Equal(t, false, evidence.Facts["inactive"])
		assert.Equal(t, "https://opencorporates.com/companies/pa/PA-4411", evidence.Metadata["url"])
		assert.NotContains(t, evidence.Facts, "dissolved_on")
	})

	t.Run("no companies is not found", func(t *testing.T) {
		_, err := parseSearchResponse(200, []byte(`{"results":{"companies":[],"total_count":0}}`), "x")
		assert.Equal(t, sources.ErrorNotFound, sources.GetCategory(err))
	})

	t.Run("rate limited is retryable", func(t *testing.T) {
		_, err := parseSearchResponse(429, []byte(`{"error":"slow down"}`), "x")
		assert.Equal(t, sources.ErrorRateLimited, sources.GetCategory(err))
		assert.True(t, sources.IsRetryable(err))
	})
}

func TestSourceContract(t *testing.T) {
	var gotJurisdiction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0.4/companies/search", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("api_token"))
		gotJurisdiction = r.URL.Query().Get("jurisdiction_code")
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	src := New(srv.URL, "tok")
	suite := &contract.Suite{
		Kind:    sources.KindOpenCorporates,
		Version: version,
		Lookups: []contract.LookupTest{
			{
				Name:   "search with jurisdiction",
				Source: src,
				Params: sources.Params{"name": "Blue Harbour Marine SA", "jurisdiction": "PA"},
				ValidateFunc: func(*sources.Evidence) error {
					if gotJurisdiction != "pa" {
						return assert.AnError
					}
					return nil
				},
			},
		},
		Errors: []contract.ErrorTest{
			{Name: "missing name", Source: src, Params: sources.Params{"jurisdiction": "PA"}, ExpectedError: sources.ErrorInvalidParams},
		},
	}
	suite.Run(t)
}

package assembler

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligence/internal/evidence/sources"
	"diligence/internal/investigation/models"
	"diligence/internal/sector"
	pstrings "diligence/pkg/platform/strings"
)

func outcomes() []sources.Outcome {
	return []sources.Outcome{
		sources.Found(sources.KindCompaniesHouse, &sources.Evidence{
			Kind:       sources.KindCompaniesHouse,
			SourceID:   "01234567",
			Confidence: 1,
			CheckedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Facts: map[string]any{
				"status":        "active",
				"company_name":  "ACME HOLDINGS LTD",
				"other_matches": []string{"ACME HOLDINGS (2019) LTD"},
			},
		}),
		sources.NotFound(sources.KindSanctions, "no matches above 0.70"),
		sources.Failed(sources.KindWebSearch,
			sources.NewProviderError(sources.ErrorTimeout, sources.KindWebSearch, "no response within 20s", errors.New("deadline"))),
	}
}

func TestAssemble_StatusLines(t *testing.T) {
	a := New(Budget{})
	req := models.Request{Name: "Acme Holdings Ltd", Jurisdiction: "GB", Identifiers: map[string]string{"company_number": "01234567"}}

	ec := a.Assemble(req, outcomes(), sector.Resolve("aviation"))

	assert.Contains(t, ec.Text, "Name: Acme Holdings Ltd")
	assert.Contains(t, ec.Text, "  company_number: 01234567")
	assert.Contains(t, ec.Text, "[1] UK Companies House registry (companies_house): FOUND")
	assert.Contains(t, ec.Text, "[2] Sanctions and PEP screening (opensanctions): CHECKED - NOTHING FOUND (no matches above 0.70)")
	assert.Contains(t, ec.Text, "[3] Adverse media web search (web_search): NOT CHECKED - SOURCE UNAVAILABLE (timeout: no response within 20s)")
	assert.Contains(t, ec.Text, `other_matches: ["ACME HOLDINGS (2019) LTD"]`)
	assert.False(t, ec.Truncated)

	require.Len(t, ec.Sources, 3)
	assert.Equal(t, sources.StatusNotFound, ec.Sources[1].Status)
	assert.Equal(t, sector.Aviation, ec.Policy)
	assert.True(t, strings.HasPrefix(ec.PolicyRules, "SECTOR POLICY: "))
}

func TestAssemble_FactsAreSorted(t *testing.T) {
	ec := New(Budget{}).Assemble(models.Request{Name: "Acme"}, outcomes(), sector.Resolve(""))

	iName := strings.Index(ec.Text, "company_name:")
	iOther := strings.Index(ec.Text, "other_matches:")
	iStatus := strings.Index(ec.Text, "status: active")
	assert.True(t, iName < iOther && iOther < iStatus, "facts should be rendered in key order")
}

func TestAssemble_Deterministic(t *testing.T) {
	a := New(Budget{})
	req := models.Request{Name: "Acme", Identifiers: map[string]string{"b": "2", "a": "1", "c": "3"}}
	first := a.Assemble(req, outcomes(), sector.Resolve("yacht"))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first.Text, a.Assemble(req, outcomes(), sector.Resolve("yacht")).Text)
	}
}

func TestAssemble_NoOutcomes(t *testing.T) {
	ec := New(Budget{}).Assemble(models.Request{Name: "Acme"}, nil, sector.Resolve(""))
	assert.Contains(t, ec.Text, "No evidence sources were queried.")
	assert.Contains(t, ec.Text, "Declared sector: auto-detect")
	assert.Empty(t, ec.Sources)
}

func TestAssemble_PerSourceBudget(t *testing.T) {
	big := sources.Found(sources.KindWebSearch, &sources.Evidence{
		Kind:  sources.KindWebSearch,
		Facts: map[string]any{"snippet": strings.Repeat("fraud ", 1000)},
	})
	a := New(Budget{PerSource: 200})

	ec := a.Assemble(models.Request{Name: "Acme"}, []sources.Outcome{big}, sector.Resolve(""))

	assert.True(t, ec.Truncated)
	assert.True(t, ec.Sources[0].Truncated)
	assert.Contains(t, ec.Text, pstrings.TruncationMarker)
	assert.Less(t, pstrings.Len(ec.Text), 600)
}

func TestAssemble_TotalBudget(t *testing.T) {
	a := New(Budget{Total: 500})
	req := models.Request{Name: "Acme", Supplementary: strings.Repeat("context ", 200)}

	ec := a.Assemble(req, outcomes(), sector.Resolve(""))

	assert.True(t, ec.Truncated)
	assert.Equal(t, 500, pstrings.Len(ec.Text))
	assert.True(t, strings.HasSuffix(ec.Text, pstrings.TruncationMarker))
}

func TestAssemble_SupplementaryBudget(t *testing.T) {
	a := New(Budget{Supplementary: 50})
	req := models.Request{Name: "Acme", Supplementary: strings.Repeat("é", 120)}

	ec := a.Assemble(req, nil, sector.Resolve(""))

	assert.True(t, ec.Truncated)
	assert.Contains(t, ec.Text, strings.Repeat("é", 50-pstrings.Len(pstrings.TruncationMarker))+pstrings.TruncationMarker)
}

func TestExcerpt_KeepsWholeChunks(t *testing.T) {
	a := New(Budget{Document: 2000})
	var paragraphs []string
	for i := 0; i < 10; i++ {
		paragraphs = append(paragraphs, strings.Repeat(string(rune('a'+i)), 600))
	}
	doc := strings.Join(paragraphs, "\n\n")

	text, cut := a.excerpt(doc)

	require.True(t, cut)
	assert.LessOrEqual(t, pstrings.Len(text), 2000)
	assert.True(t, strings.HasPrefix(text, strings.Repeat("a", 600)))
	assert.NotContains(t, text, "ddd", "a chunk that does not fit whole is dropped")
}

func TestExcerpt_ShortDocumentUntouched(t *testing.T) {
	text, cut := New(Budget{}).excerpt("Bill of sale dated 2026-01-04.")
	assert.False(t, cut)
	assert.Equal(t, "Bill of sale dated 2026-01-04.", text)
}

func TestExcerpt_UnsplittableFallsBackToHardCut(t *testing.T) {
	a := New(Budget{Document: 100})
	doc := strings.Repeat("x", 5000)

	text, cut := a.excerpt(doc)

	assert.True(t, cut)
	assert.Equal(t, 100, pstrings.Len(text))
}

func TestEvidenceContext_WithPolicy(t *testing.T) {
	ec := New(Budget{}).Assemble(models.Request{Name: "Acme"}, nil, sector.Resolve(""))
	swapped := ec.WithPolicy(sector.Resolve("maritime"))

	assert.Equal(t, sector.General, ec.Policy)
	assert.Equal(t, sector.Maritime, swapped.Policy)
	assert.Equal(t, ec.Text, swapped.Text)
	assert.NotEqual(t, ec.PolicyRules, swapped.PolicyRules)
}

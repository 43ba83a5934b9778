package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligence/internal/sector"
)

const validJSON = `{
	"riskScore": 72,
	"riskLevel": "HIGH",
	"summary": "Seller is not the registered owner of the aircraft.",
	"assessments": {
		"identityVerification": {"status": "pass", "findings": ["Director identity confirmed"], "recommendations": []},
		"corporateStructure": {"status": "caution", "findings": "Owning SPV registered in Isle of Man", "recommendations": ["Obtain UBO declaration"]},
		"sanctionsScreening": {"status": "pass", "findings": [], "recommendations": []},
		"adverseMedia": {"status": "needs_review", "findings": [], "recommendations": []},
		"documentAuthenticity": {"status": "fail", "findings": ["Bill of sale dated 2031"], "recommendations": ["Reject the document"]}
	},
	"redFlags": ["Future-dated bill of sale", "Future-dated bill of sale"],
	"detectedSector": "aviation",
	"sectorLeniency": {"allowancesApplied": ["Offshore owning entity", " "]}
}`

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare object", raw: `{"a":1}`, want: `{"a":1}`},
		{name: "whitespace", raw: "\n\t {\"a\":1} \n", want: `{"a":1}`},
		{name: "json fence", raw: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "plain fence", raw: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", raw: "Here is the report:\n{\"a\":{\"b\":2}}\nLet me know!", want: `{"a":{"b":2}}`},
		{name: "fence with prose after", raw: "```json\n{\"a\":1}\n```\nThanks", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{"", "   ", "no braces here", "} backwards {", "```\n```"} {
		_, err := ExtractJSON(raw)
		assert.ErrorIs(t, err, ErrNoJSONObject, "input %q", raw)
	}
}

func TestParse_ValidReport(t *testing.T) {
	p := NewParser()
	r, err := p.Parse("```json\n"+validJSON+"\n```", Meta{Resolution: sector.Resolve("aviation")})
	require.NoError(t, err)

	assert.Equal(t, 72, r.RiskScore)
	assert.Equal(t, LevelHigh, r.RiskLevel)
	assert.False(t, r.Fallback)
	assert.Equal(t, []string{"Future-dated bill of sale"}, r.RedFlags)
	assert.Equal(t, []string{"Owning SPV registered in Isle of Man"}, r.Assessments[CorporateStructure].Findings)
	assert.Equal(t, StatusFail, r.Assessments[DocumentAuthenticity].Status)
	assert.Equal(t, sector.Aviation, r.Leniency.Sector)
	assert.Equal(t, sector.ConfidenceHigh, r.Leniency.Confidence)
	assert.Equal(t, []string{"Offshore owning entity"}, r.Leniency.AllowancesApplied)
	require.NoError(t, r.Validate())
}

func TestParse_AutoDetectUsesDetectedSector(t *testing.T) {
	p := NewParser()

	r, err := p.Parse(validJSON, Meta{Resolution: sector.Resolve(sector.AutoDetect)})
	require.NoError(t, err)
	assert.Equal(t, sector.Aviation, r.Leniency.Sector)
	assert.Equal(t, "aviation", r.Leniency.DetectedSector)
	assert.Equal(t, "Private Aviation", r.Leniency.PolicyName)

	unknown := strings.Replace(validJSON, `"detectedSector": "aviation"`, `"detectedSector": "spaceflight"`, 1)
	r, err = p.Parse(unknown, Meta{Resolution: sector.Resolve("")})
	require.NoError(t, err)
	assert.Equal(t, sector.General, r.Leniency.Sector)
	assert.Equal(t, sector.ConfidenceLow, r.Leniency.Confidence)
}

func TestParse_ExplicitSectorWinsOverDetected(t *testing.T) {
	raw := strings.Replace(validJSON, `"detectedSector": "aviation"`, `"detectedSector": "maritime"`, 1)
	r, err := NewParser().Parse(raw, Meta{Resolution: sector.Resolve("fine_art")})
	require.NoError(t, err)
	assert.Equal(t, sector.FineArt, r.Leniency.Sector)
	assert.Equal(t, "maritime", r.Leniency.DetectedSector)
}

func TestParse_PreclassifiedSectorIsAuthoritative(t *testing.T) {
	res := sector.Resolve("yacht")
	res.AutoDetect = true
	r, err := NewParser().Parse(validJSON, Meta{Resolution: res, Preclassified: true})
	require.NoError(t, err)
	assert.Equal(t, sector.Maritime, r.Leniency.Sector)
}

func TestParse_LenientKeysAndStatuses(t *testing.T) {
	raw := `{"riskScore": 20, "riskLevel": "low", "summary": "ok",
		"assessments": {
			"identity_verification": {"status": "Pass"},
			"Corporate Structure": {"status": "PASS"},
			"sanctionsScreening": {"status": "clear"},
			"adverse-media": {"status": "Needs Review"},
			"documentAuthenticity": {"status": "pass"}
		}}`
	r, err := NewParser().Parse(raw, Meta{})
	require.NoError(t, err)
	assert.Equal(t, LevelLow, r.RiskLevel)
	assert.Equal(t, StatusNeedsReview, r.Assessments[AdverseMedia].Status)
	assert.Equal(t, StatusPass, r.Assessments[IdentityVerification].Status)
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		stage string
	}{
		{name: "no json", raw: "I cannot help with that.", stage: "extract"},
		{name: "truncated", raw: `{"riskScore": 72, "riskLevel": "HIGH", "summary": "cut off`, stage: "extract"},
		{name: "not json inside braces", raw: `{riskScore: high}`, stage: "decode"},
		{name: "score out of range", raw: strings.Replace(validJSON, `"riskScore": 72`, `"riskScore": 140`, 1), stage: "schema"},
		{name: "negative score", raw: strings.Replace(validJSON, `"riskScore": 72`, `"riskScore": -1`, 1), stage: "schema"},
		{name: "missing score", raw: strings.Replace(validJSON, `"riskScore": 72,`, ``, 1), stage: "schema"},
		{name: "fractional score", raw: strings.Replace(validJSON, `"riskScore": 72`, `"riskScore": 69.6`, 1), stage: "schema"},
		{name: "score as string", raw: strings.Replace(validJSON, `"riskScore": 72`, `"riskScore": "72"`, 1), stage: "decode"},
		{name: "level mismatch", raw: strings.Replace(validJSON, `"riskLevel": "HIGH"`, `"riskLevel": "LOW"`, 1), stage: "invariants"},
		{name: "unknown level", raw: strings.Replace(validJSON, `"riskLevel": "HIGH"`, `"riskLevel": "SEVERE"`, 1), stage: "schema"},
		{name: "missing sub-assessment", raw: strings.Replace(validJSON, `"adverseMedia"`, `"pressCoverage"`, 1), stage: "invariants"},
		{name: "unknown status", raw: strings.Replace(validJSON, `"status": "caution"`, `"status": "probably fine"`, 1), stage: "schema"},
		{name: "empty summary", raw: strings.Replace(validJSON, `"summary": "Seller is not the registered owner of the aircraft."`, `"summary": ""`, 1), stage: "schema"},
	}
	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.raw, Meta{})
			require.Error(t, err)
			var mo *MalformedOutputError
			require.ErrorAs(t, err, &mo)
			assert.Equal(t, tt.stage, mo.Stage)
		})
	}
}

// Two spellings of the same sub-assessment must fail the same way on every
// run rather than letting map order pick a winner.
func TestParse_DuplicateAssessmentKeys(t *testing.T) {
	raw := strings.Replace(validJSON,
		`"identityVerification": {"status": "pass", "findings": ["Director identity confirmed"], "recommendations": []},`,
		`"identityVerification": {"status": "pass"}, "identity_verification": {"status": "fail"},`, 1)
	p := NewParser()

	for range 50 {
		_, err := p.Parse(raw, Meta{})
		var mo *MalformedOutputError
		require.ErrorAs(t, err, &mo)
		assert.Equal(t, "schema", mo.Stage)
		assert.Contains(t, err.Error(), `"identityVerification" and "identity_verification"`)
	}
}

func TestParse_IntegralFloatScore(t *testing.T) {
	raw := strings.Replace(validJSON, `"riskScore": 72`, `"riskScore": 72.0`, 1)
	r, err := NewParser().Parse(raw, Meta{})
	require.NoError(t, err)
	assert.Equal(t, 72, r.RiskScore)
}

// Resolve always yields a report that satisfies the invariants.
func TestResolve_AlwaysValid(t *testing.T) {
	inputs := []string{
		"",
		"null",
		"[]",
		"{}",
		"{{{{",
		"}}}}{{{{",
		"```json\n```",
		strings.Repeat("{", 10000),
		"\x00\xff\xfe",
		validJSON,
		strings.Replace(validJSON, `"riskScore": 72`, `"riskScore": 72.4`, 1),
	}
	p := NewParser()
	meta := Meta{Resolution: sector.Resolve("real_estate")}
	for _, raw := range inputs {
		res := p.Resolve(raw, nil, meta)
		require.NoError(t, res.Report.Validate(), "input %q", raw)
		assert.Equal(t, res.Parsed, !res.Report.Fallback)
		assert.Equal(t, res.Parsed, res.Err == nil)
	}
}

func TestResolve_OracleUnavailable(t *testing.T) {
	oracleErr := errors.New("deadline exceeded")
	res := NewParser().Resolve(validJSON, oracleErr, Meta{Resolution: sector.Resolve("maritime")})

	assert.False(t, res.Parsed)
	assert.ErrorIs(t, res.Err, oracleErr)
	assert.True(t, res.Report.Fallback)
	assert.Equal(t, 50, res.Report.RiskScore)
	assert.Equal(t, LevelMedium, res.Report.RiskLevel)
	assert.Equal(t, sector.Maritime, res.Report.Leniency.Sector)
	assert.Contains(t, res.Report.FallbackReason, "oracle unavailable")
}

func TestResolve_MalformedOutput(t *testing.T) {
	res := NewParser().Resolve("The party looks fine to me.", nil, Meta{Resolution: sector.Resolve(sector.AutoDetect)})

	assert.False(t, res.Parsed)
	var mo *MalformedOutputError
	assert.ErrorAs(t, res.Err, &mo)
	assert.Equal(t, sector.General, res.Report.Leniency.Sector)
	for _, key := range RequiredAssessments {
		assert.Equal(t, StatusNeedsReview, res.Report.Assessments[key].Status)
	}
}

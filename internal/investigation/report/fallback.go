package report

import (
	"diligence/internal/sector"
)

const (
	fallbackScore   = 50
	fallbackSummary = "Automated assessment could not be completed. This transaction requires manual review by a compliance analyst before proceeding."
)

var fallbackRecommendations = map[string][]string{
	IdentityVerification: {"Verify the party's identity documents manually against the original issuing authority"},
	CorporateStructure:   {"Obtain registry extracts and confirm the ultimate beneficial owners"},
	SanctionsScreening:   {"Re-run sanctions and PEP screening against the party and its owners"},
	AdverseMedia:         {"Perform a manual adverse media search on the party and its directors"},
	DocumentAuthenticity: {"Have the supplied documents examined for alterations and date inconsistencies"},
}

// Fallback builds the deterministic report used whenever the oracle is
// unavailable or its output cannot be trusted. It depends only on meta and
// reason, and always satisfies Validate.
func Fallback(meta Meta, reason string) RiskReport {
	assessments := make(map[string]Assessment, len(RequiredAssessments))
	for _, key := range RequiredAssessments {
		recs := make([]string, len(fallbackRecommendations[key]))
		copy(recs, fallbackRecommendations[key])
		assessments[key] = Assessment{
			Status:          StatusNeedsReview,
			Findings:        []string{"Automated assessment unavailable"},
			Recommendations: recs,
		}
	}

	policy := meta.Resolution.Policy
	if !policy.Key.Valid() {
		policy, _ = sector.Lookup(sector.General)
	}
	confidence := meta.Resolution.Confidence
	if confidence == "" {
		confidence = sector.ConfidenceLow
	}
	return RiskReport{
		RiskScore:   fallbackScore,
		RiskLevel:   LevelForScore(fallbackScore),
		Summary:     fallbackSummary,
		Assessments: assessments,
		Leniency: Leniency{
			Sector:          policy.Key,
			PolicyName:      policy.Name,
			RequestedSector: meta.Resolution.Requested,
			Confidence:      confidence,
		},
		Fallback:       true,
		FallbackReason: reason,
	}
}

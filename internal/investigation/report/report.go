// Package report defines the RiskReport, turns raw oracle text into a
// validated report, and builds the deterministic fallback when it cannot.
package report

import (
	"errors"
	"fmt"
	"strings"

	"diligence/internal/sector"
)

// Level is the coarse risk grade. Levels are ordered LOW < MEDIUM < HIGH < CRITICAL.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// LevelForScore buckets a 0-100 score: 0-39 LOW, 40-69 MEDIUM, 70-84 HIGH,
// 85-100 CRITICAL. Scores outside the range are clamped.
func LevelForScore(score int) Level {
	switch {
	case score >= 85:
		return LevelCritical
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ParseLevel accepts any casing.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if l.Rank() == 0 {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return l, nil
}

// Rank orders levels from 1 (LOW) to 4 (CRITICAL); unknown levels rank 0.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

// Status is the verdict of one sub-assessment.
type Status string

const (
	StatusPass        Status = "pass"
	StatusCaution     Status = "caution"
	StatusFail        Status = "fail"
	StatusNeedsReview Status = "needs_review"
)

// ParseStatus is lenient about case and separators ("Needs Review",
// "needs-review" and "NEEDS_REVIEW" are all accepted).
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch Status(norm) {
	case StatusPass, StatusCaution, StatusFail, StatusNeedsReview:
		return Status(norm), nil
	}
	switch norm {
	case "passed", "ok", "clear":
		return StatusPass, nil
	case "warning", "warn":
		return StatusCaution, nil
	case "failed":
		return StatusFail, nil
	case "review", "manual_review", "unknown":
		return StatusNeedsReview, nil
	}
	return "", fmt.Errorf("unknown assessment status %q", s)
}

// Required sub-assessment keys. Every valid report carries all of them.
const (
	IdentityVerification = "identityVerification"
	CorporateStructure   = "corporateStructure"
	SanctionsScreening   = "sanctionsScreening"
	AdverseMedia         = "adverseMedia"
	DocumentAuthenticity = "documentAuthenticity"
)

// RequiredAssessments lists the sub-assessment keys in presentation order.
var RequiredAssessments = []string{
	IdentityVerification,
	CorporateStructure,
	SanctionsScreening,
	AdverseMedia,
	DocumentAuthenticity,
}

// Assessment is one named sub-assessment.
type Assessment struct {
	Status          Status   `json:"status"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
}

// Leniency records which sector policy shaped the assessment.
type Leniency struct {
	Sector            sector.Key        `json:"sector"`
	PolicyName        string            `json:"policyName"`
	RequestedSector   string            `json:"requestedSector,omitempty"`
	DetectedSector    string            `json:"detectedSector,omitempty"`
	Confidence        sector.Confidence `json:"confidence"`
	AllowancesApplied []string          `json:"allowancesApplied,omitempty"`
}

// RiskReport is the final, immutable product of an investigation.
type RiskReport struct {
	RiskScore      int                   `json:"riskScore"`
	RiskLevel      Level                 `json:"riskLevel"`
	Summary        string                `json:"summary"`
	Assessments    map[string]Assessment `json:"assessments"`
	RedFlags       []string              `json:"redFlags,omitempty"`
	Leniency       Leniency              `json:"sectorLeniency"`
	Fallback       bool                  `json:"fallback"`
	FallbackReason string                `json:"fallbackReason,omitempty"`
}

// Validate checks the report invariants: score within [0,100], level equal to
// the score's bucket, a summary, and every required sub-assessment present
// with a known status.
func (r RiskReport) Validate() error {
	var errs []error
	if r.RiskScore < 0 || r.RiskScore > 100 {
		errs = append(errs, fmt.Errorf("risk score %d outside [0,100]", r.RiskScore))
	} else if want := LevelForScore(r.RiskScore); r.RiskLevel != want {
		errs = append(errs, fmt.Errorf("risk level %s does not match score %d (want %s)", r.RiskLevel, r.RiskScore, want))
	}
	if strings.TrimSpace(r.Summary) == "" {
		errs = append(errs, errors.New("summary is empty"))
	}
	for _, key := range RequiredAssessments {
		a, ok := r.Assessments[key]
		if !ok {
			errs = append(errs, fmt.Errorf("missing assessment %s", key))
			continue
		}
		if _, err := ParseStatus(string(a.Status)); err != nil {
			errs = append(errs, fmt.Errorf("assessment %s: %w", key, err))
		}
	}
	if !r.Leniency.Sector.Valid() {
		errs = append(errs, fmt.Errorf("unknown sector %q", r.Leniency.Sector))
	}
	return errors.Join(errs...)
}

package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"diligence/internal/sector"
	pstrings "diligence/pkg/platform/strings"
)

// ErrNoJSONObject is returned when the oracle text contains no {...} span.
var ErrNoJSONObject = errors.New("no JSON object in oracle output")

// MalformedOutputError reports oracle text that could not be turned into a
// valid RiskReport.
type MalformedOutputError struct {
	Stage string
	Err   error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed oracle output (%s): %v", e.Stage, e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

func malformed(stage string, err error) error {
	return &MalformedOutputError{Stage: stage, Err: err}
}

// Meta is the request context the parser needs to fill sector metadata.
type Meta struct {
	// Resolution is the sector resolution the assessment prompt was built from.
	Resolution sector.Resolution
	// Preclassified is set when the sector was inferred before the
	// assessment call, so the resolved policy is authoritative.
	Preclassified bool
}

func (m Meta) inferred() bool {
	return !m.Preclassified && (m.Resolution.AutoDetect || m.Resolution.Requested == "")
}

// ExtractJSON isolates the JSON object in free-form oracle text: trim, strip
// a surrounding code fence, then keep the span from the first '{' to the last
// '}'.
func ExtractJSON(raw string) (string, error) {
	s := bytes.TrimSpace([]byte(raw))
	if bytes.HasPrefix(s, []byte("```")) {
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = s[3:]
		}
		s = bytes.TrimSpace(s)
		if bytes.HasSuffix(s, []byte("```")) {
			s = s[:len(s)-3]
		}
		s = bytes.TrimSpace(s)
	}

	start := bytes.IndexByte(s, '{')
	end := bytes.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", ErrNoJSONObject
	}
	return string(s[start : end+1]), nil
}

// textList accepts either a JSON string or an array of strings.
type textList []string

func (t *textList) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*t = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*t = textList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	*t = many
	return nil
}

type wireReport struct {
	RiskScore      *float64                  `json:"riskScore" validate:"required,gte=0,lte=100"`
	RiskLevel      string                    `json:"riskLevel" validate:"required"`
	Summary        string                    `json:"summary" validate:"required"`
	Assessments    map[string]wireAssessment `json:"assessments" validate:"required,dive"`
	RedFlags       textList                  `json:"redFlags"`
	DetectedSector string                    `json:"detectedSector"`
	SectorLeniency *wireLeniency             `json:"sectorLeniency"`
}

type wireAssessment struct {
	Status          string   `json:"status" validate:"required"`
	Findings        textList `json:"findings"`
	Recommendations textList `json:"recommendations"`
}

type wireLeniency struct {
	DetectedSector    string   `json:"detectedSector"`
	AllowancesApplied textList `json:"allowancesApplied"`
}

// Parser turns oracle text into reports. It is safe for concurrent use.
type Parser struct {
	validate *validator.Validate
}

func NewParser() *Parser {
	return &Parser{validate: validator.New()}
}

// Parse runs the full pipeline and returns a report that satisfies Validate,
// or a *MalformedOutputError.
func (p *Parser) Parse(raw string, meta Meta) (RiskReport, error) {
	span, err := ExtractJSON(raw)
	if err != nil {
		return RiskReport{}, malformed("extract", err)
	}

	var w wireReport
	if err := json.Unmarshal([]byte(span), &w); err != nil {
		return RiskReport{}, malformed("decode", err)
	}
	if err := p.validate.Struct(w); err != nil {
		return RiskReport{}, malformed("schema", err)
	}

	if *w.RiskScore != math.Trunc(*w.RiskScore) {
		return RiskReport{}, malformed("schema", fmt.Errorf("riskScore %v is not an integer", *w.RiskScore))
	}
	score := int(*w.RiskScore)
	level, err := ParseLevel(w.RiskLevel)
	if err != nil {
		return RiskReport{}, malformed("schema", err)
	}

	keys := make([]string, 0, len(w.Assessments))
	for key := range w.Assessments {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	assessments := make(map[string]Assessment, len(w.Assessments))
	seen := make(map[string]string, len(w.Assessments))
	for _, key := range keys {
		a := w.Assessments[key]
		canonical := canonicalKey(key)
		if prev, dup := seen[canonical]; dup {
			return RiskReport{}, malformed("schema", fmt.Errorf("assessments %q and %q both name %s", prev, key, canonical))
		}
		seen[canonical] = key
		status, err := ParseStatus(a.Status)
		if err != nil {
			return RiskReport{}, malformed("schema", fmt.Errorf("assessment %s: %w", key, err))
		}
		assessments[canonical] = Assessment{
			Status:          status,
			Findings:        pstrings.DedupeAndTrim(a.Findings),
			Recommendations: pstrings.DedupeAndTrim(a.Recommendations),
		}
	}

	r := RiskReport{
		RiskScore:   score,
		RiskLevel:   level,
		Summary:     strings.TrimSpace(w.Summary),
		Assessments: assessments,
		RedFlags:    pstrings.DedupeAndTrim(w.RedFlags),
		Leniency:    leniency(w, meta),
	}
	if err := r.Validate(); err != nil {
		return RiskReport{}, malformed("invariants", err)
	}
	return r, nil
}

// Result is the outcome of Resolve: always a valid report, and whether it
// came from the oracle.
type Result struct {
	Report RiskReport
	Parsed bool
	// Err is the oracle or parse error that forced the fallback.
	Err error
}

// Resolve never fails. An oracle error or any parse failure yields the
// fallback report.
func (p *Parser) Resolve(raw string, oracleErr error, meta Meta) Result {
	if oracleErr != nil {
		return Result{Report: Fallback(meta, "oracle unavailable: "+oracleErr.Error()), Err: oracleErr}
	}
	r, err := p.Parse(raw, meta)
	if err != nil {
		return Result{Report: Fallback(meta, err.Error()), Err: err}
	}
	return Result{Report: r, Parsed: true}
}

func leniency(w wireReport, meta Meta) Leniency {
	var allowances []string
	detected := strings.TrimSpace(w.DetectedSector)
	if w.SectorLeniency != nil {
		allowances = pstrings.DedupeAndTrim(w.SectorLeniency.AllowancesApplied)
		if detected == "" {
			detected = strings.TrimSpace(w.SectorLeniency.DetectedSector)
		}
	}

	res := meta.Resolution
	if !res.Policy.Key.Valid() {
		res = sector.Resolve(res.Requested)
	}
	l := Leniency{
		Sector:            res.Key(),
		PolicyName:        res.Policy.Name,
		RequestedSector:   res.Requested,
		DetectedSector:    detected,
		Confidence:        res.Confidence,
		AllowancesApplied: allowances,
	}
	if meta.inferred() {
		found := sector.Resolve(detected)
		l.Sector, l.PolicyName, l.Confidence = found.Key(), found.Policy.Name, found.Confidence
	}
	return l
}

// canonicalKey maps "identity_verification" or "Identity Verification" onto
// the camelCase required keys. Unknown keys pass through unchanged.
func canonicalKey(key string) string {
	squash := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(key))
	for _, k := range RequiredAssessments {
		if strings.ToLower(k) == squash {
			return k
		}
	}
	return key
}

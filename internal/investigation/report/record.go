package report

import (
	"encoding/json"
	"fmt"
)

// Record is the persisted shape of a report.
type Record struct {
	Sector     string          `json:"sector"`
	RiskLevel  string          `json:"risk_level"`
	RiskScore  int             `json:"risk_score"`
	Summary    string          `json:"summary"`
	FullReport json.RawMessage `json:"full_report"`
}

// ToRecord flattens the report for storage; the full report is kept as JSON.
func (r RiskReport) ToRecord() (Record, error) {
	full, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("encode report: %w", err)
	}
	return Record{
		Sector:     string(r.Leniency.Sector),
		RiskLevel:  string(r.RiskLevel),
		RiskScore:  r.RiskScore,
		Summary:    r.Summary,
		FullReport: full,
	}, nil
}

// FromRecord restores the full report from a stored record.
func FromRecord(rec Record) (RiskReport, error) {
	var r RiskReport
	if err := json.Unmarshal(rec.FullReport, &r); err != nil {
		return RiskReport{}, fmt.Errorf("decode stored report: %w", err)
	}
	return r, nil
}

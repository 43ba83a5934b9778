package handler

import (
	"time"

	"diligence/internal/investigation/models"
	"diligence/internal/investigation/report"
	"diligence/internal/sector"
)

// InvestigationResponse is returned by POST /investigations and
// GET /investigations/{id}.
type InvestigationResponse struct {
	ID          string                  `json:"id"`
	State       models.State            `json:"state"`
	Persisted   bool                    `json:"persisted"`
	Subject     SubjectResponse         `json:"subject"`
	Report      *report.RiskReport      `json:"report,omitempty"`
	Sources     []models.OutcomeSummary `json:"sources"`
	RequestID   string                  `json:"request_id,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// SubjectResponse echoes the investigated subject without the free text.
type SubjectResponse struct {
	Kind         models.SubjectKind `json:"kind"`
	Name         string             `json:"name"`
	Jurisdiction string             `json:"jurisdiction,omitempty"`
	Identifiers  map[string]string  `json:"identifiers,omitempty"`
	Sector       string             `json:"sector,omitempty"`
}

// ListResponse is returned by GET /investigations.
type ListResponse struct {
	Investigations []models.Summary `json:"investigations"`
}

// SectorsResponse is returned by GET /sectors.
type SectorsResponse struct {
	Sectors    []sector.Policy `json:"sectors"`
	AutoDetect string          `json:"auto_detect"`
}

// FromInvestigation converts the aggregate into its HTTP representation.
func FromInvestigation(inv *models.Investigation) InvestigationResponse {
	return InvestigationResponse{
		ID:        inv.ID,
		State:     inv.State,
		Persisted: inv.Persisted,
		Subject: SubjectResponse{
			Kind:         inv.Request.SubjectKind,
			Name:         inv.Request.Name,
			Jurisdiction: inv.Request.Jurisdiction,
			Identifiers:  inv.Request.Identifiers,
			Sector:       inv.Request.Sector,
		},
		Report:      inv.Report,
		Sources:     nonNil(inv.Outcomes),
		RequestID:   inv.RequestID,
		CreatedAt:   inv.CreatedAt,
		CompletedAt: inv.CompletedAt,
	}
}

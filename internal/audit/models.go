package audit

import "time"

// Action names an audited pipeline event.
type Action string

const (
	ActionInvestigationCompleted Action = "investigation_completed"
	ActionInvestigationRejected  Action = "investigation_rejected"
)

// Event is emitted from the investigation service to capture key actions.
// Keep it transport-agnostic so sinks can fan out.
type Event struct {
	ID              string    `json:"id"`
	Action          Action    `json:"action"`
	Timestamp       time.Time `json:"timestamp"`
	InvestigationID string    `json:"investigation_id,omitempty"`
	Subject         string    `json:"subject"`
	Sector          string    `json:"sector,omitempty"`
	RiskLevel       string    `json:"risk_level,omitempty"`
	RiskScore       int       `json:"risk_score,omitempty"`
	Fallback        bool      `json:"fallback"`
	Reason          string    `json:"reason,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
	Client          string    `json:"client,omitempty"`
}

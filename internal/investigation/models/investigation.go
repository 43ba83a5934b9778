// Package models holds the investigation aggregate and its request type.
package models

import (
	"fmt"
	"time"

	"diligence/internal/evidence/sources"
	"diligence/internal/investigation/report"
	dErrors "diligence/pkg/domain-errors"
)

// State is a stage of the investigation lifecycle.
type State string

const (
	StateCreated          State = "created"
	StateSourcesGathering State = "sources_gathering"
	StateContextAssembled State = "context_assembled"
	StateAwaitingOracle   State = "awaiting_oracle"
	StateParsed           State = "parsed"
	StateFallbackApplied  State = "fallback_applied"
	StatePersisted        State = "persisted"
	StateAborted          State = "aborted"
)

var transitions = map[State][]State{
	StateCreated:          {StateSourcesGathering, StateAborted},
	StateSourcesGathering: {StateContextAssembled},
	StateContextAssembled: {StateAwaitingOracle},
	StateAwaitingOracle:   {StateParsed, StateFallbackApplied},
	StateParsed:           {StatePersisted},
	StateFallbackApplied:  {StatePersisted},
}

// CanTransitionTo reports whether the lifecycle allows s -> to.
func (s State) CanTransitionTo(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// OutcomeSummary is the persisted trace of one evidence task. The raw facts
// are not kept.
type OutcomeSummary struct {
	Source   sources.Kind   `json:"source"`
	Status   sources.Status `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Attempts int            `json:"attempts"`
	Duration time.Duration  `json:"duration_ns"`
}

// SummarizeOutcome keeps what an auditor needs from an outcome.
func SummarizeOutcome(o sources.Outcome) OutcomeSummary {
	s := OutcomeSummary{
		Source:   o.Kind,
		Status:   o.Status,
		Attempts: o.Attempts,
		Duration: o.Duration,
	}
	switch o.Status {
	case sources.StatusFound:
		if o.Evidence != nil {
			s.Detail = o.Evidence.SourceID
		}
	case sources.StatusNotFound:
		s.Detail = o.Reason
	case sources.StatusError:
		s.Detail = string(o.Category())
	}
	return s
}

// Investigation is the aggregate for one request.
//
// Invariants:
//   - State only moves along the lifecycle graph; History records every move
//   - Report is set exactly when State is parsed, fallback_applied or persisted
//   - Aborted investigations never queried a source
type Investigation struct {
	ID          string             `json:"id"`
	Request     Request            `json:"request"`
	State       State              `json:"state"`
	History     []Transition       `json:"history"`
	Outcomes    []OutcomeSummary   `json:"outcomes,omitempty"`
	Report      *report.RiskReport `json:"report,omitempty"`
	Persisted   bool               `json:"persisted"`
	RequestID   string             `json:"request_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// NewInvestigation starts an investigation in the created state.
func NewInvestigation(id string, req Request, now time.Time) *Investigation {
	return &Investigation{
		ID:        id,
		Request:   req,
		State:     StateCreated,
		CreatedAt: now,
	}
}

// Transition moves to the next state or returns CodeInvariantViolation.
func (i *Investigation) Transition(to State, at time.Time) error {
	if !i.State.CanTransitionTo(to) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("investigation cannot move from %s to %s", i.State, to))
	}
	i.History = append(i.History, Transition{From: i.State, To: to, At: at})
	i.State = to
	return nil
}

// ApplyReport records the report and moves to parsed or fallback_applied.
func (i *Investigation) ApplyReport(r report.RiskReport, at time.Time) error {
	to := StateParsed
	if r.Fallback {
		to = StateFallbackApplied
	}
	if err := i.Transition(to, at); err != nil {
		return err
	}
	i.Report = &r
	i.CompletedAt = &at
	return nil
}

// Summary is the list view of an investigation.
type Summary struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	State     State        `json:"state"`
	Sector    string       `json:"sector,omitempty"`
	RiskLevel report.Level `json:"risk_level,omitempty"`
	RiskScore *int         `json:"risk_score,omitempty"`
	Fallback  bool         `json:"fallback"`
	CreatedAt time.Time    `json:"created_at"`
}

// Summarize builds the list view.
func (i *Investigation) Summarize() Summary {
	s := Summary{ID: i.ID, Name: i.Request.Name, State: i.State, CreatedAt: i.CreatedAt}
	if i.Report != nil {
		score := i.Report.RiskScore
		s.Sector = string(i.Report.Leniency.Sector)
		s.RiskLevel = i.Report.RiskLevel
		s.RiskScore = &score
		s.Fallback = i.Report.Fallback
	}
	return s
}

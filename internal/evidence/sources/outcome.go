package sources

import (
	"errors"
	"time"
)

// Status discriminates the Outcome union.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Outcome is the result of one evidence task: exactly one of Found (Evidence
// set), NotFound (Reason set) or Error (Err set). Outcomes are produced by the
// fan-out executor, read by the context assembler and then discarded.
type Outcome struct {
	Kind     Kind
	Status   Status
	Evidence *Evidence
	Reason   string
	Err      error
	Duration time.Duration
	Attempts int
}

// Found builds a successful outcome.
func Found(kind Kind, evidence *Evidence) Outcome {
	return Outcome{Kind: kind, Status: StatusFound, Evidence: evidence}
}

// NotFound builds a "checked, nothing found" outcome.
func NotFound(kind Kind, reason string) Outcome {
	return Outcome{Kind: kind, Status: StatusNotFound, Reason: reason}
}

// Failed builds an error outcome.
func Failed(kind Kind, err error) Outcome {
	return Outcome{Kind: kind, Status: StatusError, Err: err}
}

// FromLookup normalises an adapter's (evidence, error) pair into the union.
// A nil evidence with a nil error is treated as bad data rather than success.
func FromLookup(kind Kind, evidence *Evidence, err error) Outcome {
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Category == ErrorNotFound {
			return NotFound(kind, pe.Message)
		}
		return Failed(kind, err)
	}
	if evidence == nil {
		return Failed(kind, NewProviderError(ErrorBadData, kind, "source returned no evidence", nil))
	}
	return Found(kind, evidence)
}

// Facts returns the evidence facts for Found outcomes and nil otherwise.
func (o Outcome) Facts() map[string]any {
	if o.Status != StatusFound || o.Evidence == nil {
		return nil
	}
	return o.Evidence.Facts
}

// Cause is a short description of why the outcome is not Found.
func (o Outcome) Cause() string {
	switch o.Status {
	case StatusNotFound:
		return o.Reason
	case StatusError:
		if o.Err == nil {
			return string(ErrorInternal)
		}
		return o.Err.Error()
	default:
		return ""
	}
}

// Category is the error category of an Error outcome, ErrorNotFound for
// NotFound outcomes and empty for Found outcomes.
func (o Outcome) Category() ErrorCategory {
	switch o.Status {
	case StatusNotFound:
		return ErrorNotFound
	case StatusError:
		return GetCategory(o.Err)
	default:
		return ""
	}
}

// Package oracle invokes the opaque risk-assessment model: it renders the
// fixed instruction template, bounds the call in time, retries transient
// failures and reports every failure as an *UnavailableError.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"diligence/pkg/platform/sentinel"
)

// Oracle is anything that completes a prompt into text.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Reason classifies why the oracle was unavailable.
type Reason string

const (
	ReasonTimeout        Reason = "timeout"
	ReasonTransport      Reason = "transport"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonQuota          Reason = "quota"
	ReasonAuthentication Reason = "authentication"
	ReasonCircuitOpen    Reason = "circuit_open"
	ReasonEmptyResponse  Reason = "empty_response"
	ReasonCancelled      Reason = "cancelled"
)

// Retryable reports whether another attempt could succeed. Quota and
// credential failures will not heal within one investigation.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonTransport, ReasonRateLimited, ReasonEmptyResponse:
		return true
	default:
		return false
	}
}

var (
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("oracle returned an empty response")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = fmt.Errorf("oracle: %w", sentinel.ErrCircuitOpen)
)

// UnavailableError is the typed failure of an oracle call. Callers substitute
// the fallback report when they receive one.
type UnavailableError struct {
	Reason Reason
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle unavailable (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("oracle unavailable (%s)", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is an *UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// Unavailable wraps err in an *UnavailableError, classifying it unless it
// already is one.
func Unavailable(err error) *UnavailableError {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue
	}
	return &UnavailableError{Reason: Classify(err), Err: err}
}

// Classify maps an oracle error onto a Reason.
func Classify(err error) Reason {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return ReasonCircuitOpen
	case errors.Is(err, ErrEmptyResponse):
		return ReasonEmptyResponse
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if isQuota(apiErr) {
			return ReasonQuota
		}
		return reasonForStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reasonForStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonTransport
}

func isQuota(e *openai.APIError) bool {
	if strings.Contains(strings.ToLower(e.Type), "quota") {
		return true
	}
	if code, ok := e.Code.(string); ok && strings.Contains(strings.ToLower(code), "quota") {
		return true
	}
	return false
}

func reasonForStatus(status int) Reason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuthentication
	case status == http.StatusPaymentRequired:
		return ReasonQuota
	case status == http.StatusTooManyRequests:
		return ReasonRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	default:
		return ReasonTransport
	}
}

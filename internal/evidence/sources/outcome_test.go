package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromLookup(t *testing.T) {
	ev := &Evidence{Kind: KindWebSearch, Facts: map[string]any{"hits": 2}}

	tests := []struct {
		name     string
		evidence *Evidence
		err      error
		status   Status
		category ErrorCategory
	}{
		{name: "evidence is found", evidence: ev, status: StatusFound},
		{name: "not found category is an absence", err: NotFoundError(KindWebSearch, "no results"), status: StatusNotFound, category: ErrorNotFound},
		{name: "wrapped not found is still an absence", err: fmt.Errorf("lookup: %w", NotFoundError(KindWebSearch, "none")), status: StatusNotFound, category: ErrorNotFound},
		{name: "outage is an error", err: NewProviderError(ErrorProviderOutage, KindWebSearch, "down", nil), status: StatusError, category: ErrorProviderOutage},
		{name: "deadline is a timeout", err: context.DeadlineExceeded, status: StatusError, category: ErrorTimeout},
		{name: "plain error is internal", err: errors.New("boom"), status: StatusError, category: ErrorInternal},
		{name: "nil evidence without error is bad data", status: StatusError, category: ErrorBadData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FromLookup(KindWebSearch, tt.evidence, tt.err)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.category, out.Category())
			assert.Equal(t, KindWebSearch, out.Kind)
			if tt.status == StatusFound {
				assert.Equal(t, ev.Facts, out.Facts())
				assert.Empty(t, out.Cause())
			} else {
				assert.Nil(t, out.Facts())
				assert.NotEmpty(t, out.Cause())
			}
		})
	}
}

func TestProviderError_Retryable(t *testing.T) {
	assert.True(t, IsRetryable(NewProviderError(ErrorTimeout, KindSanctions, "slow", nil)))
	assert.True(t, IsRetryable(NewProviderError(ErrorRateLimited, KindSanctions, "429", nil)))
	assert.False(t, IsRetryable(NewProviderError(ErrorAuthentication, KindSanctions, "401", nil)))
	assert.False(t, IsRetryable(NotFoundError(KindSanctions, "none")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestCategoryForStatus(t *testing.T) {
	assert.Equal(t, ErrorNotFound, CategoryForStatus(http.StatusNotFound))
	assert.Equal(t, ErrorAuthentication, CategoryForStatus(http.StatusUnauthorized))
	assert.Equal(t, ErrorRateLimited, CategoryForStatus(http.StatusTooManyRequests))
	assert.Equal(t, ErrorProviderOutage, CategoryForStatus(http.StatusBadGateway))
	assert.Equal(t, ErrorTimeout, CategoryForStatus(http.StatusGatewayTimeout))
	assert.Equal(t, ErrorContractMismatch, CategoryForStatus(http.StatusBadRequest))
}

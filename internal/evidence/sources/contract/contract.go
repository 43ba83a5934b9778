// Package contract holds reusable contract tests that every evidence source
// adapter is expected to pass.
package contract

import (
	"context"
	"testing"

	"diligence/internal/evidence/sources"
)

// LookupTest defines a successful lookup case.
type LookupTest struct {
	Name         string
	Source       sources.Source
	Params       sources.Params
	ValidateFunc func(evidence *sources.Evidence) error
}

// Suite is a collection of contract tests for one adapter.
type Suite struct {
	Kind    sources.Kind
	Version string
	Lookups []LookupTest
	Errors  []ErrorTest
}

// Run executes all contract tests in the suite
func (s *Suite) Run(t *testing.T) {
	t.Helper()
	for _, test := range s.Lookups {
		t.Run(test.Name, func(t *testing.T) {
			evidence, err := test.Source.Lookup(context.Background(), test.Params)
			if err != nil {
				t.Fatalf("source lookup failed: %v", err)
			}
			if evidence == nil {
				t.Fatal("source returned nil evidence without error")
			}

			if evidence.Kind != s.Kind {
				t.Errorf("expected kind %s, got %s", s.Kind, evidence.Kind)
			}
			if evidence.Confidence < 0 || evidence.Confidence > 1.0 {
				t.Errorf("confidence %f out of range [0, 1]", evidence.Confidence)
			}
			if evidence.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
			if len(evidence.Facts) == 0 {
				t.Error("evidence carries no facts")
			}

			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(evidence); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
	for _, test := range s.Errors {
		t.Run(test.Name, test.Run)
	}
	if len(s.Lookups) > 0 {
		t.Run("capabilities", (&CapabilityTest{Source: s.Lookups[0].Source, Version: s.Version}).Run)
	}
}

// CapabilityTest validates that source capabilities are correctly declared
type CapabilityTest struct {
	Source  sources.Source
	Version string
}

// Run executes a capability test
func (ct *CapabilityTest) Run(t *testing.T) {
	t.Helper()
	caps := ct.Source.Capabilities()

	if caps.Protocol == "" {
		t.Error("protocol not set")
	}
	if caps.Kind != ct.Source.Kind() {
		t.Errorf("capabilities kind %s does not match source kind %s", caps.Kind, ct.Source.Kind())
	}
	if ct.Version != "" && caps.Version != ct.Version {
		t.Errorf("expected version %s, got %s", ct.Version, caps.Version)
	}
	if len(caps.Fields) == 0 {
		t.Error("no field capabilities declared")
	}
	if len(caps.Filters) == 0 {
		t.Error("no filters declared")
	}
}

// ErrorTest validates that source errors follow the taxonomy
type ErrorTest struct {
	Name          string
	Source        sources.Source
	Params        sources.Params
	ExpectedError sources.ErrorCategory
	ExpectedRetry bool
}

// Run executes an error contract test
func (et ErrorTest) Run(t *testing.T) {
	t.Helper()
	_, err := et.Source.Lookup(context.Background(), et.Params)
	if err == nil {
		t.Fatal("expected error but got none")
	}

	category := sources.GetCategory(err)
	if category != et.ExpectedError {
		t.Errorf("expected error category %s, got %s", et.ExpectedError, category)
	}
	if retry := sources.IsRetryable(err); retry != et.ExpectedRetry {
		t.Errorf("expected retryable=%v, got %v", et.ExpectedRetry, retry)
	}
}

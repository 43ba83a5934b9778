package investigation

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GetResponseField(field string) (interface{}, error)
}

var requiredAssessments = []string{
	"identityVerification",
	"corporateStructure",
	"sanctionsScreening",
	"adverseMedia",
	"documentAuthenticity",
}

// RegisterSteps registers investigation-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &investigationSteps{tc: tc}

	ctx.Step(`^I investigate "([^"]*)" in jurisdiction "([^"]*)"$`, steps.investigate)
	ctx.Step(`^I investigate "([^"]*)" in sector "([^"]*)"$`, steps.investigateInSector)
	ctx.Step(`^every assessment should have status "([^"]*)"$`, steps.everyAssessmentShouldHaveStatus)
	ctx.Step(`^the sectors should include "([^"]*)"$`, steps.sectorsShouldInclude)
}

type investigationSteps struct {
	tc TestContext
}

func (s *investigationSteps) investigate(ctx context.Context, name, jurisdiction string) error {
	return s.tc.POST("/investigations", map[string]interface{}{
		"name":         name,
		"jurisdiction": jurisdiction,
	})
}

func (s *investigationSteps) investigateInSector(ctx context.Context, name, sector string) error {
	return s.tc.POST("/investigations", map[string]interface{}{
		"name":   name,
		"sector": sector,
	})
}

func (s *investigationSteps) everyAssessmentShouldHaveStatus(ctx context.Context, status string) error {
	for _, key := range requiredAssessments {
		v, err := s.tc.GetResponseField("report.assessments." + key + ".status")
		if err != nil {
			return err
		}
		if v != status {
			return fmt.Errorf("assessment %s has status %v, want %s", key, v, status)
		}
	}
	return nil
}

func (s *investigationSteps) sectorsShouldInclude(ctx context.Context, key string) error {
	v, err := s.tc.GetResponseField("sectors")
	if err != nil {
		return err
	}
	list, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("sectors is not a list")
	}
	for _, item := range list {
		if p, ok := item.(map[string]interface{}); ok && p["key"] == key {
			return nil
		}
	}
	return fmt.Errorf("sector %q not listed", key)
}

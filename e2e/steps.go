package e2e

import (
	"github.com/cucumber/godog"

	"diligence/e2e/steps/common"
	"diligence/e2e/steps/investigation"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register investigation-specific steps
	investigation.RegisterSteps(ctx, tc)
}

package e2e

import (
	"github.com/cucumber/godog"

	"kycflow/e2e/steps/common"
	"kycflow/e2e/steps/drafts"
	"kycflow/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	drafts.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}

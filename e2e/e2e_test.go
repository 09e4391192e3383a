package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestFeatures runs the feature files against a live server, e.g.
//
//	KYCFLOW_E2E_URL=http://localhost:8080 go test ./...
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("KYCFLOW_E2E_URL")
	if baseURL == "" {
		t.Skip("KYCFLOW_E2E_URL not set")
	}
	tc := NewTestContext(baseURL,
		env("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		env("JWT_ISSUER", "kycflow"),
		env("JWT_AUDIENCE", "kycflow-wizard"),
	)

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Tags:     env("KYCFLOW_E2E_TAGS", "~@ratelimit"),
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature tests failed")
	}
}

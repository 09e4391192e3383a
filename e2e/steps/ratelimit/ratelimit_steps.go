package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	PUT(path string, body any) error
	GetRole() string
	GetLastResponseStatus() int
	GetLastResponseHeader() http.Header
}

// RegisterSteps registers write rate limit steps. Scenarios using them are
// tagged @ratelimit and need a server with a small RATE_LIMIT_WRITES.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &rateLimitSteps{tc: tc}

	ctx.Step(`^I save an empty draft (\d+) times$`, steps.saveRepeatedly)
	ctx.Step(`^the last save should be rate limited$`, steps.lastSaveLimited)
}

type rateLimitSteps struct {
	tc TestContext
}

func (s *rateLimitSteps) saveRepeatedly(_ context.Context, n int) error {
	p := "/kyc/drafts/" + url.PathEscape(s.tc.GetRole())
	for range n {
		if err := s.tc.PUT(p, map[string]any{"status": "in_progress", "sections": map[string]any{}}); err != nil {
			return err
		}
	}
	return nil
}

func (s *rateLimitSteps) lastSaveLimited(context.Context) error {
	if got := s.tc.GetLastResponseStatus(); got != http.StatusTooManyRequests {
		return fmt.Errorf("expected 429, got %d", got)
	}
	if s.tc.GetLastResponseHeader().Get("Retry-After") == "" {
		return fmt.Errorf("missing Retry-After header")
	}
	return nil
}

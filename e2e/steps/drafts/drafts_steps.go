package drafts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	PUT(path string, body any) error
	Do(method, path string, body io.Reader, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetRole() string
	RememberUpload(slot, url string)
	Upload(slot string) (string, bool)
}

// RegisterSteps registers draft and upload steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &draftSteps{tc: tc}

	ctx.Step(`^I save my draft with:$`, steps.saveInProgress)
	ctx.Step(`^I submit my draft with:$`, steps.submit)
	ctx.Step(`^I fetch my draft$`, steps.fetch)
	ctx.Step(`^I fetch my draft without authentication$`, steps.fetchAnonymously)
	ctx.Step(`^I upload "([^"]*)" as "([^"]*)" to "([^"]*)"$`, steps.upload)
	ctx.Step(`^I download the upload for "([^"]*)"$`, steps.download)
}

type draftSteps struct {
	tc TestContext
}

func (s *draftSteps) draftPath() string {
	return "/kyc/drafts/" + url.PathEscape(s.tc.GetRole())
}

func (s *draftSteps) saveInProgress(_ context.Context, table *godog.Table) error {
	return s.save("in_progress", table)
}

func (s *draftSteps) submit(_ context.Context, table *godog.Table) error {
	return s.save("submitted", table)
}

// save sends the table's field/value rows as nested sections. Values
// "true", "false" and "null" are sent as JSON literals; "@upload" uses the
// URL returned by an earlier upload to the same slot.
func (s *draftSteps) save(status string, table *godog.Table) error {
	sections := map[string]any{}
	for i, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("row %d: want field | value", i+1)
		}
		field, raw := row.Cells[0].Value, row.Cells[1].Value
		if i == 0 && field == "field" {
			continue
		}
		v, err := s.value(field, raw)
		if err != nil {
			return err
		}
		put(sections, strings.Split(field, "."), v)
	}
	return s.tc.PUT(s.draftPath(), map[string]any{
		"role":     s.tc.GetRole(),
		"status":   status,
		"sections": sections,
	})
}

func (s *draftSteps) value(field, raw string) (any, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	case "@upload":
		u, ok := s.tc.Upload(field)
		if !ok {
			return nil, fmt.Errorf("nothing uploaded to %s", field)
		}
		return u, nil
	}
	return raw, nil
}

func put(m map[string]any, keys []string, v any) {
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = v
}

func (s *draftSteps) fetch(context.Context) error {
	return s.tc.GET(s.draftPath(), nil)
}

func (s *draftSteps) fetchAnonymously(context.Context) error {
	return s.tc.GET(s.draftPath(), map[string]string{"Authorization": ""})
}

func (s *draftSteps) upload(_ context.Context, name, contentType, slot string) error {
	dest := path.Join(s.tc.GetRole(), slot, uuid.NewString()+path.Ext(name))
	q := url.Values{"dest": {dest}}.Encode()
	body := bytes.NewReader([]byte("e2e:" + name))
	if err := s.tc.Do("POST", "/kyc/uploads?"+q, body, map[string]string{"Content-Type": contentType}); err != nil {
		return err
	}
	if u, err := s.tc.GetResponseField("url"); err == nil {
		s.tc.RememberUpload(slot, fmt.Sprint(u))
	}
	return nil
}

func (s *draftSteps) download(_ context.Context, slot string) error {
	u, ok := s.tc.Upload(slot)
	if !ok {
		return fmt.Errorf("nothing uploaded to %s", slot)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return err
	}
	return s.tc.GET(parsed.EscapedPath(), nil)
}

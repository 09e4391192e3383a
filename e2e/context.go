package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext is the per-scenario state shared by every step package.
type TestContext struct {
	BaseURL     string
	SigningKey  string
	Issuer      string
	Audience    string
	client      *http.Client
	accessToken string
	userID      string
	role        string
	uploads     map[string]string
	lastStatus  int
	lastHeader  http.Header
	lastBody    []byte
}

func NewTestContext(baseURL, signingKey, issuer, audience string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SigningKey: signingKey,
		Issuer:     issuer,
		Audience:   audience,
		client:     &http.Client{Timeout: 10 * time.Second},
		uploads:    map[string]string{},
	}
}

// Reset clears scenario state.
func (tc *TestContext) Reset() {
	tc.accessToken, tc.userID, tc.role = "", "", ""
	tc.uploads = map[string]string{}
	tc.lastStatus, tc.lastHeader, tc.lastBody = 0, nil, nil
}

// BecomeNewUser mints a token for a fresh user with the server's signing key.
func (tc *TestContext) BecomeNewUser(role string) error {
	tc.userID = uuid.NewString()
	tc.role = role
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": tc.userID,
		"role":    role,
		"sub":     tc.userID,
		"iss":     tc.Issuer,
		"aud":     []string{tc.Audience},
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
		"jti":     uuid.NewString(),
	})
	signed, err := token.SignedString([]byte(tc.SigningKey))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	tc.accessToken = signed
	return nil
}

func (tc *TestContext) GetAccessToken() string { return tc.accessToken }
func (tc *TestContext) GetUserID() string      { return tc.userID }
func (tc *TestContext) GetRole() string        { return tc.role }

func (tc *TestContext) RememberUpload(slot, url string) { tc.uploads[slot] = url }

func (tc *TestContext) Upload(slot string) (string, bool) {
	u, ok := tc.uploads[slot]
	return u, ok
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.Do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) PUT(path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.Do(http.MethodPut, path, bytes.NewReader(b), map[string]string{"Content-Type": "application/json"})
}

// Do sends an authenticated request unless headers set Authorization to "".
func (tc *TestContext) Do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int      { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte     { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader() http.Header { return tc.lastHeader }

// GetResponseField reads a dotted path from the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var cur any
	if err := json.Unmarshal(tc.lastBody, &cur); err != nil {
		return nil, fmt.Errorf("response is not JSON: %s", tc.lastBody)
	}
	for _, key := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
		if cur, ok = m[key]; !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
	}
	return cur, nil
}

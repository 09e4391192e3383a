// Package kycclient talks to the KYC draft service over HTTP. It satisfies
// the wizard's draft remote and attachment uploader ports.
package kycclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kycflow/internal/intake/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/circuit"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/platform/sentinel"
)

const maxResponseBytes = 4 << 20

// Client is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(cl *Client) {
		cl.token = token
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) {
		cl.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{baseURL: u}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.breaker == nil {
		c.breaker = circuit.New("kyc-service")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// GetDraft fetches the caller's draft. A missing draft returns an error
// matching sentinel.ErrNotFound.
func (c *Client) GetDraft(ctx context.Context, role id.Role) (*models.Draft, error) {
	var d models.Draft
	if err := c.do(ctx, http.MethodGet, "/kyc/drafts/"+url.PathEscape(string(role)), nil, "", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PutDraft sends a full save and returns the record the server accepted.
func (c *Client) PutDraft(ctx context.Context, req models.SaveDraftRequest) (*models.Draft, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}
	var d models.Draft
	err = c.do(ctx, http.MethodPut, "/kyc/drafts/"+url.PathEscape(string(req.Role)),
		bytes.NewReader(body), "application/json", &d)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Upload streams body to dest and returns its public URL.
func (c *Client) Upload(ctx context.Context, dest, name, contentType string, body io.Reader) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var res models.UploadResult
	p := "/kyc/uploads?" + url.Values{"dest": {dest}}.Encode()
	if err := c.do(ctx, http.MethodPost, p, body, contentType, &res); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if res.URL == "" {
		return "", fmt.Errorf("upload %s: empty url in response", name)
	}
	return res.URL, nil
}

// BreakerState exposes the circuit position for status output.
func (c *Client) BreakerState() circuit.State {
	return c.breaker.State()
}

func (c *Client) do(ctx context.Context, method, p string, body io.Reader, contentType string, out any) error {
	if !c.breaker.Allow() {
		return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, "kyc service circuit open")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+p, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.recordFailure(ctx)
		return dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "kyc service unreachable")
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.recordFailure(ctx)
		return dErrors.Wrap(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), dErrors.CodeUnavailable, "read kyc response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.recordFailure(ctx)
		code, msg := remoteError(payload, resp)
		return dErrors.Wrap(fmt.Errorf("%w: status %d", sentinel.ErrUnavailable, resp.StatusCode), code, msg)
	}
	c.recordSuccess(ctx)

	if resp.StatusCode >= http.StatusBadRequest {
		code, msg := remoteError(payload, resp)
		if resp.StatusCode == http.StatusNotFound {
			return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, msg)
		}
		return dErrors.New(code, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode kyc response")
	}
	return nil
}

func (c *Client) recordFailure(ctx context.Context) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "kyc service circuit opened", "breaker", c.breaker.Name())
	}
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "kyc service circuit closed", "breaker", c.breaker.Name())
	}
}

// remoteError reads the server's error envelope. The status code decides
// the code only when the body carries none.
func remoteError(payload []byte, resp *http.Response) (dErrors.Code, string) {
	code := httputil.CodeFor(resp.StatusCode)
	msg := resp.Status
	var env httputil.ErrorResponse
	if err := json.Unmarshal(payload, &env); err == nil {
		if env.Error != "" {
			code = dErrors.Code(env.Error)
			msg = env.Error
		}
		if env.ErrorDescription != "" {
			msg = env.ErrorDescription
		}
	}
	return code, msg
}

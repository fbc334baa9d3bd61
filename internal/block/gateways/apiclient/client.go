// Package apiclient is a typed client for the rr-block management API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/gateways/transport"
	"github.com/haukened/rr-block/internal/block/repos/parsers"
	"github.com/haukened/rr-block/internal/block/services/rules"
)

// DefaultBaseURL matches the daemon's default API address.
const DefaultBaseURL = "http://127.0.0.1:8081"

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Unwrap maps 404 onto domain.ErrNotFound so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

// Client talks to one rr-block daemon.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a Client for baseURL. A nil httpClient selects a 30s-timeout default.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: u, http: httpClient}, nil
}

func (c *Client) List(ctx context.Context) ([]domain.BlockRule, error) {
	var out []domain.BlockRule
	err := c.do(ctx, http.MethodGet, "/v1/rules", nil, nil, "", &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (domain.BlockRule, error) {
	var out domain.BlockRule
	err := c.do(ctx, http.MethodGet, "/v1/rules/"+url.PathEscape(id), nil, nil, "", &out)
	return out, err
}

func (c *Client) Add(ctx context.Context, rawURL string) (domain.BlockRule, error) {
	body, err := json.Marshal(transport.AddRuleRequest{URL: rawURL})
	if err != nil {
		return domain.BlockRule{}, err
	}
	var out domain.BlockRule
	err = c.do(ctx, http.MethodPost, "/v1/rules", nil, bytes.NewReader(body), "application/json", &out)
	return out, err
}

func (c *Client) Toggle(ctx context.Context, id string) (domain.BlockRule, error) {
	var out domain.BlockRule
	err := c.do(ctx, http.MethodPost, "/v1/rules/"+url.PathEscape(id)+"/toggle", nil, nil, "", &out)
	return out, err
}

func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/rules/"+url.PathEscape(id), nil, nil, "", nil)
}

// Import uploads a host list in the given format.
func (c *Client) Import(ctx context.Context, list io.Reader, format parsers.Format, source string) (rules.ImportResult, error) {
	q := url.Values{}
	q.Set("format", string(format))
	if source != "" {
		q.Set("source", source)
	}
	var out rules.ImportResult
	err := c.do(ctx, http.MethodPost, "/v1/import", q, list, "text/plain", &out)
	return out, err
}

// Check asks the daemon whether requestURL would be blocked.
func (c *Client) Check(ctx context.Context, requestURL string) (domain.BlockDecision, error) {
	q := url.Values{}
	q.Set("url", requestURL)
	var out domain.BlockDecision
	err := c.do(ctx, http.MethodGet, "/v1/decision", q, nil, "", &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (transport.StatsResponse, error) {
	var out transport.StatsResponse
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, nil, "", &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (transport.HealthResponse, error) {
	var out transport.HealthResponse
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, "", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var er transport.ErrorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error != "" {
		apiErr.Message = er.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// Package client is the consumer side of the discounts API: it keeps a
// session alive across its 24h lifetime by renewing it silently before it
// expires, and attaches it to outgoing requests.
package client

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

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// LoginResponse is the body of a successful POST /api/login.
type LoginResponse struct {
	Success   bool               `json:"success"`
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	User      domainauth.Profile `json:"user"`
}

// VerifyResponse is the body of a successful GET /api/verify.
type VerifyResponse struct {
	Valid bool            `json:"valid"`
	Email string          `json:"email"`
	Name  string          `json:"name"`
	Role  domainauth.Role `json:"role"`
}

// SaveResponse is the body of a successful POST /api/save-config.
type SaveResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// APIClient calls the discounts API. Authorization is the job of the
// http.Client's transport; APIClient itself never touches tokens except for
// Verify, which takes one explicitly.
type APIClient struct {
	base *url.URL
	http *http.Client
}

// NewAPIClient creates a client for the API at baseURL. A nil httpClient uses http.DefaultClient.
func NewAPIClient(baseURL string, httpClient *http.Client) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{base: u, http: httpClient}, nil
}

// WithHTTPClient returns a copy of c that sends requests through hc.
func (c *APIClient) WithHTTPClient(hc *http.Client) *APIClient {
	return &APIClient{base: c.base, http: hc}
}

// Login exchanges an identity credential for a session.
func (c *APIClient) Login(ctx context.Context, credential string) (*LoginResponse, error) {
	body, err := json.Marshal(map[string]string{"credential": credential})
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", bytes.NewReader(body), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the server whether token is still valid.
func (c *APIClient) Verify(ctx context.Context, token string) (*VerifyResponse, error) {
	hdr := http.Header{"Authorization": {"Bearer " + token}}
	var out VerifyResponse
	if err := c.do(ctx, http.MethodGet, "/api/verify", nil, hdr, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadConfig returns the configuration document.
func (c *APIClient) LoadConfig(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/load-config", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveConfig replaces the configuration document.
func (c *APIClient) SaveConfig(ctx context.Context, doc []byte) (*SaveResponse, error) {
	var out SaveResponse
	if err := c.do(ctx, http.MethodPost, "/api/save-config", bytes.NewReader(doc), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body io.Reader, hdr http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	e := &APIError{Status: status}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		e.Message, e.Code = body.Error, body.Code
	} else {
		e.Message = http.StatusText(status)
	}
	return e
}

package billing

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

	"github.com/MrEthical07/deskauth/token"
)

// DefaultTimeout bounds a billing call when the Client has no HTTPClient.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 1 << 20

// ErrNotConfigured is returned when the client has no base URL or token source.
var ErrNotConfigured = errors.New("billing client not configured")

// TokenSource mints billing tokens. *deskauth.Broker implements it.
type TokenSource interface {
	BillingToken(claims token.Claims) (string, error)
}

// APIError is a non-2xx reply from the billing service.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("billing: status %d", e.Status)
	}
	return fmt.Sprintf("billing: status %d: %s", e.Status, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client is safe for concurrent use once configured.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
}

// New returns a client for baseURL with a bounded HTTP client.
func New(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		Tokens:     tokens,
	}
}

// Do sends body as JSON to path and decodes the envelope's data into out.
// path may carry a query string. body may be nil or a json.RawMessage
// forwarded verbatim. out may be nil.
func (c *Client) Do(ctx context.Context, claims token.Claims, method, path string, body, out interface{}) error {
	if c == nil || c.BaseURL == "" || c.Tokens == nil {
		return ErrNotConfigured
	}

	bearer, err := c.Tokens.BillingToken(claims)
	if err != nil {
		return err
	}

	endpoint, err := c.resolve(path)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, ok := body.(json.RawMessage)
		if !ok {
			payload, err = json.Marshal(body)
			if err != nil {
				return fmt.Errorf("billing: encode request: %w", err)
			}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("billing: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("billing: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("billing: read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("billing: decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("billing: decode data: %w", err)
	}
	return nil
}

func (c *Client) resolve(path string) (string, error) {
	path, rawQuery, _ := strings.Cut(path, "?")
	path = "/" + strings.TrimLeft(path, "/")
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("billing: invalid path %q", path)
	}
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + path)
	if err != nil {
		return "", fmt.Errorf("billing: invalid path %q: %w", path, err)
	}
	if rawQuery != "" {
		if _, err := url.ParseQuery(rawQuery); err != nil {
			return "", fmt.Errorf("billing: invalid query %q: %w", rawQuery, err)
		}
		u.RawQuery = rawQuery
	}
	return u.String(), nil
}

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHost is the production Glue Home API base URL.
const DefaultHost = "https://user-api.gluehome.com"

const (
	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20

	defaultRequestTimeout = 30 * time.Second
)

// Authenticator decorates an outgoing request with credentials.
type Authenticator interface {
	Apply(req *http.Request)
}

// BasicAuth authenticates with the account username and password.
// Only API key issuance uses it.
type BasicAuth struct {
	Username string
	Password string
}

// Apply sets the HTTP Basic Authorization header.
func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.Username, a.Password)
}

// APIKeyAuth authenticates with an issued API key.
type APIKeyAuth string

// Apply sets "Authorization: Api-Key <key>".
func (a APIKeyAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Api-Key "+string(a))
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// Options configures a Client.
type Options struct {
	// Host is the API base URL. Default: DefaultHost.
	Host string

	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// Client talks to the Glue Home API.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	host       string
	httpClient *http.Client
}

// NewClient creates a Client. Zero-value options give a production client.
func NewClient(opts Options) *Client {
	host := strings.TrimRight(opts.Host, "/")
	if host == "" {
		host = DefaultHost
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

// Host returns the base URL requests are sent to.
func (c *Client) Host() string {
	return c.host
}

// Do performs one authenticated request and classifies the outcome.
//
// The path is appended to the base host unless it is already an absolute
// URL (operation self links), in which case it is used as-is. A non-nil body
// is sent as JSON.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - method: HTTP method
//   - path: Path relative to the host, or an absolute URL
//   - auth: Credentials to apply (may be nil)
//   - body: Request payload, JSON-encoded when non-nil
//
// Returns:
//   - *Response: The 2xx response with its body fully read
//   - error: *NetworkError, ErrInvalidAuth, *ServerError or *NonSuccessfulResponseError
func (c *Client) Do(ctx context.Context, method, path string, auth Authenticator, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if auth != nil {
		auth.Apply(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidAuth
	}

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Error bodies are diagnostic only; keep what was read, capped.
		if len(data) > maxBodyBytes {
			data = data[:maxBodyBytes]
		}
		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			return nil, &ServerError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return nil, &NonSuccessfulResponseError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if readErr != nil {
		return nil, &NetworkError{Err: fmt.Errorf("reading response body: %w", readErr)}
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedResponse, maxBodyBytes)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// resolve joins a relative path onto the host; absolute URLs pass through.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.host + path
}

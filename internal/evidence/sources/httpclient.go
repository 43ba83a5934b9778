package sources

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

	"golang.org/x/time/rate"

	pstrings "diligence/pkg/platform/strings"
)

const maxResponseBytes = 4 << 20

// HTTPClient is the shared JSON transport for HTTP evidence sources. Each
// adapter owns one, with its own rate limiter, so a chatty source cannot
// starve the others.
type HTTPClient struct {
	kind      Kind
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	headers   http.Header
	query     url.Values
	basicUser string
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHeader adds a static header to every request (API keys).
func WithHeader(name, value string) ClientOption {
	return func(c *HTTPClient) {
		if value != "" {
			c.headers.Set(name, value)
		}
	}
}

// WithQueryParam adds a static query parameter to every request (API tokens).
func WithQueryParam(name, value string) ClientOption {
	return func(c *HTTPClient) {
		if value != "" {
			c.query.Set(name, value)
		}
	}
}

// WithBasicAuthUser sends the key as the basic-auth username with an empty
// password, as Companies House expects.
func WithBasicAuthUser(user string) ClientOption {
	return func(c *HTTPClient) {
		c.basicUser = user
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client = &http.Client{Timeout: d, Transport: c.client.Transport}
		}
	}
}

// NewHTTPClient builds a client for the given source kind.
func NewHTTPClient(kind Kind, baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		kind:    kind,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		headers: make(http.Header),
		query:   make(url.Values),
	}
	c.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues a GET and returns the status code and body.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return 0, nil, NewProviderError(ErrorInternal, c.kind, "build request", err)
	}
	return c.do(ctx, req)
}

// PostJSON issues a POST with a JSON body and returns the status code and body.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, NewProviderError(ErrorInternal, c.kind, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(payload))
	if err != nil {
		return 0, nil, NewProviderError(ErrorInternal, c.kind, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req)
}

func (c *HTTPClient) endpoint(path string, query url.Values) string {
	q := make(url.Values, len(c.query)+len(query))
	for k, v := range c.query {
		q[k] = v
	}
	for k, v := range query {
		q[k] = v
	}
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *HTTPClient) do(ctx context.Context, req *http.Request) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, NewProviderError(ErrorTimeout, c.kind, "rate limiter wait", err)
		}
	}
	for name, values := range c.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if c.basicUser != "" {
		req.SetBasicAuth(c.basicUser, "")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, c.transportError(ctx, err)
	}
	return resp.StatusCode, body, nil
}

func (c *HTTPClient) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, c.kind, "request timed out", err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return NewProviderError(ErrorTimeout, c.kind, "request timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, c.kind, "request failed", err)
}

// maxSnippetChars bounds the response body quoted in status errors.
const maxSnippetChars = 200

// ErrorFromStatus converts a non-2xx status into a ProviderError.
func ErrorFromStatus(kind Kind, status int, body []byte) error {
	snippet, _ := pstrings.Truncate(strings.TrimSpace(string(body)), maxSnippetChars)
	category := CategoryForStatus(status)
	if category == ErrorNotFound {
		return NotFoundError(kind, "no record")
	}
	return NewProviderError(category, kind, fmt.Sprintf("unexpected status %d", status), errors.New(snippet))
}

// DecodeJSON unmarshals a body, reporting malformed payloads as bad data.
func DecodeJSON(kind Kind, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return NewProviderError(ErrorBadData, kind, "malformed response", err)
	}
	return nil
}

// RequireParam returns the trimmed parameter or an invalid-params error.
func RequireParam(kind Kind, params Params, key string) (string, error) {
	v := params.Get(key)
	if v == "" {
		return "", NewProviderError(ErrorInvalidParams, kind, "missing parameter "+key, nil)
	}
	return v, nil
}

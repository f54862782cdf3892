// Package client is jsandy's client proxy: a statically-typed stand-in for
// the dynamic $get/$post/$ws property proxy spec.md describes, following
// its own §9 design note that a typed target should look like a
// compile-time transformation of the router's type rather than attempt a
// runtime dynamic proxy Go cannot idiomatically express.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jsandy/jsandy"
)

// Client is the HTTP entry point for talking to a jsandy router.
type Client struct {
	baseURL string
	http    *http.Client
	headers http.Header
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (timeouts, transport,
// proxying).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithHeader sets a header sent on every request (auth tokens, tenant IDs).
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// New builds a Client targeting baseURL (e.g. "https://api.example.com").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    http.DefaultClient,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL resolves path against the client's base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	return c.http.Do(req)
}

// readResult reads resp and either decodes a successful body into Out or
// reconstructs an HttpError from the plain-text error body, mirroring
// spec.md §6/§4.9: non-2xx responses carry the failure message as body
// text, and the client proxy reconstructs HttpError{status, message} from
// it.
func readResult[Out any](resp *http.Response) (Out, error) {
	var zero Out
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("jsandy/client: reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return zero, &HttpError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return zero, nil
	}

	tagged := resp.Header.Get(jsandy.SuperJSONHeader) == "true"
	decoded, err := jsandy.DecodeBody(string(body), tagged)
	if err != nil {
		return zero, err
	}

	fields, ok := decoded.(map[string]any)
	if !ok {
		fields = map[string]any{"": decoded}
	}
	return jsandy.Bind[Out](fields)
}

// HttpError is what a non-2xx HTTP response becomes once the client has
// read its plain-text body, per spec.md §4.9.
type HttpError struct {
	Status  int
	Message string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("jsandy: http %d: %s", e.Status, e.Message)
}

func encodeQuery[In any](input In) (string, error) {
	fields, err := jsandy.EncodeFields(input)
	if err != nil {
		return "", err
	}

	values := url.Values{}
	for k, text := range fields {
		values.Set(k, text)
	}
	return values.Encode(), nil
}

// Get issues a GET request against path, encoding each field of input as a
// per-field query parameter, and decodes the response into Out.
func Get[In, Out any](c *Client, path string, input In) (Out, error) {
	var zero Out
	query, err := encodeQuery(input)
	if err != nil {
		return zero, err
	}

	target := c.URL(path)
	if query != "" {
		target += "?" + query
	}

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return zero, err
	}

	resp, err := c.do(req)
	if err != nil {
		return zero, err
	}
	return readResult[Out](resp)
}

// Post issues a POST request against path with input's fields individually
// codec-encoded in the JSON body, and decodes the response into Out.
func Post[In, Out any](c *Client, path string, input In) (Out, error) {
	var zero Out

	fields, err := jsandy.EncodeFields(input)
	if err != nil {
		return zero, err
	}

	raw := make(map[string]json.RawMessage, len(fields))
	for k, text := range fields {
		raw[k] = json.RawMessage(text)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return zero, err
	}

	req, err := http.NewRequest(http.MethodPost, c.URL(path), bytes.NewReader(payload))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return zero, err
	}
	return readResult[Out](resp)
}

// Package client is a small JSON client for the storefront API, used by the
// benchmark.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type RequestOptions struct {
	Headers map[string]string
	Timeout time.Duration
}

type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Envelope mirrors the server's response wrapper
type Envelope[T any] struct {
	Body T    `json:"body"`
	Meta Meta `json:"meta"`
}

// Meta is the ledger part of the envelope
type Meta struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	Subject     string `json:"subject"`
	TxID        string `json:"tx_id"`
	BlockHeight int64  `json:"block_height"`
}

// ErrorBody is the body of a failed request
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type HTTPClient struct {
	BaseURL     string
	Client      *http.Client
	DefaultOpts RequestOptions
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		DefaultOpts: RequestOptions{
			Headers: map[string]string{},
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPClient) Call(ctx context.Context, method, endpoint string, body interface{}, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &c.DefaultOpts
	}

	var bodyReader io.Reader
	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyJSON)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

func (c *HTTPClient) GET(ctx context.Context, endpoint string, opts *RequestOptions) (*Response, error) {
	return c.Call(ctx, http.MethodGet, endpoint, nil, opts)
}

func (c *HTTPClient) POST(ctx context.Context, endpoint string, body interface{}, opts *RequestOptions) (*Response, error) {
	return c.Call(ctx, http.MethodPost, endpoint, body, opts)
}

func (c *HTTPClient) PUT(ctx context.Context, endpoint string, body interface{}, opts *RequestOptions) (*Response, error) {
	return c.Call(ctx, http.MethodPut, endpoint, body, opts)
}

// Decode unwraps the envelope of resp into T
func Decode[T any](resp *Response) (*Envelope[T], error) {
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	var env Envelope[T]
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response body: %w", err)
	}
	return &env, nil
}

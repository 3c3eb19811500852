// Package httpclient implements the capabilities against remote collaborator
// services over HTTP/JSON.
//
// A 404 answer is reported as capability.ErrNotFound; transport failures,
// timeouts and 5xx answers as capability.ErrUnavailable.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
	"github.com/jcmexdev/fulfillment-saga/internal/capability/httpapi"
	"github.com/jcmexdev/fulfillment-saga/internal/pkg/interceptors"
)

const DefaultTimeout = 10 * time.Second

type Option func(*client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.http.Timeout = d }
}

type client struct {
	name string
	base string
	http *http.Client
}

func newClient(name, baseURL string, opts ...Option) *client {
	c := &client{
		name: name,
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	interceptors.InjectHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s %s: %w: %w", c.name, method, path, capability.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s %s: read body: %w: %w", c.name, method, path, capability.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %s: %w", c.name, path, errorMessage(raw), capability.ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s %s: status %d: %s: %w", c.name, method, path, resp.StatusCode, errorMessage(raw), capability.ErrUnavailable)
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s %s %s: status %d: %s", c.name, method, path, resp.StatusCode, errorMessage(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s %s: decode response: %w: %w", c.name, method, path, capability.ErrUnavailable, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e httpapi.ErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}

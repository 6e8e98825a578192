// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/buildinfo"
	"github.com/autobrr/requestarr/internal/models"
)

const (
	DefaultTimeout = 10 * time.Second
	QueuePageSize  = 50
)

// Global HTTP client pool, keyed by timeout and TLS verification.
var httpClients sync.Map

type clientKey struct {
	timeout  time.Duration
	insecure bool
}

// getHTTPClient returns a pooled client for the given settings
func getHTTPClient(timeout time.Duration, verifySSL bool) *http.Client {
	key := clientKey{timeout: timeout, insecure: !verifySSL}
	if client, ok := httpClients.Load(key); ok {
		return client.(*http.Client)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if !verifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	actual, _ := httpClients.LoadOrStore(key, client)
	return actual.(*http.Client)
}

// Options configures a Client.
type Options struct {
	URL       string
	APIKey    string
	VerifySSL bool
	Timeout   time.Duration
}

// Client talks to one arr backend. It holds only construction-time settings
// and is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	desc    Descriptor
	http    *http.Client
}

// NewClient creates a client for the given backend kind.
func NewClient(kind models.Kind, opts Options) (*Client, error) {
	desc, ok := DescriptorFor(kind)
	if !ok {
		return nil, fmt.Errorf("unsupported service type %q", kind)
	}
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("%s: url is required", kind)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.URL), "/"),
		apiKey:  opts.APIKey,
		desc:    desc,
		http:    getHTTPClient(opts.Timeout, opts.VerifySSL),
	}, nil
}

// NewClientFromSettings creates a client from persisted settings.
func NewClientFromSettings(settings models.ServiceSettings, timeout time.Duration) (*Client, error) {
	return NewClient(settings.Kind, Options{
		URL:       settings.URL,
		APIKey:    settings.APIKey,
		VerifySSL: settings.VerifySSL,
		Timeout:   timeout,
	})
}

// Kind returns the backend kind of the client.
func (c *Client) Kind() models.Kind {
	return c.desc.Kind
}

// Descriptor returns the backend descriptor of the client.
func (c *Client) Descriptor() Descriptor {
	return c.desc
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) apiURL(endpoint string, params url.Values) string {
	u := c.baseURL + "/api/" + c.desc.APIVersion + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Request performs an authenticated call and returns the raw JSON body.
// An empty or whitespace-only body is returned as an empty object.
func (c *Client) Request(ctx context.Context, method, endpoint string, params url.Values, body any) (json.RawMessage, error) {
	op := strings.ToLower(method) + " " + endpoint
	service := c.desc.Kind.String()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &ErrArr{Service: service, Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	reqURL := c.apiURL(endpoint, params)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, &ErrArr{Service: service, Op: op, Err: err}
	}

	req.Header.Set(c.desc.AuthHeader, c.apiKey)
	buildinfo.AttachUserAgentHeader(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("service", service).Str("op", op).Msg("Request failed")
		return nil, &ErrArr{Service: service, Op: op, Err: err, class: ErrCannotConnect}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrArr{Service: service, Op: op, Err: err, class: ErrCannotConnect}
	}

	log.Trace().
		Str("service", service).
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &ErrArr{Service: service, Op: op, HttpCode: resp.StatusCode, class: ErrInvalidAuth}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &ErrArr{
			Service:  service,
			Op:       op,
			HttpCode: resp.StatusCode,
			Reason:   reasonPhrase(resp),
			Body:     string(data),
			class:    ErrServer,
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}"), nil
	}

	if !json.Valid(data) {
		return nil, &ErrArr{Service: service, Op: op, Err: fmt.Errorf("invalid JSON response")}
	}

	return json.RawMessage(data), nil
}

// get performs a GET and decodes the response into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	raw, err := c.Request(ctx, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return err
	}
	return c.decode(endpoint, raw, out)
}

func (c *Client) decode(endpoint string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &ErrArr{Service: c.desc.Kind.String(), Op: "decode " + endpoint, Err: err}
	}
	return nil
}

// decodeDocument decodes a generic document, keeping numbers as json.Number
// so they are written back exactly.
func (c *Client) decodeDocument(endpoint string, raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ErrArr{Service: c.desc.Kind.String(), Op: "decode " + endpoint, Err: err}
	}
	if doc == nil {
		return nil, &ErrArr{Service: c.desc.Kind.String(), Op: "decode " + endpoint, Err: errors.New("empty document")}
	}
	return doc, nil
}

// isList reports whether raw is a JSON array.
func isList(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// decodeList decodes a JSON array, treating any other shape as empty.
func decodeList[T any](c *Client, endpoint string, raw json.RawMessage) ([]T, error) {
	if !isList(raw) {
		return []T{}, nil
	}
	var items []T
	if err := c.decode(endpoint, raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func reasonPhrase(resp *http.Response) string {
	if reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))); reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

/*
 * Copyright (C) 2023 ipdata, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package ipdata implements the client for the ipdata geolocation and
// threat-intelligence API.
package ipdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var (
	log  = logrus.WithField("component", "ipdata.Client")
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

const (
	// DefaultEndpoint is the global API endpoint.
	DefaultEndpoint = "https://api.ipdata.co"
	// EUEndpoint keeps all request processing inside the EU.
	EUEndpoint = "https://eu-api.ipdata.co"
	// BulkLimit is the maximum number of resources per bulk request.
	BulkLimit = 100

	defaultTimeout    = 60 * time.Second
	defaultRetryLimit = 7
	defaultBackoff    = time.Second
	userAgent         = "ipdata-go"
)

// Response is a decoded API response. Nested objects (asn, company, threat)
// stay as generic maps until decoded with DecodeField. The HTTP status is
// injected under "status" so callers can distinguish quota and auth
// failures from successful lookups.
type Response map[string]interface{}

// Status returns the HTTP status the response was delivered with.
func (r Response) Status() int {
	s, _ := r["status"].(int)
	return s
}

// Message returns the API error message, if any.
func (r Response) Message() string {
	m, _ := r["message"].(string)
	return m
}

// Client makes requests against the ipdata API. It retries on 429 and 5xx
// responses with exponential backoff. The zero value is not usable; call
// NewClient.
type Client struct {
	apiKey        string
	endpoint      string
	client        *http.Client
	retryLimit    uint64
	backoffFactor time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithEndpoint points the client at a different API endpoint, e.g.
// EUEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRetryLimit sets the maximum number of retries per request.
func WithRetryLimit(n int) Option {
	return func(c *Client) { c.retryLimit = uint64(n) }
}

// WithBackoffFactor sets the initial retry interval.
func WithBackoffFactor(d time.Duration) Option {
	return func(c *Client) { c.backoffFactor = d }
}

// NewClient returns a Client authenticated with the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		endpoint:      DefaultEndpoint,
		client:        &http.Client{Timeout: defaultTimeout},
		retryLimit:    defaultRetryLimit,
		backoffFactor: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches the record for a resource: an IP address, an ASN
// ("AS15169", case-insensitive), or the empty string for the caller's own
// IP. Private, loopback and multicast addresses are rejected before any
// request is made. fields narrows the response to the named fields.
func (c *Client) Lookup(ctx context.Context, resource string, fields []string) (Response, error) {
	resource = strings.TrimSpace(resource)
	if resource != "" {
		var err error
		if resource, err = normalizeResource(resource); err != nil {
			return nil, err
		}
	}
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}

	q := url.Values{"api-key": {c.apiKey}}
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	body, status, err := c.do(ctx, http.MethodGet, c.endpoint+"/"+resource, q, nil)
	if err != nil {
		return nil, err
	}

	data := Response{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding the API response: %w", err)
	}
	data["status"] = status
	return data, nil
}

// Bulk looks up as many as BulkLimit resources in one request.
func (c *Client) Bulk(ctx context.Context, resources []string, fields []string) ([]Response, error) {
	if len(resources) == 0 {
		return nil, errors.New("bulk lookups must contain at least 1 resource")
	}
	if len(resources) > BulkLimit {
		return nil, fmt.Errorf("bulk lookups are limited to %d resources per request", BulkLimit)
	}
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(resources)
	if err != nil {
		return nil, err
	}
	q := url.Values{"api-key": {c.apiKey}}
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	body, status, err := c.do(ctx, http.MethodPost, c.endpoint+"/bulk", q, payload)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		failure := Response{}
		_ = json.Unmarshal(body, &failure)
		return nil, fmt.Errorf("bulk lookup failed: status %d: %s", status, failure.Message())
	}
	var responses []Response
	if err := json.Unmarshal(body, &responses); err != nil {
		return nil, fmt.Errorf("error decoding the API response: %w", err)
	}
	for _, r := range responses {
		r["status"] = status
	}
	return responses, nil
}

// Usage returns today's request count. The quota resets at 00:00 UTC.
func (c *Client) Usage(ctx context.Context) (int, error) {
	data, err := c.Lookup(ctx, "", []string{"count"})
	if err != nil {
		return 0, err
	}
	if data.Status() != http.StatusOK {
		return 0, fmt.Errorf("usage lookup failed: status %d: %s", data.Status(), data.Message())
	}
	switch v := data["count"].(type) {
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	}
	return 0, errors.New("no usage count in response")
}

// do performs one HTTP exchange, retrying transport errors and 429/5xx
// statuses. Other statuses are returned to the caller together with the
// body: quota and auth failures carry an API message worth surfacing.
func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values, reqBody []byte) ([]byte, int, error) {
	var (
		body   []byte
		status int
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.URL.RawQuery = query.Encode()
		req.Header.Set("User-Agent", userAgent)
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if retryable(resp.StatusCode) {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		body = b
		status = resp.StatusCode
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoffFactor
	notify := func(err error, wait time.Duration) {
		log.WithError(err).Debugf("retrying %s in %s", rawURL, wait)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retryLimit), ctx), notify)
	if err != nil {
		return nil, 0, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	return body, status, nil
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// normalizeResource validates a lookup target: a public IP address, or an
// ASN which is uppercased in case of a typoed query like "as15169".
func normalizeResource(resource string) (string, error) {
	if addr, err := netip.ParseAddr(resource); err == nil && addr.Zone() == "" {
		if reserved(addr) {
			return "", fmt.Errorf("%q is a reserved IP address", resource)
		}
		return resource, nil
	}
	upper := strings.ToUpper(resource)
	if asn, ok := strings.CutPrefix(upper, "AS"); ok && asn != "" {
		if _, err := strconv.ParseUint(asn, 10, 32); err == nil {
			return upper, nil
		}
	}
	return "", fmt.Errorf("%q is not a valid IP address or ASN", resource)
}

func reserved(addr netip.Addr) bool {
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsMulticast() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scrape

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultUserAgent = "scour/1.0"
	maxBodySize      = 10 << 20 // 10MB cap on scraped responses

	fetchRetries    = 2
	fetchRetryDelay = 500 * time.Millisecond
)

// Client wraps an HTTP client with a per-instance cookie jar so form and
// cookie logins survive across the login-then-search sequence.
type Client struct {
	http *http.Client
}

// NewClient builds a client with a publicsuffix-aware cookie jar. Redirects
// are followed, which matters for login flows that bounce through an
// intermediate page.
func NewClient(timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// SetCookies seeds the jar for cookie-method logins.
func (c *Client) SetCookies(base *url.URL, header string) {
	var cookies []*http.Cookie
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	if len(cookies) > 0 {
		c.http.Jar.SetCookies(base, cookies)
	}
}

// Get fetches a URL, retrying transient failures. Non-2xx responses return
// UpstreamError with the body still delivered for failure-marker detection.
func (c *Client) Get(ctx context.Context, rawURL string) (string, int, error) {
	var body string
	var status int

	err := retry.Do(
		func() error {
			var err error
			body, status, err = c.do(ctx, http.MethodGet, rawURL, "", "")
			return err
		},
		retry.Context(ctx),
		retry.Attempts(fetchRetries+1),
		retry.Delay(fetchRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Str("url", rawURL).Msg("Retrying fetch")
		}),
	)
	return body, status, err
}

// Post submits a body without retrying; login and POST searches are not
// assumed idempotent.
func (c *Client) Post(ctx context.Context, rawURL, contentType, body string) (string, int, error) {
	return c.do(ctx, http.MethodPost, rawURL, contentType, body)
}

// PostForm submits URL-encoded form values.
func (c *Client) PostForm(ctx context.Context, rawURL string, values url.Values) (string, int, error) {
	return c.do(ctx, http.MethodPost, rawURL, "application/x-www-form-urlencoded", values.Encode())
}

func (c *Client) do(ctx context.Context, method, rawURL, contentType, body string) (string, int, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return string(data), resp.StatusCode, &UpstreamError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	return string(data), resp.StatusCode, nil
}

// isTransient reports whether a fetch is worth retrying: network errors and
// 5xx responses, but never auth-relevant statuses or context cancellation.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= 500
	}
	return true
}

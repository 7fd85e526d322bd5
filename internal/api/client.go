// Package api is the HTTP capability handed to every component of a session.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jmagar/epgrab/internal/log"
	"github.com/jmagar/epgrab/internal/model"
)

// Response is a fully read HTTP response.
type Response struct {
	Body       []byte
	FinalURL   string // URL after redirects, used to resolve relative references
	StatusCode int
}

// Fetcher is the narrow HTTP contract consumed by the manifest processor,
// the download engine and the key resolver.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
	Post(ctx context.Context, rawURL string, form url.Values) (*Response, error)
}

// Options configures a Client.
type Options struct {
	UserAgent string
	Headers   map[string]string
	Timeout   time.Duration // 0 = no client timeout
	RateLimit float64       // requests per second, 0 = unlimited
}

// Client implements Fetcher over net/http. Safe for concurrent use.
type Client struct {
	hc        *http.Client
	userAgent string
	headers   map[string]string
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

var _ Fetcher = (*Client)(nil)

// NewClient builds a client with its own cookie jar.
func NewClient(opts Options) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return NewClientWith(&http.Client{Jar: jar, Timeout: opts.Timeout}, opts), nil
}

// NewClientWith wraps an existing http.Client, e.g. one with a test transport.
func NewClientWith(hc *http.Client, opts Options) *Client {
	c := &Client{
		hc:        hc,
		userAgent: opts.UserAgent,
		headers:   opts.Headers,
		logger:    log.WithComponent("http"),
	}
	if c.userAgent == "" {
		c.userAgent = model.DefaultUserAgent
	}
	if opts.RateLimit > 0 {
		burst := max(int(opts.RateLimit), 1)
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Get fetches rawURL and returns the body with the post-redirect URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil)
}

// Post submits form fields url-encoded.
func (c *Client) Post(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, form)
}

func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values) (*Response, error) {
	if c.limiter != nil {
		start := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &model.NetworkError{URL: rawURL, Err: fmt.Errorf("rate limiter: %w", err)}
		}
		// Only log if we actually waited (> 1ms threshold avoids noise).
		if waited := time.Since(start); waited > time.Millisecond {
			c.logger.Debug().Str("url", rawURL).Dur("waited", waited).Msg("rate limited")
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &model.NetworkError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("url", rawURL).Err(err).Msg("request failed")
		return nil, &model.NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("url", rawURL).Err(err).Msg("read body failed")
		return nil, &model.NetworkError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	c.logger.Debug().
		Str("method", method).
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("duration", duration).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.NetworkError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Response{Body: data, FinalURL: finalURL, StatusCode: resp.StatusCode}, nil
}

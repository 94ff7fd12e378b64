package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"curator/internal/config"
)

// Options configures a Client.
type Options struct {
	ProxyURL  string
	UserAgent string
	Referer   string
	Timeout   time.Duration
	// RequestsPerSecond paces requests when positive.
	RequestsPerSecond float64
	MaxConnsPerHost   int
}

// Client wraps http.Client with shared headers and optional pacing.
type Client struct {
	http      *http.Client
	userAgent string
	referer   string
	limiter   *rate.Limiter
}

// New constructs a Client from options.
func New(opts Options) (*Client, error) {
	proxy := http.ProxyFromEnvironment
	if raw := strings.TrimSpace(opts.ProxyURL); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		proxy = http.ProxyURL(parsed)
	}
	maxConns := opts.MaxConnsPerHost
	if maxConns <= 0 {
		maxConns = 16
	}
	tr := &http.Transport{
		Proxy:                 proxy,
		MaxIdleConns:          64,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}
	client := &Client{
		http:      &http.Client{Timeout: opts.Timeout, Transport: tr},
		userAgent: strings.TrimSpace(opts.UserAgent),
		referer:   strings.TrimSpace(opts.Referer),
	}
	if opts.RequestsPerSecond > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return client, nil
}

// ForSource builds the paced client used for listing and manifest pages.
func ForSource(cfg *config.Config) (*Client, error) {
	return New(Options{
		ProxyURL:          cfg.Source.ProxyURL,
		UserAgent:         cfg.Source.UserAgent,
		Referer:           cfg.Source.Referer,
		Timeout:           cfg.Source.RequestTimeoutDuration(),
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
	})
}

// ForAssets builds the unpaced client used by the fetcher. Concurrency is
// bounded by the fetch gate instead.
func ForAssets(cfg *config.Config) (*Client, error) {
	return New(Options{
		ProxyURL:        cfg.Source.ProxyURL,
		UserAgent:       cfg.Source.UserAgent,
		Referer:         cfg.Source.Referer,
		Timeout:         cfg.Fetch.RequestTimeoutDuration(),
		MaxConnsPerHost: cfg.Fetch.MaxConcurrency,
	})
}

// Get issues a GET request with the shared headers applied.
func (c *Client) Get(ctx context.Context, target string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// NewRequest builds a request carrying the client's headers.
func (c *Client) NewRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	return req, nil
}

// Do waits for the pacing limiter then sends req.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return c.http.Do(req)
}

// Drain discards the rest of a response body and closes it so the
// connection can be reused.
func Drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

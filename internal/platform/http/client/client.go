// Package client provides a safe outbound HTTP client with SSRF protections.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/MahdiBaghbani/labrouter-go/internal/platform/config"
)

var (
	ErrSSRFBlocked         = errors.New("request blocked by SSRF protection")
	ErrTooManyRedirects    = errors.New("too many redirects")
	ErrResponseTooLarge    = errors.New("response body too large")
	ErrInvalidURL          = errors.New("invalid URL")
	ErrRedirectBlocked     = errors.New("redirect blocked by policy")
	ErrRedirectNotSameHost = errors.New("redirect to different host blocked")
	ErrRedirectDowngrade   = errors.New("redirect from https to http blocked")
	ErrHostUnresolvable    = errors.New("host could not be resolved")
)

// HTTPClient is the context-first interface outbound callers depend on.
// Implemented by ContextClient and satisfied by test doubles.
type HTTPClient interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Resolver abstracts DNS resolution for testing.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Client is a safe HTTP client with SSRF protections and bounded behavior.
type Client struct {
	cfg        config.OutboundHTTPConfig
	httpClient *http.Client
	resolver   Resolver
}

// New creates a new safe HTTP client. A nil cfg uses the strict preset.
// Proxy environment variables are ignored.
func New(cfg *config.OutboundHTTPConfig) *Client {
	if cfg == nil {
		cfg = &config.StrictConfig().OutboundHTTP
	}
	c := &Client{cfg: *cfg}

	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
	}

	transport := &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			// Re-checked at dial time so DNS rebinding cannot slip past the preflight.
			if c.strict() {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					host = addr
				}
				if err := c.checkSSRFHost(ctx, host); err != nil {
					return nil, err
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c
}

// SetResolver sets a custom DNS resolver (for testing).
func (c *Client) SetResolver(r Resolver) {
	c.resolver = r
}

// StdClient exposes the guarded *http.Client for SDKs that take one.
// Redirects are never followed by it.
func (c *Client) StdClient() *http.Client {
	return c.httpClient
}

func (c *Client) strict() bool {
	return c.cfg.SSRFMode == "strict"
}

func (c *Client) getResolver() Resolver {
	if c.resolver != nil {
		return c.resolver
	}
	return net.DefaultResolver
}

// checkSSRFHost rejects loopback, private, link-local, unspecified and multicast targets.
// Hostnames are resolved with the request context; resolution failures fail closed.
func (c *Client) checkSSRFHost(ctx context.Context, host string) error {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	switch strings.ToLower(host) {
	case "localhost", "localhost.localdomain":
		return fmt.Errorf("%w: localhost is blocked", ErrSSRFBlocked)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !IsAllowedAddr(addr) {
			return fmt.Errorf("%w: IP %s is blocked", ErrSSRFBlocked, addr)
		}
		return nil
	}

	ipAddrs, err := c.getResolver().LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHostUnresolvable, host, err)
	}
	for _, ipAddr := range ipAddrs {
		addr, ok := netip.AddrFromSlice(ipAddr.IP)
		if !ok || !IsAllowedAddr(addr) {
			return fmt.Errorf("%w: %s resolves to blocked IP %s", ErrSSRFBlocked, host, ipAddr.IP)
		}
	}
	return nil
}

// IsAllowedAddr reports whether addr is a public unicast address.
func IsAllowedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsUnspecified() &&
		!addr.IsMulticast()
}

// Get performs a GET request with safety protections.
func (c *Client) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return c.Do(req)
}

// Do performs an HTTP request with safety protections.
// GET and HEAD may follow same-host redirects up to outbound_http.max_redirects;
// any other method gets ErrRedirectBlocked on a 3xx.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.strict() {
		if err := c.checkSSRFHost(req.Context(), req.URL.Hostname()); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if !isRedirect(resp.StatusCode) {
		return resp, nil
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s received %d", ErrRedirectBlocked, req.Method, resp.StatusCode)
	}
	return c.followRedirect(req, resp, 0)
}

func (c *Client) followRedirect(origReq *http.Request, resp *http.Response, depth int) (*http.Response, error) {
	defer resp.Body.Close()
	ctx := origReq.Context()

	maxRedirects := c.cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 1
	}
	if depth >= maxRedirects {
		return nil, fmt.Errorf("%w: exceeded limit of %d", ErrTooManyRedirects, maxRedirects)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: no Location header", ErrRedirectBlocked)
	}
	target, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Location: %v", ErrRedirectBlocked, err)
	}
	target = origReq.URL.ResolveReference(target)

	if origReq.URL.Scheme == "https" && target.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectDowngrade, origReq.URL.Scheme, target.Scheme)
	}
	if !isSameHost(origReq.URL, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectNotSameHost, origReq.URL.Host, target.Host)
	}
	if c.strict() {
		if err := c.checkSSRFHost(ctx, target.Hostname()); err != nil {
			return nil, err
		}
	}

	next, err := http.NewRequestWithContext(ctx, origReq.Method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedirectBlocked, err)
	}
	// Authorization is deliberately not carried over.
	for _, h := range []string{"User-Agent", "Accept"} {
		if v := origReq.Header.Get(h); v != "" {
			next.Header.Set(h, v)
		}
	}

	nextResp, err := c.httpClient.Do(next)
	if err != nil {
		return nil, err
	}
	if isRedirect(nextResp.StatusCode) {
		return c.followRedirect(next, nextResp, depth+1)
	}
	return nextResp, nil
}

// isSameHost compares hostname (case-insensitive) and effective port.
func isSameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Hostname(), b.Hostname()) && effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// ReadLimited reads at most max bytes of body, failing with ErrResponseTooLarge beyond that.
func ReadLimited(body io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// PostJSON marshals payload, POSTs it with the given headers and returns the bounded body.
// Non-2xx statuses are returned with their body and no error; callers decide.
func (c *Client) PostJSON(ctx context.Context, urlStr string, header http.Header, payload any) ([]byte, *http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(buf))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := ReadLimited(resp.Body, c.cfg.MaxResponseBytes)
	if err != nil {
		return nil, resp, err
	}
	return body, resp, nil
}

// IsSSRFError returns true if the error is an SSRF blocking error.
func IsSSRFError(err error) bool {
	return errors.Is(err, ErrSSRFBlocked) || errors.Is(err, ErrHostUnresolvable)
}

// IsRedirectError returns true if the error is a redirect-related error.
func IsRedirectError(err error) bool {
	return errors.Is(err, ErrRedirectBlocked) ||
		errors.Is(err, ErrRedirectNotSameHost) ||
		errors.Is(err, ErrRedirectDowngrade) ||
		errors.Is(err, ErrTooManyRedirects)
}

// ContextClient adapts Client to the HTTPClient interface.
type ContextClient struct {
	client *Client
}

// NewContextClient creates a ContextClient adapter.
func NewContextClient(c *Client) *ContextClient {
	return &ContextClient{client: c}
}

// Do performs an HTTP request, using the provided context.
func (c *ContextClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(ctx))
}

// NewTrusted returns a ContextClient with the strict preset's limits but no
// SSRF checks, for endpoints the operator configured explicitly.
func NewTrusted() *ContextClient {
	cfg := config.StrictConfig().OutboundHTTP
	cfg.SSRFMode = "off"
	return NewContextClient(New(&cfg))
}

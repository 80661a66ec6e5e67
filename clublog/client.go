package clublog

import (
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
)

const (
	// DefaultBaseURL is the public ClubLog host.
	DefaultBaseURL = "https://clublog.org"

	// DefaultTimeout bounds every request, including reading the body.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the bridge to ClubLog.
	DefaultUserAgent = "clublog-ha-bridge/dev"

	// defaultMinRequestGap keeps back-to-back requests at least this far apart.
	defaultMinRequestGap = time.Second

	maxResponseBodySize = 4 << 20 // 4MB
)

// upstream resource paths
const (
	PathDXCCMatrix  = "/json_dxccchart.php"
	PathWatch       = "/watch.php"
	PathMostWanted  = "/mostwanted.php"
	PathExpeditions = "/expeditions.php"
	PathLivestreams = "/livestreams.php"
	PathActivity    = "/activity_json.php"
)

// same pooling shape as a single-host poller: one upstream, sequential requests
const (
	defaultMaxIdleConns        = 4
	defaultMaxIdleConnsPerHost = 2
	defaultIdleConnTimeout     = 90 * time.Second
)

// Credentials are the account details the authenticated resources need.
type Credentials struct {
	// APIKey is the application API key issued by ClubLog.
	APIKey string

	// Email is the ClubLog account email.
	Email string

	// AppPassword is an application-specific password for the account.
	AppPassword string

	// Callsign is the log the bridge reports on, e.g. "M0ABC".
	Callsign string
}

// Client issues requests against the ClubLog API.
//
// A Client reuses one pooled HTTP client for all requests and is safe for
// concurrent use, although the bridge only ever uses it sequentially.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	userAgent  string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// Option configures a [Client] during construction.
type Option func(*Client)

// WithBaseURL points the client at a different host, e.g. an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout overrides the 30 second per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMinRequestGap spaces consecutive requests at least gap apart.
// A gap of zero disables pacing.
func WithMinRequestGap(gap time.Duration) Option {
	return func(c *Client) {
		if gap <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(gap), 1)
	}
}

// NewClient creates a [Client] for the given account.
//
// Defaults: https://clublog.org, 30s timeout, one request per second.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			// no client-wide timeout: each request carries its own deadline
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		baseURL:   DefaultBaseURL,
		creds:     creds,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		limiter:   rate.NewLimiter(rate.Every(defaultMinRequestGap), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases idle connections. The client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// FetchDXCCMatrix returns the DXCC confirmation matrix for all modes, all
// dates and excluding satellite QSOs.
func (c *Client) FetchDXCCMatrix(ctx context.Context) (DXCCMatrix, error) {
	params := url.Values{
		"call":     {c.creds.Callsign},
		"api":      {c.creds.APIKey},
		"email":    {c.creds.Email},
		"password": {c.creds.AppPassword},
		"mode":     {"0"},
		"date":     {"0"},
		"sat":      {"0"},
	}
	var m DXCCMatrix
	if err := c.get(ctx, PathDXCCMatrix, params, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = DXCCMatrix{}
	}
	return m, nil
}

// FetchWatch returns the log summary for the configured callsign.
func (c *Client) FetchWatch(ctx context.Context) (*Watch, error) {
	params := url.Values{
		"call": {c.creds.Callsign},
		"api":  {c.creds.APIKey},
	}
	var w Watch
	if err := c.get(ctx, PathWatch, params, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// FetchMostWanted returns the most wanted ranking. No authentication.
func (c *Client) FetchMostWanted(ctx context.Context) (MostWanted, error) {
	var m MostWanted
	if err := c.get(ctx, PathMostWanted, url.Values{"api": {"1"}}, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FetchExpeditions returns the active expeditions. No authentication.
func (c *Client) FetchExpeditions(ctx context.Context) ([]Expedition, error) {
	var e []Expedition
	if err := c.get(ctx, PathExpeditions, url.Values{"api": {"1"}}, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// FetchLivestreams returns the active livestreams. No authentication.
func (c *Client) FetchLivestreams(ctx context.Context) ([]Livestream, error) {
	var l []Livestream
	if err := c.get(ctx, PathLivestreams, url.Values{"api": {"1"}}, &l); err != nil {
		return nil, err
	}
	return l, nil
}

// FetchActivity returns hourly band activity. Only the last year is
// requested; the full history regularly times out upstream.
func (c *Client) FetchActivity(ctx context.Context) (Activity, error) {
	params := url.Values{
		"call":     {c.creds.Callsign},
		"api":      {c.creds.APIKey},
		"lastyear": {"1"},
	}
	var a Activity
	if err := c.get(ctx, PathActivity, params, &a); err != nil {
		return nil, err
	}
	if a == nil {
		a = Activity{}
	}
	return a, nil
}

// get performs one GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Path: path, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &TransportError{Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Path: path, Err: redact(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
		return &HTTPError{Path: path, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return &TransportError{Path: path, Err: fmt.Errorf("failed to read response body: %w", redact(err))}
	}
	if len(body) > maxResponseBodySize {
		return &DecodeError{Path: path, Err: fmt.Errorf("response body exceeds %d bytes", maxResponseBodySize)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

// redact strips the request URL from url.Error values; the query string
// carries the API key and application password.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

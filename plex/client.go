// Package plex is a minimal client for the Plex Media Server HTTP API.
package plex

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

// Endpoint paths used by the exporter.
const (
	EndpointIdentity        = "/identity"
	EndpointSessions        = "/status/sessions"
	EndpointLibrarySections = "/library/sections"
	EndpointDevices         = "/devices"
	EndpointActivities      = "/activities"
	EndpointUpdaterStatus   = "/updater/status"
)

const tokenHeader = "X-Plex-Token"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClientConfig holds the connection settings for a Plex server.
type ClientConfig struct {
	BaseURL    string
	Token      string
	SkipVerify bool
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues authenticated GET requests against one Plex server.
// It never retries; a failed call is reported to the caller as an *APIError.
type Client struct {
	baseURL    *url.URL
	token      string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient validates cfg and builds a client with a pooled transport.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("plex base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid plex base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid plex base URL scheme %q", base.Scheme)
	}
	if cfg.Token == "" {
		return nil, errors.New("plex token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := cleanhttp.DefaultPooledTransport()
		if cfg.SkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed Plex certificates
		}
		httpClient = &http.Client{Transport: transport}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger.With("component", "plex-client"),
	}, nil
}

// Fetch GETs endpoint (a path relative to the base URL) and decodes the JSON body into out.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Kind: KindTimeout, Endpoint: endpoint, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &APIError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("fetching plex endpoint", "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Kind: classifyTransportError(ctx, err), Endpoint: endpoint, Err: stripURL(err)}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "endpoint", endpoint, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &APIError{Kind: KindHTTPStatus, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &APIError{Kind: classifyTransportError(ctx, err), Endpoint: endpoint, Err: err}
	}
	if len(body) == 0 {
		return &APIError{Kind: KindDecode, Endpoint: endpoint, Err: errors.New("empty response body")}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, _ := mime.ParseMediaType(ct); mediaType != "application/json" {
			return &APIError{Kind: KindDecode, Endpoint: endpoint, Err: fmt.Errorf("unexpected content type %q", ct)}
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Kind: KindDecode, Endpoint: endpoint, Err: err}
	}
	return nil
}

// fetchContainer fetches endpoint and returns its MediaContainer, which must be present.
func fetchContainer[T any](ctx context.Context, c *Client, endpoint string, params url.Values) (*T, error) {
	var envelope mediaContainer[T]
	if err := c.Fetch(ctx, endpoint, params, &envelope); err != nil {
		return nil, err
	}
	if envelope.MediaContainer == nil {
		return nil, &APIError{Kind: KindDecode, Endpoint: endpoint, Err: errors.New("response has no MediaContainer")}
	}
	return envelope.MediaContainer, nil
}

// Identity fetches the server identity. It doubles as the reachability check.
func (c *Client) Identity(ctx context.Context) (*Identity, error) {
	return fetchContainer[Identity](ctx, c, EndpointIdentity, nil)
}

// Sessions fetches active playback sessions.
func (c *Client) Sessions(ctx context.Context) (*SessionList, error) {
	return fetchContainer[SessionList](ctx, c, EndpointSessions, nil)
}

// LibrarySections lists the library sections.
func (c *Client) LibrarySections(ctx context.Context) (*LibrarySections, error) {
	return fetchContainer[LibrarySections](ctx, c, EndpointLibrarySections, nil)
}

// SectionItemCount returns the number of items in a section without fetching the items.
func (c *Client) SectionItemCount(ctx context.Context, sectionKey string) (int64, error) {
	params := url.Values{}
	params.Set("X-Plex-Container-Start", "0")
	params.Set("X-Plex-Container-Size", "0")

	contents, err := fetchContainer[SectionContents](ctx, c, SectionContentsEndpoint(sectionKey), params)
	if err != nil {
		return 0, err
	}
	return contents.ItemCount(), nil
}

// Devices lists client devices known to the server.
func (c *Client) Devices(ctx context.Context) (*DeviceList, error) {
	return fetchContainer[DeviceList](ctx, c, EndpointDevices, nil)
}

// Activities lists running background activities.
func (c *Client) Activities(ctx context.Context) (*ActivityList, error) {
	return fetchContainer[ActivityList](ctx, c, EndpointActivities, nil)
}

// UpdaterStatus fetches the server update status.
func (c *Client) UpdaterStatus(ctx context.Context) (*UpdaterStatus, error) {
	return fetchContainer[UpdaterStatus](ctx, c, EndpointUpdaterStatus, nil)
}

// SectionContentsEndpoint is the path listing a section's items.
func SectionContentsEndpoint(sectionKey string) string {
	return "/library/sections/" + sectionKey + "/all"
}

func classifyTransportError(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// stripURL drops the request URL from *url.Error so error text only names the endpoint.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// Package n2yo is a small client for the N2YO satellite REST API.
//
// Calls never return a Go error: each one yields a Response that either holds
// the decoded payload or describes what went wrong, so a report can carry on
// with the sections that did work.
package n2yo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "satrunner/pkg/logx"
)

const (
	DefaultBaseURL = "https://api.n2yo.com/rest/v1/satellite/"
	DefaultTimeout = 30 * time.Second

	// ISSNoradID is the NORAD catalog number of the International Space Station.
	ISSNoradID = 25544

	maxBody = 4 << 20
	// maxContent bounds the raw body echoed back on decode failure.
	maxContent = 8 << 10
)

var ErrNoAPIKey = errors.New("N2YO_API_KEY is not configured")

// Observer is a ground position: degrees and metres above sea level.
type Observer struct {
	Lat float64
	Lng float64
	Alt float64
}

// Response is the outcome of one API call. Exactly one of Data and Error is set.
// URL never contains the API key.
type Response struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	URL     string          `json:"url,omitempty"`
	Content string          `json:"content,omitempty"`
}

func (r Response) OK() bool { return r.Error == "" }

type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	lim     *rate.Limiter
	log     logx.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithLimiter replaces the default request pacing. nil disables it.
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.lim = l } }

func WithLogger(log logx.Logger) Option { return func(c *Client) { c.log = log } }

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
		hc:      &http.Client{Timeout: DefaultTimeout},
		// N2YO allows about 1000 calls an hour per endpoint; a report makes five.
		lim: rate.NewLimiter(rate.Every(200*time.Millisecond), 2),
		log: logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}
	return c
}

func (c *Client) TLE(ctx context.Context, satID int) Response {
	return c.Fetch(ctx, fmt.Sprintf("tle/%d", satID))
}

func (c *Client) Positions(ctx context.Context, satID int, o Observer, seconds int) Response {
	return c.Fetch(ctx, fmt.Sprintf("positions/%d/%s/%d/", satID, o.path(), seconds))
}

func (c *Client) VisualPasses(ctx context.Context, satID int, o Observer, days, minVisibility int) Response {
	return c.Fetch(ctx, fmt.Sprintf("visualpasses/%d/%s/%d/%d/", satID, o.path(), days, minVisibility))
}

func (c *Client) RadioPasses(ctx context.Context, satID int, o Observer, days, minElevation int) Response {
	return c.Fetch(ctx, fmt.Sprintf("radiopasses/%d/%s/%d/%d/", satID, o.path(), days, minElevation))
}

// Above lists objects within radius degrees of the observer's zenith.
// category 0 means all categories.
func (c *Client) Above(ctx context.Context, o Observer, radius, category int) Response {
	return c.Fetch(ctx, fmt.Sprintf("above/%s/%d/%d/", o.path(), radius, category))
}

// Fetch calls an endpoint path relative to the base URL. The key is appended
// as "&apiKey=", which is what the API accepts.
func (c *Client) Fetch(ctx context.Context, endpoint string) Response {
	redacted := c.baseURL + endpoint + "&apiKey=***"
	if c.apiKey == "" {
		return Response{Error: ErrNoAPIKey.Error(), URL: redacted}
	}
	log := c.log.With(logx.String("url", redacted))

	if c.lim != nil {
		if err := c.lim.Wait(ctx); err != nil {
			return Response{Error: err.Error(), URL: redacted}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"&apiKey="+c.apiKey, nil)
	if err != nil {
		return Response{Error: c.scrub(err.Error()), URL: redacted}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		log.Warn("n2yo request failed", logx.Err(errors.New(c.scrub(err.Error()))))
		return Response{Error: c.scrub(err.Error()), URL: redacted}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Response{Error: c.scrub(err.Error()), URL: redacted}
	}
	log.Debug("n2yo response", logx.Int("status", resp.StatusCode), logx.Int("bytes", len(body)), logx.Duration("dur", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{Error: fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), URL: redacted}
	}

	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return Response{
			Error:   "JSON decode error: " + err.Error(),
			URL:     redacted,
			Content: c.scrub(truncate(string(body), maxContent)),
		}
	}
	// The API reports a bad key or bad parameters as 200 {"error": "..."}.
	if m, ok := probe.(map[string]any); ok {
		if msg, ok := m["error"].(string); ok && msg != "" {
			return Response{Error: msg, URL: redacted}
		}
	}
	return Response{Data: json.RawMessage(body), URL: redacted}
}

func (c *Client) scrub(s string) string {
	if c.apiKey == "" {
		return s
	}
	return strings.ReplaceAll(s, c.apiKey, "***")
}

func (o Observer) path() string {
	return formatFloat(o.Lat) + "/" + formatFloat(o.Lng) + "/" + formatFloat(o.Alt)
}

// formatFloat prints the shortest exact form: 40.7128, -74.006, 10.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

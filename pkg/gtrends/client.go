// Package gtrends is a minimal client for the Google Trends web API. It
// fetches the interest-over-time series for a single keyword.
package gtrends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/eva-cli/internal/resilience"
)

const (
	defaultBaseURL  = "https://trends.google.com"
	defaultHL       = "en-US"
	defaultTZ       = 360
	timeseriesID    = "TIMESERIES"
	maxErrorBodyLen = 256
)

// Client fetches search interest from Google Trends.
type Client interface {
	InterestOverTime(ctx context.Context, q Query) (*Series, error)
	// ResetSession discards cookies so the next request starts a fresh
	// session. Used between retries after throttling.
	ResetSession()
}

// Query identifies one interest-over-time request.
type Query struct {
	Keyword   string
	Timeframe string // e.g. "today 3-m"
	Geo       string // e.g. "US"
}

// Point is one sample of the series.
type Point struct {
	Time    time.Time
	Value   float64
	Partial bool
}

// Series is the interest-over-time response for a keyword.
type Series struct {
	Keyword string
	Points  []Point
}

// Values returns the sample values in time order.
func (s *Series) Values() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Dates returns the sample dates formatted as YYYY-MM-DD.
func (s *Series) Dates() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Time.UTC().Format("2006-01-02")
	}
	return out
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gtrends: %s returned status %d (%s): %s",
		e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default Trends base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client. The client is copied so
// the session jar never leaks into the caller's value.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithHostLanguage sets the hl parameter.
func WithHostLanguage(hl string) Option {
	return func(c *httpClient) {
		c.hl = hl
	}
}

// WithTZ sets the timezone offset in minutes.
func WithTZ(tz int) Option {
	return func(c *httpClient) {
		c.tz = tz
	}
}

type httpClient struct {
	baseURL string
	hl      string
	tz      int
	http    *http.Client
	jar     *sessionJar

	mu     sync.Mutex
	primed bool
}

// sessionJar is a cookie jar whose contents can be discarded atomically
// while requests are in flight.
type sessionJar struct {
	mu    sync.RWMutex
	inner http.CookieJar
}

func newSessionJar() *sessionJar {
	j := &sessionJar{}
	j.reset()
	return j
}

func (j *sessionJar) reset() {
	inner, _ := cookiejar.New(nil)
	j.mu.Lock()
	j.inner = inner
	j.mu.Unlock()
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.inner.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

// NewClient creates a Google Trends client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		hl:      defaultHL,
		tz:      defaultTZ,
		http: &http.Client{
			Timeout: 25 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	hc := *c.http
	c.jar = newSessionJar()
	hc.Jar = c.jar
	c.http = &hc
	return c
}

func (c *httpClient) ResetSession() {
	c.jar.reset()
	c.mu.Lock()
	c.primed = false
	c.mu.Unlock()
}

// InterestOverTime primes the session cookie, resolves the TIMESERIES widget
// token via explore and fetches the multiline series.
func (c *httpClient) InterestOverTime(ctx context.Context, q Query) (*Series, error) {
	if strings.TrimSpace(q.Keyword) == "" {
		return nil, eris.New("gtrends: empty keyword")
	}

	if err := c.prime(ctx, q.Geo); err != nil {
		return nil, err
	}

	widget, err := c.explore(ctx, q)
	if err != nil {
		return nil, err
	}

	return c.multiline(ctx, q.Keyword, widget)
}

func (c *httpClient) prime(ctx context.Context, geo string) error {
	c.mu.Lock()
	primed := c.primed
	c.mu.Unlock()
	if primed {
		return nil
	}

	params := url.Values{}
	if geo != "" {
		params.Set("geo", geo)
	}
	if _, err := c.get(ctx, "home", "/?"+params.Encode()); err != nil {
		return err
	}

	c.mu.Lock()
	c.primed = true
	c.mu.Unlock()
	return nil
}

type comparisonItem struct {
	Keyword string `json:"keyword"`
	Time    string `json:"time"`
	Geo     string `json:"geo"`
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

type widget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

type exploreResponse struct {
	Widgets []widget `json:"widgets"`
}

func (c *httpClient) explore(ctx context.Context, q Query) (*widget, error) {
	req, err := json.Marshal(exploreRequest{
		ComparisonItem: []comparisonItem{{Keyword: q.Keyword, Time: q.Timeframe, Geo: q.Geo}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "gtrends: marshal explore request")
	}

	params := url.Values{}
	params.Set("hl", c.hl)
	params.Set("tz", strconv.Itoa(c.tz))
	params.Set("req", string(req))

	body, err := c.get(ctx, "explore", "/trends/api/explore?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp exploreResponse
	if err := json.Unmarshal(stripXSSI(body), &resp); err != nil {
		return nil, eris.Wrap(err, "gtrends: unmarshal explore response")
	}

	for i := range resp.Widgets {
		if resp.Widgets[i].ID == timeseriesID {
			return &resp.Widgets[i], nil
		}
	}
	return nil, eris.Errorf("gtrends: no %s widget for %q", timeseriesID, q.Keyword)
}

type timelinePoint struct {
	Time      string `json:"time"`
	Value     []int  `json:"value"`
	HasData   []bool `json:"hasData"`
	IsPartial bool   `json:"isPartial"`
}

type multilineResponse struct {
	Default struct {
		TimelineData []timelinePoint `json:"timelineData"`
	} `json:"default"`
}

func (c *httpClient) multiline(ctx context.Context, keyword string, w *widget) (*Series, error) {
	params := url.Values{}
	params.Set("hl", c.hl)
	params.Set("tz", strconv.Itoa(c.tz))
	params.Set("req", string(w.Request))
	params.Set("token", w.Token)

	body, err := c.get(ctx, "multiline", "/trends/api/widgetdata/multiline?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp multilineResponse
	if err := json.Unmarshal(stripXSSI(body), &resp); err != nil {
		return nil, eris.Wrap(err, "gtrends: unmarshal multiline response")
	}

	series := &Series{Keyword: keyword}
	for _, tp := range resp.Default.TimelineData {
		if len(tp.Value) == 0 {
			continue
		}
		secs, err := strconv.ParseInt(tp.Time, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "gtrends: parse timestamp %q", tp.Time)
		}
		series.Points = append(series.Points, Point{
			Time:    time.Unix(secs, 0).UTC(),
			Value:   float64(tp.Value[0]),
			Partial: tp.IsPartial,
		})
	}
	return series, nil
}

func (c *httpClient) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "gtrends: create %s request", endpoint)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "gtrends: send %s request", endpoint)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "gtrends: read %s response", endpoint)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > maxErrorBodyLen {
			snippet = snippet[:maxErrorBodyLen]
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: snippet}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.NewRateLimitError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}

// stripXSSI removes the ")]}'" guard Google prepends to JSON responses.
func stripXSSI(body []byte) []byte {
	s := strings.TrimPrefix(string(body), ")]}'")
	s = strings.TrimLeft(s, ",\r\n ")
	return []byte(s)
}

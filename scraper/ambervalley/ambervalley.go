package ambervalley

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bin-dates/models"
	"bin-dates/utils"
)

const (
	propertyLookupURL    = "https://info.ambervalley.gov.uk/WebServices/AVBCFeeds/GazetteerJSON.asmx/PropertyLookupFeed"
	collectionDetailsURL = "https://info.ambervalley.gov.uk/WebServices/AVBCFeeds/WasteCollectionJSON.asmx/GetCollectionDetailsByUPRN"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client talks to the Amber Valley gazetteer and waste collection feeds.
// It keeps no state between calls and never retries.
type Client struct {
	httpClient    *http.Client
	timeout       time.Duration
	logger        *utils.Logger
	lookupURL     string
	collectionURL string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, e.g. to share a connection pool.
// A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request made by the client, whatever the order
// it is given in relative to WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger attaches a logger for request tracing.
func WithLogger(l *utils.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEndpoints points the client at other hosts. Only tests need this.
func WithEndpoints(lookupURL, collectionURL string) Option {
	return func(c *Client) {
		c.lookupURL = lookupURL
		c.collectionURL = collectionURL
	}
}

// New creates a Client for the fixed council endpoints.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: defaultTimeout},
		logger:        utils.NewLoggerTo(io.Discard, utils.LevelError),
		lookupURL:     propertyLookupURL,
		collectionURL: collectionDetailsURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// LookupByPostcode returns the candidate properties for a postcode in the
// order the server lists them. A postcode with no properties yields an empty
// slice and a nil error.
func (c *Client) LookupByPostcode(ctx context.Context, postcode string) ([]models.Property, error) {
	const op = "lookup"

	form := url.Values{}
	form.Set("srchText", postcode)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.lookupURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, upstreamErr(op, 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(op, req)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, upstreamErr(op, 0, errors.New("property list is null"))
	}
	var properties []models.Property
	if err := json.Unmarshal(body, &properties); err != nil {
		return nil, upstreamErr(op, 0, fmt.Errorf("decode property list: %w", err))
	}
	for i, p := range properties {
		if p.UPRN == "" || p.AddressComma == "" {
			return nil, upstreamErr(op, 0, fmt.Errorf("property %d: missing uprn or addressComma", i))
		}
	}
	if properties == nil {
		properties = []models.Property{}
	}

	c.logger.Debug("[ambervalley] %d properties for postcode %q", len(properties), postcode)
	return properties, nil
}

type collectionDetails struct {
	RefuseNextDate    string `json:"refuseNextDate"`
	RecyclingNextDate string `json:"recyclingNextDate"`
	GreenNextDate     string `json:"greenNextDate"`
}

// FetchDates returns the next collection date of every stream for a UPRN.
// Any missing or malformed date fails the whole fetch.
func (c *Client) FetchDates(ctx context.Context, uprn models.UPRN) (*models.CollectionResult, error) {
	const op = "collection details"

	u, err := url.Parse(c.collectionURL)
	if err != nil {
		return nil, upstreamErr(op, 0, err)
	}
	q := u.Query()
	q.Set("uprn", string(uprn))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, upstreamErr(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(op, req)
	if err != nil {
		return nil, err
	}

	var details collectionDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, upstreamErr(op, 0, fmt.Errorf("decode collection details: %w", err))
	}

	var result models.CollectionResult
	fields := []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"refuseNextDate", details.RefuseNextDate, &result.Domestic},
		{"recyclingNextDate", details.RecyclingNextDate, &result.Recycling},
		{"greenNextDate", details.GreenNextDate, &result.Garden},
	}
	for _, f := range fields {
		t, err := parseDate(f.raw)
		if err != nil {
			return nil, upstreamErr(op, 0, fmt.Errorf("%s: %w", f.name, err))
		}
		*f.dst = t
	}

	c.logger.Debug("[ambervalley] uprn %s: domestic=%s recycling=%s garden=%s", uprn,
		result.Domestic.Format(time.DateOnly), result.Recycling.Format(time.DateOnly), result.Garden.Format(time.DateOnly))
	return &result, nil
}

// do sends the request and returns the body of a 200 response.
func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("[ambervalley] %s %s failed: %v", req.Method, req.URL.Redacted(), err)
		return nil, upstreamErr(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, upstreamErr(op, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	c.logger.Debug("[ambervalley] %s %s -> %s in %v", req.Method, req.URL.Redacted(), resp.Status, time.Since(start))
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamErr(op, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}
	return body, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing date")
	}
	t, err := time.Parse(models.DateLayout, raw)
	if err == nil && t.Format(models.DateLayout) != raw {
		err = errors.New("unexpected suffix")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return t, nil
}

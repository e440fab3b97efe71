package portal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"recruiting-ats/internal/cache"
	httpclient "recruiting-ats/pkg/http"
)

// ErrDisabled is returned when no portal base URL is configured.
var ErrDisabled = errors.New("job portal integration is not configured")

// Profile is an external candidate profile as returned by the portal API.
type Profile struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Headline        string   `json:"headline,omitempty"`
	Skills          []string `json:"skills"`
	ExperienceYears int      `json:"experience_years"`
	EducationLevel  string   `json:"education_level,omitempty"`
	City            string   `json:"city,omitempty"`
	PostalCode      string   `json:"postal_code,omitempty"`
	Country         string   `json:"country,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	URL             string   `json:"url,omitempty"`
}

type Query struct {
	Skills []string
	City   string
	Limit  int
}

func (q Query) values() url.Values {
	v := url.Values{}
	if len(q.Skills) > 0 {
		v.Set("skills", strings.Join(q.Skills, ","))
	}
	if q.City != "" {
		v.Set("city", q.City)
	}
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	v.Set("limit", strconv.Itoa(limit))
	return v
}

type searchResponse struct {
	Profiles []Profile `json:"profiles"`
}

// Client talks to the job portal profile search API. Responses are cached per query.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
	cache   *cache.Tiered
}

// NewClient returns a client; an empty baseURL yields a client whose calls return ErrDisabled.
func NewClient(baseURL, apiKey string, ratePerSec float64, profileCache *cache.Tiered) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpclient.NewClient(15*time.Second, ratePerSec),
		cache:   profileCache,
	}
}

// WithHTTPClient swaps the transport, used by tests to shorten retries.
func (c *Client) WithHTTPClient(hc *httpclient.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// SearchProfiles fetches profiles matching the query, served from cache when possible.
func (c *Client) SearchProfiles(ctx context.Context, q Query) ([]Profile, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	values := q.values()
	key := ""
	if c.cache != nil {
		key = c.cache.Key("profiles", values.Encode())
		var cached []Profile
		if c.cache.Get(ctx, key, &cached) {
			return cached, nil
		}
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	var resp searchResponse
	start := time.Now()
	if err := c.http.GetJSON(ctx, c.baseURL+"/profiles?"+values.Encode(), header, &resp); err != nil {
		return nil, fmt.Errorf("portal search: %w", err)
	}
	if resp.Profiles == nil {
		resp.Profiles = []Profile{}
	}
	log.Printf("[Portal] fetched %d profiles in %v", len(resp.Profiles), time.Since(start))

	if c.cache != nil {
		c.cache.Set(ctx, key, resp.Profiles)
	}
	return resp.Profiles, nil
}

// InvalidateCache forces the next searches to hit the portal.
func (c *Client) InvalidateCache(ctx context.Context) {
	if c.cache != nil {
		c.cache.Clear(ctx)
	}
}

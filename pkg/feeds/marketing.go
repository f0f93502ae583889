package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"betstream-relay/pkg/logging"
)

// matchesEndpoint lists the marketing feed's watchable matches.
const matchesEndpoint = "/api/matches"

// tokenRefreshMargin refreshes the OAuth token before it actually expires.
const tokenRefreshMargin = 60 * time.Second

// Doer is the plain outbound HTTP dependency; the marketing feed has no
// anti-automation layer, so it bypasses the session relay.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MarketingClient is a conventional OAuth client-credentials consumer of
// the marketing data feed, with an expiry-aware token cache and a TTL
// cache for the match list.
type MarketingClient struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	cacheTTL     time.Duration

	http Doer
	log  *logging.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	cache       []Event
	cachedAt    time.Time
	now         func() time.Time
}

// NewMarketingClient creates a marketing feed client. An empty baseURL
// disables the feed.
func NewMarketingClient(baseURL, tokenURL, clientID, clientSecret string, cacheTTL time.Duration, httpDoer Doer, log *logging.Logger) *MarketingClient {
	return &MarketingClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		cacheTTL:     cacheTTL,
		http:         httpDoer,
		log:          log.WithComponent("marketing-feed"),
		now:          time.Now,
	}
}

// Enabled reports whether the feed is configured.
func (c *MarketingClient) Enabled() bool {
	return c.baseURL != ""
}

// FetchEvents returns the mapped match list, served from cache within
// the TTL.
func (c *MarketingClient) FetchEvents(ctx context.Context) ([]Event, error) {
	if !c.Enabled() {
		return nil, nil
	}

	c.mu.Lock()
	if c.cache != nil && c.now().Sub(c.cachedAt) < c.cacheTTL {
		cached := make([]Event, len(c.cache))
		copy(cached, c.cache)
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("marketing token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+matchesEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketing fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketing fetch: status %d", resp.StatusCode)
	}

	var raws []MarketingEvent
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("marketing decode: %w", err)
	}

	events := make([]Event, 0, len(raws))
	for _, raw := range raws {
		if ev := MapMarketingEvent(raw); ev != nil {
			events = append(events, *ev)
		}
	}

	c.mu.Lock()
	c.cache = events
	c.cachedAt = c.now()
	c.mu.Unlock()

	c.log.Debug("marketing feed refreshed", "events", len(events))
	return events, nil
}

// tokenReply is the OAuth token endpoint response.
type tokenReply struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// ensureToken returns a live access token, fetching a new one when the
// cached token is within the refresh margin of expiry.
func (c *MarketingClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var reply tokenReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", err
	}
	if reply.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}

	c.mu.Lock()
	c.token = reply.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(reply.ExpiresIn) * time.Second)
	c.mu.Unlock()

	return reply.AccessToken, nil
}

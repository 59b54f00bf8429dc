package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// ProfileSource returns business-profile data for an owner. A nil map with a
// nil error means the owner has no profile.
type ProfileSource interface {
	Profile(ctx context.Context, ownerID string) (map[string]any, error)
}

// HTTPProfileSource fetches GET {baseURL}/{ownerID} and decodes a JSON object.
type HTTPProfileSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProfileSource creates a source rooted at baseURL.
func NewHTTPProfileSource(baseURL string, timeout time.Duration) *HTTPProfileSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProfileSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPProfileSource) Profile(ctx context.Context, ownerID string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+url.PathEscape(ownerID), nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch profile: http %d", resp.StatusCode)
	}

	var profile map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}

// CachedProfiles memoizes another ProfileSource for ttl. Missing profiles are
// cached too.
type CachedProfiles struct {
	next  ProfileSource
	cache *cache.Cache
}

// NewCachedProfiles wraps next.
func NewCachedProfiles(next ProfileSource, ttl time.Duration) *CachedProfiles {
	return &CachedProfiles{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedProfiles) Profile(ctx context.Context, ownerID string) (map[string]any, error) {
	if v, ok := c.cache.Get(ownerID); ok {
		return v.(map[string]any), nil
	}
	profile, err := c.next.Profile(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(ownerID, profile)
	return profile, nil
}

// Invalidate drops the cached profile of ownerID.
func (c *CachedProfiles) Invalidate(ownerID string) {
	c.cache.Delete(ownerID)
}

// Package rewards wraps two external collaborators: the reward-configuration
// service that sizes credit movements per business event, and the
// achievement-notification sink pinged after a reading completes.
//
// Both are CRUD-ish services outside this core; the package exposes small
// interfaces so the rest of the code never hard-codes credit amounts or
// achievement plumbing.
package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Business events that move credits or experience.
const (
	EventReadingSubmission = "reading_submission"
	EventSignupBonus       = "signup_bonus"
	EventDailyLogin        = "daily_login"
)

// Credits is the reward configuration for one event: how many promotional
// and paid credits it moves, and how much experience it grants.
type Credits struct {
	Promo int `json:"promo"`
	Paid  int `json:"paid"`
	Exp   int `json:"exp"`
}

// Total returns the combined credit amount for the event.
func (c Credits) Total() int { return c.Promo + c.Paid }

// Config resolves the credit amounts configured for a business event.
type Config interface {
	CreditsFor(ctx context.Context, event string) (Credits, error)
}

// HTTPConfig fetches reward configuration from the rewards service, caching
// each event's amounts for a short TTL so submission latency does not depend
// on the rewards service being fast.
type HTTPConfig struct {
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration

	// Defaults returned when the service is unreachable; keeps submission
	// available during rewards-service outages.
	Fallback map[string]Credits

	mu    sync.Mutex
	cache map[string]cachedCredits
}

type cachedCredits struct {
	c   Credits
	exp time.Time
}

// NewHTTPConfig constructs an HTTPConfig with a 5-minute cache.
func NewHTTPConfig(baseURL string) *HTTPConfig {
	return &HTTPConfig{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		ttl:        5 * time.Minute,
		Fallback: map[string]Credits{
			EventReadingSubmission: {Promo: 0, Paid: 1},
			EventSignupBonus:       {Promo: 3, Paid: 0, Exp: 10},
			EventDailyLogin:        {Promo: 1, Paid: 0, Exp: 2},
		},
		cache: map[string]cachedCredits{},
	}
}

// CreditsFor returns the configured amounts for event, consulting the cache,
// then the service, then the fallback table. Safe for concurrent use; every
// in-flight submission resolves amounts through here.
func (h *HTTPConfig) CreditsFor(ctx context.Context, event string) (Credits, error) {
	h.mu.Lock()
	hit, ok := h.cache[event]
	h.mu.Unlock()
	if ok && time.Now().Before(hit.exp) {
		return hit.c, nil
	}

	c, err := h.fetch(ctx, event)
	if err != nil {
		log.Warn().Str("event", event).Err(err).Msg("rewards config fetch failed, using fallback")
		if fb, ok := h.Fallback[event]; ok {
			return fb, nil
		}
		return Credits{}, err
	}
	h.mu.Lock()
	h.cache[event] = cachedCredits{c: c, exp: time.Now().Add(h.ttl)}
	h.mu.Unlock()
	return c, nil
}

func (h *HTTPConfig) fetch(ctx context.Context, event string) (Credits, error) {
	if h.baseURL == "" {
		return Credits{}, fmt.Errorf("rewards service not configured")
	}
	url := fmt.Sprintf("%s/v1/rewards/%s", h.baseURL, event)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Credits{}, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return Credits{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Credits{}, fmt.Errorf("rewards service status %d", resp.StatusCode)
	}
	var c Credits
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return Credits{}, err
	}
	return c, nil
}

// StaticConfig is a fixed in-memory Config, used in tests and when no rewards
// service is deployed.
type StaticConfig map[string]Credits

// CreditsFor returns the configured amounts or a zero value for unknown events.
func (s StaticConfig) CreditsFor(_ context.Context, event string) (Credits, error) {
	if c, ok := s[event]; ok {
		return c, nil
	}
	return Credits{}, fmt.Errorf("no reward configured for event %q", event)
}

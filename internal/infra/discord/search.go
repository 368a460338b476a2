package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/infra/observability"
)

// DefaultAPIBase is Discord's REST root for the message search endpoint.
const DefaultAPIBase = "https://discord.com/api/v9"

// SearchConfig controls the authoritative count lookup.
type SearchConfig struct {
	APIBase string        // REST root (default: DefaultAPIBase)
	Token   string        // bot token, sent as "Bot <token>"
	Rate    float64       // requests per second (default: 1)
	Burst   int           // (default: 2)
	Timeout time.Duration // per request (default: 10s)
}

// DefaultSearchConfig returns conservative lookup limits. Guild search is
// heavily rate limited on Discord's side.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		APIBase: DefaultAPIBase,
		Rate:    1,
		Burst:   2,
		Timeout: 10 * time.Second,
	}
}

// SearchCounter implements domain.CountLookup with the guild message search
// endpoint's total_results. discordgo has no binding for it.
type SearchCounter struct {
	client  *http.Client
	base    string
	token   string
	limiter *rate.Limiter
}

var _ domain.CountLookup = (*SearchCounter)(nil)

// NewSearchCounter creates a counter.
func NewSearchCounter(cfg SearchConfig) *SearchCounter {
	def := DefaultSearchConfig()
	if cfg.APIBase == "" {
		cfg.APIBase = def.APIBase
	}
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &SearchCounter{
		client:  &http.Client{Timeout: cfg.Timeout},
		base:    strings.TrimRight(cfg.APIBase, "/"),
		token:   cfg.Token,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
	}
}

type searchResponse struct {
	TotalResults *int64 `json:"total_results"`
}

// FetchCount returns how many messages userID has posted in guildID.
// Every failure wraps domain.ErrTransientLookup.
func (c *SearchCounter) FetchCount(ctx context.Context, guildID, userID string) (n int64, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		observability.LookupLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: rate limit: %v", domain.ErrTransientLookup, err)
	}

	u := fmt.Sprintf("%s/guilds/%s/messages/search?author_id=%s",
		c.base, url.PathEscape(guildID), url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrTransientLookup, err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrTransientLookup, err)
	}
	defer resp.Body.Close()

	// 202 means the guild index is still building.
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("%w: search returned %s", domain.ErrTransientLookup, resp.Status)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode search: %v", domain.ErrTransientLookup, err)
	}
	if body.TotalResults == nil {
		return 0, nil
	}
	return *body.TotalResults, nil
}

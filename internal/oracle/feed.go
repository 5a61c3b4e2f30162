package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
)

// FeedClient fetches asset prices from an HTTP price feed. The feed returns
// USD prices as fixed-point integers with eight decimals, matching the
// engine's price convention.
type FeedClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFeedClient creates a feed client for the given API root, e.g.
// "https://feed.example.com/v1". apiKey may be empty for unauthenticated
// feeds.
func NewFeedClient(baseURL, apiKey string) *FeedClient {
	return &FeedClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type feedQuote struct {
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// GetPrice returns the latest USD quote for an asset. A 404 from the feed
// maps to domain.ErrPriceUnavailable.
func (c *FeedClient) GetPrice(ctx context.Context, asset domain.Asset) (domain.PriceQuote, error) {
	path := fmt.Sprintf("/prices/%s", url.PathEscape(string(asset)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: fetch price %s: %w", asset, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.PriceQuote{}, fmt.Errorf("oracle: %s: %w", asset, domain.ErrPriceUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.PriceQuote{}, fmt.Errorf("oracle: fetch price %s: HTTP %d", asset, resp.StatusCode)
	}

	var fq feedQuote
	if err := json.Unmarshal(body, &fq); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("oracle: decode quote: %w", err)
	}

	price, ok := new(big.Int).SetString(fq.Price, 10)
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("oracle: parse price %q for %s", fq.Price, asset)
	}
	if price.Sign() <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("oracle: %s: %w", asset, domain.ErrPriceUnavailable)
	}

	return domain.PriceQuote{
		Asset:     asset,
		Price:     price,
		Timestamp: time.Unix(fq.Timestamp, 0),
	}, nil
}

var _ domain.PriceSource = (*FeedClient)(nil)

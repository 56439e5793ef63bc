// internal/oracle/coingecko.go
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crypto-collector/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	requestTimeout      = 10 * time.Second

	// Maximum response body size for the price API (64KB)
	maxPriceResponseSize = 64 << 10
)

// coinIDs maps native symbols to CoinGecko ids
var coinIDs = map[string]string{
	"BTC": "bitcoin",
	"LTC": "litecoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

// CoinGecko quotes USD prices from the simple/price endpoint.
// Quotes are never cached: every invoice is priced fresh.
type CoinGecko struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

func NewCoinGecko(baseURL, apiKey string, logger *zap.Logger) *CoinGecko {
	if baseURL == "" {
		baseURL = defaultCoinGeckoURL
	}

	return &CoinGecko{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

var _ domain.PriceProvider = (*CoinGecko)(nil)

// PriceUSD fails with ErrPriceUnavailable when no positive quote is returned
func (c *CoinGecko) PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)
	id, ok := coinIDs[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown symbol %q", domain.ErrPriceUnavailable, symbol)
	}

	price, err := c.fetchPrice(ctx, id)
	if err != nil {
		c.logger.Warn("Price lookup failed",
			zap.String("symbol", symbol),
			zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}

	c.logger.Debug("Price fetched",
		zap.String("symbol", symbol),
		zap.String("usd", price.String()))

	return price, nil
}

func (c *CoinGecko) fetchPrice(ctx context.Context, id string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", "usd")
	query.Set("precision", "full")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+query.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var data map[string]map[string]json.Number
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxPriceResponseSize))
	decoder.UseNumber()
	if err := decoder.Decode(&data); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}

	raw, ok := data[id]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no usd quote for %s", id)
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quote %q: %w", raw, err)
	}

	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid quote from API: %s", price)
	}

	return price, nil
}

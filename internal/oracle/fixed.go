package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"crypto-collector/internal/domain"

	"github.com/shopspring/decimal"
)

// Fixed serves pinned prices. Symbols without a price are unavailable.
type Fixed struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewFixed(prices map[string]decimal.Decimal) *Fixed {
	f := &Fixed{prices: make(map[string]decimal.Decimal, len(prices))}
	for symbol, price := range prices {
		f.prices[strings.ToUpper(symbol)] = price
	}
	return f
}

func (f *Fixed) Set(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[strings.ToUpper(symbol)] = price
}

func (f *Fixed) PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	price, ok := f.prices[strings.ToUpper(symbol)]
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, symbol)
	}
	return price, nil
}

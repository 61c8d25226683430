package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

// DefaultAlphaVantageURL is the Alpha Vantage query endpoint.
const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

const globalQuotePricePath = `$["Global Quote"]["05. price"]`

// AlphaVantage quotes equities through the GLOBAL_QUOTE function.
type AlphaVantage struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAlphaVantage creates a client. An empty baseURL means
// DefaultAlphaVantageURL; a nil client gets a 10s timeout.
func NewAlphaVantage(apiKey, baseURL string, client *http.Client) *AlphaVantage {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &AlphaVantage{apiKey: apiKey, baseURL: baseURL, client: client}
}

func (a *AlphaVantage) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("alphavantage %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("alphavantage %s: status %d", symbol, resp.StatusCode)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("alphavantage %s: decode: %w", symbol, err)
	}

	return extractPrice(symbol, body)
}

func extractPrice(symbol string, body any) (decimal.Decimal, error) {
	val, err := jsonpath.Get(globalQuotePricePath, body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: no quote", ErrUnavailable, symbol)
	}

	var price decimal.Decimal
	switch v := val.(type) {
	case string:
		price, err = decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s: bad price %q", ErrUnavailable, symbol, v)
		}
	case float64:
		price = decimal.NewFromFloat(v)
	default:
		return decimal.Zero, fmt.Errorf("%w: %s: unexpected price %v", ErrUnavailable, symbol, val)
	}

	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	return price, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/navledger/src/inference"
	"github.com/username/navledger/src/logger"
	"github.com/username/navledger/src/utils"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// yahooChartResponse is the subset of the chart API payload we consume.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// closingPriceServiceImpl implements inference.PriceSource against Yahoo
// Finance's historical chart endpoint. Lookups are cached for the lifetime of
// the run (closing prices for past dates do not change) and rate-limited to
// stay a polite API consumer.
type closingPriceServiceImpl struct {
	httpClient http.Client
	limiter    *rate.Limiter
	priceCache *cache.Cache
	retries    int
}

// NewClosingPriceService creates the production closing-price source.
// retries bounds the attempts per (symbol, date) before the lookup is
// declared unavailable for this run.
func NewClosingPriceService(timeout time.Duration, retries int) inference.PriceSource {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	client := http.Client{
		Jar:     jar,
		Timeout: timeout,
	}

	return &closingPriceServiceImpl{
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		priceCache: cache.New(cache.NoExpiration, cache.NoExpiration),
		retries:    retries,
	}
}

// ClosingPrice returns the official close for symbol on a YYYY-MM-DD date.
// Failure is reported as inference.ErrPriceUnavailable so the caller can
// scope the damage to one date instead of aborting the run.
func (s *closingPriceServiceImpl) ClosingPrice(symbol, date string) (decimal.Decimal, error) {
	cacheKey := symbol + "|" + date
	if cached, found := s.priceCache.Get(cacheKey); found {
		return cached.(decimal.Decimal), nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := s.limiter.Wait(context.Background()); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s on %s: %v", inference.ErrPriceUnavailable, symbol, date, err)
		}

		price, err := s.fetchClose(symbol, date)
		if err == nil {
			s.priceCache.Set(cacheKey, price, cache.NoExpiration)
			return price, nil
		}
		lastErr = err
		logger.L.Warn("Closing price fetch attempt failed", "symbol", symbol, "date", date, "attempt", attempt+1, "error", err)
	}

	return decimal.Zero, fmt.Errorf("%w: %s on %s: %v", inference.ErrPriceUnavailable, symbol, date, lastErr)
}

// fetchClose queries the chart endpoint for the single day's daily bar.
func (s *closingPriceServiceImpl) fetchClose(symbol, date string) (decimal.Decimal, error) {
	day := utils.ParseDate(date)
	if day.IsZero() {
		return decimal.Zero, fmt.Errorf("invalid date '%s'", date)
	}
	period1 := day.Unix()
	period2 := day.AddDate(0, 0, 1).Unix()

	chartURL := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		url.PathEscape(symbol), period1, period2)
	req, err := http.NewRequest("GET", chartURL, nil)
	if err != nil {
		return decimal.Zero, err
	}
	// A valid User-Agent is crucial.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call chart API for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("chart API returned non-OK status %d for %s", resp.StatusCode, symbol)
	}

	var chartData yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartData); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode chart response for %s: %w", symbol, err)
	}

	if chartData.Chart.Error != nil || len(chartData.Chart.Result) == 0 {
		return decimal.Zero, fmt.Errorf("chart API returned an error or no result for %s", symbol)
	}
	quotes := chartData.Chart.Result[0].Indicators.Quote
	if len(quotes) == 0 || len(quotes[0].Close) == 0 || quotes[0].Close[0] == nil {
		return decimal.Zero, fmt.Errorf("chart API returned no close for %s on %s", symbol, date)
	}

	return decimal.NewFromFloat(*quotes[0].Close[0]), nil
}

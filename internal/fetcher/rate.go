package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	rateCurrencyUnit = "USD"
	rateDataCode     = "AP01" // daily exchange rate table
	rateSource       = "exim"
)

// RateOptions parameterise the exchange rate fetcher.
type RateOptions struct {
	BaseURL   string
	AuthKey   string
	Timeout   time.Duration
	UserAgent string
}

// Rate fetches the USD/KRW reference rate from the Korea Eximbank API.
type Rate struct {
	opts    RateOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewRate constructs an exchange rate fetcher.
func NewRate(opts RateOptions, logger zerolog.Logger) *Rate {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.koreaexim.go.kr/site/program/financial/exchangeJSON"
	}

	return &Rate{
		opts:    opts,
		logger:  logger.With().Str("component", "rate_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchDate returns at most one point for the given date. The upstream
// responds with an empty array on dates it has no rate for.
func (f *Rate) FetchDate(ctx context.Context, date time.Time) (Point, bool) {
	params := url.Values{}
	params.Set("authkey", f.opts.AuthKey)
	params.Set("searchdate", date.Format(upstreamDateFormat))
	params.Set("data", rateDataCode)

	endpoint := f.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("build rate request failed")
		return Point{}, false
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Str("date", date.Format(time.DateOnly)).Msg("rate api unreachable")
		return Point{}, false
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn().Err(err).Msg("read rate response failed")
		return Point{}, false
	}

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn().Int("status", resp.StatusCode).Msg("rate api returned non-200")
		return Point{}, false
	}

	var items []rateItem
	if err := json.Unmarshal(payload, &items); err != nil {
		f.logger.Warn().Err(err).Msg("decode rate response failed")
		return Point{}, false
	}

	for _, item := range items {
		if item.CurUnit != rateCurrencyUnit {
			continue
		}

		value, err := parseUpstreamNumber(item.DealBasR)
		if err != nil {
			f.logger.Warn().Err(err).Str("deal_bas_r", item.DealBasR).Msg("skip malformed rate item")
			return Point{}, false
		}

		return Point{Date: date, Value: value, Source: rateSource}, true
	}

	return Point{}, false
}

type rateItem struct {
	CurUnit  string `json:"cur_unit"`
	DealBasR string `json:"deal_bas_r"`
}

var _ RateFetcher = (*Rate)(nil)

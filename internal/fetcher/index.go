package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	indexEndpointPath = "/getStockMarketIndex"
	indexName         = "코스피"
	indexSource       = "data.go.kr"

	latestWindowRows = 10
	rangeWindowRows  = 500
)

// IndexOptions parameterise the stock index fetcher.
type IndexOptions struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	UserAgent  string
}

// Index fetches KOSPI closing values from the data.go.kr market index service.
type Index struct {
	opts    IndexOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewIndex constructs an index fetcher.
func NewIndex(opts IndexOptions, logger zerolog.Logger) *Index {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://apis.data.go.kr/1160100/service/GetMarketIndexInfoService"
	}

	return &Index{
		opts:    opts,
		logger:  logger.With().Str("component", "index_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchRange returns every index point the upstream reports within [from, to].
func (f *Index) FetchRange(ctx context.Context, from, to time.Time) []Point {
	params := url.Values{}
	params.Set("beginBasDt", from.Format(upstreamDateFormat))
	params.Set("endBasDt", to.Format(upstreamDateFormat))

	points := f.fetch(ctx, rangeWindowRows, params)
	f.logger.Debug().
		Str("from", from.Format(time.DateOnly)).
		Str("to", to.Format(time.DateOnly)).
		Int("points", len(points)).
		Msg("fetched index range")
	return points
}

// FetchLatest queries a small recent window and returns the point with the
// maximum date found.
func (f *Index) FetchLatest(ctx context.Context) (Point, bool) {
	points := f.fetch(ctx, latestWindowRows, nil)
	if len(points) == 0 {
		return Point{}, false
	}

	latest := points[0]
	for _, p := range points[1:] {
		if p.Date.After(latest.Date) {
			latest = p
		}
	}
	return latest, true
}

func (f *Index) fetch(ctx context.Context, rows int, extra url.Values) []Point {
	params := url.Values{}
	params.Set("serviceKey", f.opts.ServiceKey)
	params.Set("numOfRows", strconv.Itoa(rows))
	params.Set("resultType", "json")
	params.Set("idxNm", indexName)
	for key, values := range extra {
		for _, v := range values {
			params.Set(key, v)
		}
	}

	endpoint := f.baseURL + indexEndpointPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("build index request failed")
		return nil
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Msg("index api unreachable")
		return nil
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn().Err(err).Msg("read index response failed")
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn().Int("status", resp.StatusCode).Msg("index api returned non-200")
		return nil
	}

	var body indexResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		f.logger.Warn().Err(err).Msg("decode index response failed")
		return nil
	}

	items := body.Response.Body.Items.Item
	points := make([]Point, 0, len(items))
	for _, item := range items {
		point, err := item.toPoint()
		if err != nil {
			f.logger.Warn().Err(err).Str("basDt", item.BasDt).Msg("skip malformed index item")
			continue
		}
		points = append(points, point)
	}
	return points
}

type indexResponse struct {
	Response struct {
		Body struct {
			Items struct {
				Item []indexItem `json:"item"`
			} `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

type indexItem struct {
	BasDt string `json:"basDt"`
	Clpr  string `json:"clpr"`
}

func (i indexItem) toPoint() (Point, error) {
	if i.BasDt == "" || i.Clpr == "" {
		return Point{}, fmt.Errorf("missing basDt or clpr")
	}

	date, err := time.ParseInLocation(upstreamDateFormat, i.BasDt, time.UTC)
	if err != nil {
		return Point{}, fmt.Errorf("parse basDt: %w", err)
	}

	value, err := parseUpstreamNumber(i.Clpr)
	if err != nil {
		return Point{}, fmt.Errorf("parse clpr: %w", err)
	}

	return Point{Date: date, Value: value, Source: indexSource}, nil
}

var _ IndexFetcher = (*Index)(nil)

package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/models"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooClient reads daily candles from the Yahoo Finance chart API.
type YahooClient struct {
	baseURL string
	client  *http.Client
	loc     *time.Location
	logger  *logrus.Logger
}

// NewYahooClient creates a client. Candle dates are calendar days in loc.
func NewYahooClient(baseURL string, httpClient *http.Client, loc *time.Location, logger *logrus.Logger) *YahooClient {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &YahooClient{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient, loc: loc, logger: logger}
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					High  []*float64 `json:"high"`
					Low   []*float64 `json:"low"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDaily returns one candle per trading day, oldest first. Rows with a
// missing field are dropped; a later row for the same day replaces an earlier one.
func (y *YahooClient) FetchDaily(ctx context.Context, symbol string, period Period) ([]models.Candle, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol),
		url.Values{"range": {string(period)}, "interval": {"1d"}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")

	var chart yahooChart
	if err := doJSON(y.client, req, &chart, y.logger); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return []models.Candle{}, nil
	}

	res := chart.Chart.Result[0]
	q := res.Indicators.Quote[0]
	byDay := make(map[string]models.Candle, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		o, h, l, c := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue
		}
		local := time.Unix(ts, 0).In(y.loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, y.loc)
		byDay[DateKey(day)] = models.Candle{Date: day, Open: *o, High: *h, Low: *l, Close: *c}
	}

	candles := make([]models.Candle, 0, len(byDay))
	for _, c := range byDay {
		candles = append(candles, c)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles, nil
}

func at(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}

var _ HistoryProvider = (*YahooClient)(nil)

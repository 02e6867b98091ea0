package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/models"
)

const (
	defaultNSEBaseURL = "https://www.nseindia.com"
	browserUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// NSEClient reads index option chains from the NSE public JSON endpoint.
// The endpoint rejects requests without the session cookies set by the home
// page, so the first call primes a cookie jar.
type NSEClient struct {
	baseURL string
	client  *http.Client
	loc     *time.Location
	logger  *logrus.Logger

	primeMu sync.Mutex
	primed  bool
}

// NewNSEClient creates a client. A nil httpClient gets a cookie jar and no
// overall timeout; deadlines come from the caller's context.
func NewNSEClient(baseURL string, httpClient *http.Client, loc *time.Location, logger *logrus.Logger) *NSEClient {
	if baseURL == "" {
		baseURL = defaultNSEBaseURL
	}
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{Jar: jar}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &NSEClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		loc:     loc,
		logger:  logger,
	}
}

type nseLeg struct {
	LastPrice float64 `json:"lastPrice"`
}

type nseRow struct {
	StrikePrice float64 `json:"strikePrice"`
	ExpiryDate  string  `json:"expiryDate"`
	CE          *nseLeg `json:"CE"`
	PE          *nseLeg `json:"PE"`
}

type nseResponse struct {
	Records struct {
		ExpiryDates     []string `json:"expiryDates"`
		UnderlyingValue float64  `json:"underlyingValue"`
		Data            []nseRow `json:"data"`
	} `json:"records"`
}

// FetchChain returns the full chain for symbol across every listed expiry.
func (c *NSEClient) FetchChain(ctx context.Context, symbol string) (*Chain, error) {
	resp, err := c.fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(resp.Records.Data) == 0 || resp.Records.UnderlyingValue <= 0 {
		return nil, fmt.Errorf("%w: empty chain for %s", ErrNoData, symbol)
	}

	chain := NewChain(resp.Records.UnderlyingValue)
	for _, row := range resp.Records.Data {
		exp, err := models.ParseExpiry(row.ExpiryDate, c.loc)
		if err != nil {
			c.logger.WithField("symbol", symbol).Debugf("skipping row with expiry %q", row.ExpiryDate)
			continue
		}
		var q Quote
		if row.CE != nil && row.CE.LastPrice > 0 {
			q.CE = row.CE.LastPrice
		}
		if row.PE != nil && row.PE.LastPrice > 0 {
			q.PE = row.PE.LastPrice
		}
		chain.Set(exp, row.StrikePrice, q)
	}
	return chain, nil
}

// ListExpiries returns the listed expiries in the order NSE reports them.
func (c *NSEClient) ListExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	resp, err := c.fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(resp.Records.ExpiryDates))
	for _, s := range resp.Records.ExpiryDates {
		if t, err := models.ParseExpiry(s, c.loc); err == nil {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no expiries for %s", ErrNoData, symbol)
	}
	return out, nil
}

func (c *NSEClient) fetch(ctx context.Context, symbol string) (*nseResponse, error) {
	if err := c.prime(ctx); err != nil {
		return nil, err
	}
	endpoint := c.baseURL + "/api/option-chain-indices?" + url.Values{"symbol": {symbol}}.Encode()

	var out nseResponse
	err := c.getJSON(ctx, endpoint, &out)
	var se *StatusError
	if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden) {
		// Session expired; re-prime on the next attempt
		c.primeMu.Lock()
		c.primed = false
		c.primeMu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *NSEClient) prime(ctx context.Context) error {
	c.primeMu.Lock()
	defer c.primeMu.Unlock()
	if c.primed {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("priming NSE session: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	c.primed = true
	return nil
}

func (c *NSEClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", c.baseURL+"/option-chain")
	return doJSON(c.client, req, out, c.logger)
}

// doJSON executes req and decodes a 200 body into out.
func doJSON(client *http.Client, req *http.Request, out interface{}, logger *logrus.Logger) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.WithError(err).Debug("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", req.Method, req.URL.Path, strings.TrimSpace(string(body)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", req.URL.Path, err)
	}
	return nil
}

var _ ChainProvider = (*NSEClient)(nil)

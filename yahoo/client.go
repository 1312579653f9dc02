// Package yahoo downloads OHLCV bars from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/fvg/market"
)

const (
	// DefaultURL is the public chart API host.
	DefaultURL = "https://query1.finance.yahoo.com"

	userAgent = "Mozilla/5.0 (compatible; fvg/1.0)"
)

// ErrNoData is returned when Yahoo reports that a range has no prices.
// Retrying does not help.
var ErrNoData = errors.New("yahoo: no price data")

// Options configures a Client. Zero values fall back to the defaults
// noted on each field.
type Options struct {
	BaseURL      string        // DefaultURL
	Interval     string        // "1m"
	Retries      int           // 3 attempts per chunk
	Pause        time.Duration // 1s between chunks, Pause*attempt between retries
	ChunkDays    int           // 7
	LookbackDays int           // 0 disables clipping
	Timeout      time.Duration // 30s per request
}

// Client fetches a date range in chunks, retrying failed chunks and
// skipping the ones that stay broken.
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewClient creates a new chart API client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultURL
	}
	if opts.Interval == "" {
		opts.Interval = "1m"
	}
	if opts.Retries < 1 {
		opts.Retries = 3
	}
	if opts.Pause <= 0 {
		opts.Pause = time.Second
	}
	if opts.ChunkDays < 1 {
		opts.ChunkDays = 7
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	st := gobreaker.Settings{Name: "yahoo-chart"}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled)
	}

	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Every(opts.Pause), 1),
		breaker:    gobreaker.NewCircuitBreaker(st),
		log:        logger.With().Str("component", "yahoo").Logger(),
		now:        time.Now,
	}
}

// Fetch downloads bars for ticker in [start, end). The result is sorted by
// time with duplicate timestamps removed. An empty result with a nil error
// means Yahoo had nothing for the range.
func (c *Client) Fetch(ctx context.Context, ticker string, start, end time.Time) ([]market.Bar, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	c.log.Info().Str("ticker", ticker).Time("start", start).Time("end", end).
		Str("interval", c.opts.Interval).Msg("Requesting bars")

	if c.opts.LookbackDays > 0 {
		earliest := c.now().UTC().AddDate(0, 0, -c.opts.LookbackDays)
		if start.Before(earliest) {
			c.log.Warn().Int("lookback_days", c.opts.LookbackDays).
				Time("earliest", earliest).Msg("Start is older than the lookback limit, clipping")
			start = earliest
		}
	}
	if !start.Before(end) {
		c.log.Error().Msg("Start is not before end, nothing to download")
		return nil, nil
	}

	var all []market.Bar
	n := 0
	for cs := start; cs.Before(end); {
		ce := cs.AddDate(0, 0, c.opts.ChunkDays)
		if ce.After(end) {
			ce = end
		}
		n++

		bars, err := c.fetchChunk(ctx, ticker, n, cs, ce)
		if err != nil {
			return nil, err
		}
		all = append(all, bars...)
		cs = ce
	}

	if len(all) == 0 {
		c.log.Warn().Str("ticker", ticker).Msg("No data downloaded for any chunk")
		return nil, nil
	}

	all, dups := market.SortDedup(all)
	c.log.Info().Int("rows", len(all)).Int("duplicates", dups).Msg("Download complete")
	return all, nil
}

// fetchChunk retries one chunk. It only returns an error when the whole
// download must stop: a cancelled context or an open breaker.
func (c *Client) fetchChunk(ctx context.Context, ticker string, n int, start, end time.Time) ([]market.Bar, error) {
	log := c.log.With().Int("chunk", n).Logger()
	log.Info().Time("start", start).Time("end", end).Msg("Fetching chunk")

	for attempt := 1; attempt <= c.opts.Retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		out, err := c.breaker.Execute(func() (any, error) {
			return c.chart(ctx, ticker, start, end)
		})
		switch {
		case err == nil:
			bars := out.([]market.Bar)
			if len(bars) == 0 {
				log.Warn().Msg("No data returned for chunk")
			}
			return bars, nil
		case errors.Is(err, ErrNoData):
			log.Error().Err(err).Msg("Permanent error, skipping chunk")
			return nil, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, gobreaker.ErrOpenState):
			return nil, fmt.Errorf("yahoo: too many failed requests: %w", err)
		}

		log.Error().Err(err).Int("attempt", attempt).Msg("Chunk attempt failed")
		if attempt == c.opts.Retries {
			log.Error().Msg("Giving up on chunk")
			break
		}
		if err := sleep(ctx, c.opts.Pause*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// chart performs one chart request for [start, end).
func (c *Client) chart(ctx context.Context, ticker string, start, end time.Time) ([]market.Bar, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))
	params.Set("interval", c.opts.Interval)
	params.Set("includePrePost", "false")

	apiURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.opts.BaseURL, url.PathEscape(ticker), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var cr chartResponse
	if jerr := json.Unmarshal(body, &cr); jerr == nil && cr.Chart.Error != nil {
		if cr.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w: %s", ErrNoData, cr.Chart.Error.Description)
		}
		return nil, fmt.Errorf("API error (status %d): %s: %s", resp.StatusCode, cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Chart.Result) == 0 {
		return nil, nil
	}
	return toBars(cr.Chart.Result[0]), nil
}

// toBars converts a chart result, dropping rows with any missing price.
func toBars(r chartResult) []market.Bar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	bars := make([]market.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		o, h, l, cl := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if o == nil || h == nil || l == nil || cl == nil {
			continue
		}
		b := market.Bar{
			Time:  time.Unix(ts, 0).UTC(),
			Open:  *o,
			High:  *h,
			Low:   *l,
			Close: *cl,
		}
		if v := at(q.Volume, i); v != nil {
			b.Volume = *v
		}
		bars = append(bars, b)
	}
	return bars
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

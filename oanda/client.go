// Package oanda fetches historical candles from the OANDA v20 REST API.
package oanda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/fvg/market"
)

const (
	// PracticeURL is the URL for OANDA's practice/demo environment
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is the URL for OANDA's live trading environment
	LiveURL = "https://api-fxtrade.oanda.com"

	// MaxCount is the most candles one request may return.
	MaxCount = 5000
)

// Granularity represents the time frame for candles
type Granularity string

const (
	M1  Granularity = "M1"  // 1 minute
	M5  Granularity = "M5"  // 5 minutes
	M15 Granularity = "M15" // 15 minutes
	M30 Granularity = "M30" // 30 minutes
	H1  Granularity = "H1"  // 1 hour
	H4  Granularity = "H4"  // 4 hours
	D   Granularity = "D"   // 1 day
)

var intervals = map[string]Granularity{
	"1m":  M1,
	"5m":  M5,
	"15m": M15,
	"30m": M30,
	"1h":  H1,
	"4h":  H4,
	"1d":  D,
}

// GranularityFor maps a download interval such as "1m" to a granularity.
func GranularityFor(interval string) (Granularity, error) {
	g, ok := intervals[interval]
	if !ok {
		return "", fmt.Errorf("no OANDA granularity for interval %q", interval)
	}
	return g, nil
}

// PriceComponent represents the price component for candles
type PriceComponent string

const (
	MidPrice PriceComponent = "M" // Midpoint candles
	BidPrice PriceComponent = "B" // Bid candles
	AskPrice PriceComponent = "A" // Ask candles
)

// Client represents an OANDA API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new OANDA API client
func NewClient(token string, practice bool, logger zerolog.Logger) *Client {
	baseURL := LiveURL
	if practice {
		baseURL = PracticeURL
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger.With().Str("component", "oanda").Logger(),
	}
}

// CandlesRequest represents parameters for fetching historical candles
type CandlesRequest struct {
	Instrument   string         // Required, e.g. "EUR_USD"
	Price        PriceComponent // default MidPrice
	Granularity  Granularity    // default M1
	Count        int            // at most MaxCount
	From         *time.Time
	To           *time.Time
	ExcludeFirst bool // drop the candle at From when paging
}

type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool       `json:"complete"`
	Volume   int        `json:"volume"`
	Time     string     `json:"time"`
	Mid      candleData `json:"mid,omitempty"`
	Bid      candleData `json:"bid,omitempty"`
	Ask      candleData `json:"ask,omitempty"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// GetCandles fetches one page of completed candles.
func (c *Client) GetCandles(ctx context.Context, req CandlesRequest) ([]market.Bar, error) {
	if req.Instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	if req.Count > MaxCount {
		return nil, fmt.Errorf("count cannot exceed %d", MaxCount)
	}
	if req.Price == "" {
		req.Price = MidPrice
	}
	if req.Granularity == "" {
		req.Granularity = M1
	}

	params := url.Values{}
	params.Set("price", string(req.Price))
	params.Set("granularity", string(req.Granularity))
	if req.Count > 0 {
		params.Set("count", strconv.Itoa(req.Count))
	}
	if req.From != nil {
		params.Set("from", req.From.UTC().Format(time.RFC3339))
		if req.ExcludeFirst {
			params.Set("includeFirst", "false")
		}
	}
	if req.To != nil {
		params.Set("to", req.To.UTC().Format(time.RFC3339))
	}

	apiURL := fmt.Sprintf("%s/v3/instruments/%s/candles?%s", c.baseURL, req.Instrument, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp candlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	bars := make([]market.Bar, 0, len(apiResp.Candles))
	for _, ac := range apiResp.Candles {
		if !ac.Complete {
			continue
		}
		b, err := toBar(ac, req.Price)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func toBar(ac apiCandle, price PriceComponent) (market.Bar, error) {
	t, err := time.Parse(time.RFC3339Nano, ac.Time)
	if err != nil {
		return market.Bar{}, fmt.Errorf("parse time %s: %w", ac.Time, err)
	}

	var pd candleData
	switch price {
	case BidPrice:
		pd = ac.Bid
	case AskPrice:
		pd = ac.Ask
	default:
		pd = ac.Mid
	}

	b := market.Bar{Time: t.UTC(), Volume: float64(ac.Volume)}
	for _, f := range []struct {
		name string
		s    string
		dst  *float64
	}{
		{"open", pd.O, &b.Open},
		{"high", pd.H, &b.High},
		{"low", pd.L, &b.Low},
		{"close", pd.C, &b.Close},
	} {
		v, err := strconv.ParseFloat(f.s, 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse %s price: %w", f.name, err)
		}
		*f.dst = v
	}
	return b, nil
}

// Fetch pages through [start, end) MaxCount candles at a time.
func (c *Client) Fetch(ctx context.Context, instrument string, gran Granularity, start, end time.Time) ([]market.Bar, error) {
	var out []market.Bar
	from, first := start, true
	for from.Before(end) {
		page, err := c.GetCandles(ctx, CandlesRequest{
			Instrument:   instrument,
			Granularity:  gran,
			Count:        MaxCount,
			From:         &from,
			ExcludeFirst: !first,
		})
		if err != nil {
			return nil, err
		}
		first = false

		for _, b := range page {
			if b.Time.Before(end) {
				out = append(out, b)
			}
		}
		c.log.Debug().Str("instrument", instrument).Int("candles", len(page)).Time("from", from).Msg("Fetched page")

		if len(page) < MaxCount {
			break
		}
		from = page[len(page)-1].Time
	}

	out, _ = market.SortDedup(out)
	c.log.Info().Str("instrument", instrument).Int("rows", len(out)).Msg("Download complete")
	return out, nil
}

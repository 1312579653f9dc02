// Package dukascopy downloads hourly tick files from the Dukascopy
// datafeed and turns them into one-minute bars.
package dukascopy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/fvg/market"
)

const DefaultURL = "https://datafeed.dukascopy.com/datafeed"

// Options configures a Client. Zero values fall back to the defaults
// noted on each field.
type Options struct {
	BaseURL  string        // DefaultURL
	Workers  int           // 4 parallel downloads
	Pause    time.Duration // 50ms between requests
	Timeout  time.Duration // 45s per request
	CacheDir string        // keep raw .bi5 files here; empty disables caching
}

type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultURL
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Pause <= 0 {
		opts.Pause = 50 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Every(opts.Pause), 1),
		log:        logger.With().Str("component", "dukascopy").Logger(),
	}
}

// Fetch downloads every hour overlapping [start, end) and returns
// one-minute mid-price bars inside the range. Hours that are missing
// (404, weekends) or fail to download are logged and skipped.
func (c *Client) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return nil, fmt.Errorf("end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	var hours []time.Time
	for t := start.Truncate(time.Hour); t.Before(end); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}
	c.log.Info().Str("symbol", sym).Time("start", start).Time("end", end).Int("hours", len(hours)).Msg("Requesting ticks")

	var ok, miss, fail atomic.Int32
	results := make([][]market.Bar, len(hours))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, hour := range hours {
		i, hour := i, hour // per-iteration copies for go < 1.22 loop semantics
		g.Go(func() error {
			ticks, err := c.Ticks(gctx, sym, hour)
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				fail.Add(1)
				c.log.Warn().Err(err).Time("hour", hour).Msg("Hour failed, skipping")
				return nil
			case ticks == nil:
				miss.Add(1)
				return nil
			}
			ok.Add(1)
			results[i] = Minutes(ticks)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var bars []market.Bar
	for _, rs := range results {
		for _, b := range rs {
			if !b.Time.Before(start) && b.Time.Before(end) {
				bars = append(bars, b)
			}
		}
	}
	c.log.Info().Int32("ok", ok.Load()).Int32("miss", miss.Load()).Int32("fail", fail.Load()).
		Int("bars", len(bars)).Msg("Download complete")
	return bars, nil
}

// Ticks returns the ticks of the hour starting at hour. A nil slice with a
// nil error means Dukascopy has no file for that hour.
func (c *Client) Ticks(ctx context.Context, symbol string, hour time.Time) ([]Tick, error) {
	raw, err := c.bi5(ctx, symbol, hour)
	if err != nil || raw == nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []Tick{}, nil
	}
	return Decode(bytes.NewReader(raw), hour, PointScale(symbol))
}

// bi5 returns the compressed file for an hour, from the cache when present.
func (c *Client) bi5(ctx context.Context, symbol string, hour time.Time) ([]byte, error) {
	var dst string
	if c.opts.CacheDir != "" {
		dst = filepath.Join(c.opts.CacheDir, symbol,
			fmt.Sprintf("%04d", hour.Year()), fmt.Sprintf("%02d", hour.Month()), fmt.Sprintf("%02d", hour.Day()),
			fmt.Sprintf("%02dh_ticks.bi5", hour.Hour()))
		if raw, err := os.ReadFile(dst); err == nil {
			return raw, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tickURL(c.opts.BaseURL, symbol, hour), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "fvg-dukascopy/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = []byte{}
	}

	if dst != "" {
		if err := writeAtomic(dst, raw); err != nil {
			c.log.Warn().Err(err).Str("path", dst).Msg("Cache write failed")
		}
	}
	return raw, nil
}

// tickURL builds the datafeed path. Months are zero-based: Jan=00 ... Dec=11.
func tickURL(base, symbol string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%02dh_ticks.bi5",
		strings.TrimRight(base, "/"),
		symbol,
		t.Year(), int(t.Month())-1, t.Day(), t.Hour())
}

func writeAtomic(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

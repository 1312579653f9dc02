package yahoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

type row struct {
	ts                     time.Time
	open, high, low, close any
	volume                 any
}

func chartJSON(rows ...row) map[string]any {
	var (
		ts                 []int64
		o, h, l, c, volume []any
	)
	for _, r := range rows {
		ts = append(ts, r.ts.Unix())
		o = append(o, r.open)
		h = append(h, r.high)
		l = append(l, r.low)
		c = append(c, r.close)
		volume = append(volume, r.volume)
	}
	return map[string]any{
		"chart": map[string]any{
			"result": []any{map[string]any{
				"meta":      map[string]any{"symbol": "AAPL"},
				"timestamp": ts,
				"indicators": map[string]any{
					"quote": []any{map[string]any{
						"open": o, "high": h, "low": l, "close": c, "volume": volume,
					}},
				},
			}},
			"error": nil,
		},
	}
}

func notFoundJSON() map[string]any {
	return map[string]any{
		"chart": map[string]any{
			"result": nil,
			"error": map[string]any{
				"code":        "Not Found",
				"description": "No data found, symbol may be delisted",
			},
		},
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts Options) *Client {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL
	if opts.Pause == 0 {
		opts.Pause = time.Millisecond
	}
	c := NewClient(opts, zerolog.Nop())
	c.now = func() time.Time { return day0.AddDate(0, 0, 10) }
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Options{}, zerolog.Nop())
	assert.Equal(t, DefaultURL, c.opts.BaseURL)
	assert.Equal(t, "1m", c.opts.Interval)
	assert.Equal(t, 3, c.opts.Retries)
	assert.Equal(t, time.Second, c.opts.Pause)
	assert.Equal(t, 7, c.opts.ChunkDays)
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}

func TestFetch_Success(t *testing.T) {
	m := day0.Add(14*time.Hour + 30*time.Minute)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, strconv.FormatInt(day0.Unix(), 10), r.URL.Query().Get("period1"))
		assert.Equal(t, strconv.FormatInt(day0.AddDate(0, 0, 1).Unix(), 10), r.URL.Query().Get("period2"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		writeJSON(w, http.StatusOK, chartJSON(
			row{m, 180.1, 180.5, 180.0, 180.4, 1200},
			row{m.Add(time.Minute), 180.4, 180.9, 180.3, nil, 900},
			row{m.Add(2 * time.Minute), 180.6, 181.0, 180.5, 180.8, nil},
		))
	}, Options{})

	bars, err := c.Fetch(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, bars, 2, "row with a null close is dropped")

	assert.Equal(t, m, bars[0].Time)
	assert.Equal(t, 180.1, bars[0].Open)
	assert.Equal(t, 180.5, bars[0].High)
	assert.Equal(t, 180.0, bars[0].Low)
	assert.Equal(t, 180.4, bars[0].Close)
	assert.Equal(t, 1200.0, bars[0].Volume)

	assert.Equal(t, m.Add(2*time.Minute), bars[1].Time)
	assert.Zero(t, bars[1].Volume, "null volume reads as zero")
}

func TestFetch_ChunksDedupAndSort(t *testing.T) {
	var calls atomic.Int32
	shared := day0.AddDate(0, 0, 7)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			assert.Equal(t, strconv.FormatInt(day0.Unix(), 10), r.URL.Query().Get("period1"))
			assert.Equal(t, strconv.FormatInt(shared.Unix(), 10), r.URL.Query().Get("period2"))
			writeJSON(w, http.StatusOK, chartJSON(
				row{shared, 1, 2, 0.5, 1.5, 10},
				row{day0.Add(time.Hour), 1, 2, 0.5, 1.5, 10},
			))
		case 2:
			assert.Equal(t, strconv.FormatInt(shared.Unix(), 10), r.URL.Query().Get("period1"))
			writeJSON(w, http.StatusOK, chartJSON(
				row{shared, 9, 9, 9, 9, 9},
				row{shared.Add(time.Hour), 3, 4, 2, 3.5, 30},
			))
		default:
			t.Errorf("unexpected request %d", calls.Load())
		}
	}, Options{ChunkDays: 7})

	bars, err := c.Fetch(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	require.Len(t, bars, 3)
	assert.Equal(t, day0.Add(time.Hour), bars[0].Time)
	assert.Equal(t, shared, bars[1].Time)
	assert.Equal(t, 1.0, bars[1].Open, "first occurrence of a duplicate timestamp wins")
	assert.Equal(t, shared.Add(time.Hour), bars[2].Time)
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, chartJSON(row{day0.Add(time.Hour), 1, 2, 0.5, 1.5, 10}))
	}, Options{Retries: 3})

	bars, err := c.Fetch(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_GivesUpOnChunk(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
	}, Options{Retries: 2})

	bars, err := c.Fetch(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_NoDataIsPermanent(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, notFoundJSON())
	}, Options{Retries: 3})

	bars, err := c.Fetch(context.Background(), "ZZZZ", day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, int32(1), calls.Load(), "no retries after a no-data error")
}

func TestFetch_ClipsToLookback(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// now is day0+10d, so a 3-day lookback starts at day0+7d.
		assert.Equal(t, strconv.FormatInt(day0.AddDate(0, 0, 7).Unix(), 10), r.URL.Query().Get("period1"))
		writeJSON(w, http.StatusOK, chartJSON())
	}, Options{LookbackDays: 3})

	bars, err := c.Fetch(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 9))
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, int32(1), calls.Load())

	bars, err = c.Fetch(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, int32(1), calls.Load(), "range entirely before the lookback is not requested")
}

func TestFetch_BreakerOpens(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, Options{Retries: 3, ChunkDays: 1})

	_, err := c.Fetch(context.Background(), "AAPL", day0, day0.AddDate(0, 0, 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetch_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "AAPL", day0, day0.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_RequiresTicker(t *testing.T) {
	c := NewClient(Options{}, zerolog.Nop())
	_, err := c.Fetch(context.Background(), "", day0, day0.AddDate(0, 0, 1))
	assert.Error(t, err)
}

package dukascopy

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
)

var hour0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func bi5(t *testing.T, recs ...record) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, binary.Write(w, binary.BigEndian, r))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestTickURL(t *testing.T) {
	assert.Equal(t,
		"https://datafeed.dukascopy.com/datafeed/EURUSD/2024/00/15/10h_ticks.bi5",
		tickURL(DefaultURL+"/", "EURUSD", hour0))
	assert.Equal(t,
		"http://x/USDJPY/2023/11/31/23h_ticks.bi5",
		tickURL("http://x", "USDJPY", time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestPointScale(t *testing.T) {
	assert.Equal(t, 100_000.0, PointScale("EURUSD"))
	assert.Equal(t, 1_000.0, PointScale("usdjpy"))
}

func TestDecode(t *testing.T) {
	raw := bi5(t,
		record{Millis: 1_500, Ask: 108_512, Bid: 108_508, AskVol: 1.5, BidVol: 2.25},
		record{Millis: 61_000, Ask: 108_530, Bid: 108_520, AskVol: 0.5, BidVol: 0.75},
	)

	ticks, err := Decode(bytes.NewReader(raw), hour0, 100_000)
	require.NoError(t, err)
	require.Len(t, ticks, 2)

	assert.Equal(t, hour0.Add(1500*time.Millisecond), ticks[0].Time)
	assert.InDelta(t, 1.08512, ticks[0].Ask, 1e-12)
	assert.InDelta(t, 1.08508, ticks[0].Bid, 1e-12)
	assert.InDelta(t, 1.0851, ticks[0].Mid(), 1e-12)
	assert.Equal(t, 1.5, ticks[0].AskVolume)
	assert.Equal(t, 2.25, ticks[0].BidVolume)
	assert.Equal(t, hour0.Add(61*time.Second), ticks[1].Time)
}

func TestDecodeTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 27))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Decode(&buf, hour0, 100_000)
	assert.Error(t, err)
}

func TestMinutes(t *testing.T) {
	ticks := []Tick{
		{Time: hour0.Add(5 * time.Second), Ask: 1.2, Bid: 1.0, AskVolume: 1, BidVolume: 1},
		{Time: hour0.Add(20 * time.Second), Ask: 1.4, Bid: 1.2, AskVolume: 2, BidVolume: 0},
		{Time: hour0.Add(50 * time.Second), Ask: 1.0, Bid: 0.8, AskVolume: 0, BidVolume: 3},
		{Time: hour0.Add(70 * time.Second), Ask: 1.0, Bid: 1.0, AskVolume: 1, BidVolume: 1},
	}

	bars := Minutes(ticks)
	require.Len(t, bars, 2)

	assert.Equal(t, hour0, bars[0].Time)
	assert.InDelta(t, 1.1, bars[0].Open, 1e-12)
	assert.InDelta(t, 1.3, bars[0].High, 1e-12)
	assert.InDelta(t, 0.9, bars[0].Low, 1e-12)
	assert.InDelta(t, 0.9, bars[0].Close, 1e-12)
	assert.Equal(t, 7.0, bars[0].Volume)

	assert.Equal(t, hour0.Add(time.Minute), bars[1].Time)
	assert.Equal(t, 1.0, bars[1].Open)
	assert.Equal(t, 2.0, bars[1].Volume)
}

type feed struct {
	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

func (f *feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.URL.Path]++
	raw, ok := f.files[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(raw)
}

func newFeed(t *testing.T) (*feed, *httptest.Server) {
	t.Helper()

	f := &feed{
		files: map[string][]byte{
			"/EURUSD/2024/00/15/10h_ticks.bi5": bi5(t,
				record{Millis: 0, Ask: 108_510, Bid: 108_500, AskVol: 1, BidVol: 1},
				record{Millis: 30_000, Ask: 108_530, Bid: 108_520, AskVol: 1, BidVol: 1},
			),
			"/EURUSD/2024/00/15/11h_ticks.bi5": bi5(t,
				record{Millis: 120_000, Ask: 108_400, Bid: 108_390, AskVol: 2, BidVol: 2},
			),
			"/EURUSD/2024/00/15/13h_ticks.bi5": {},
			"/EURUSD/2024/00/15/14h_ticks.bi5": []byte("not lzma"),
		},
		hits: map[string]int{},
	}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, server
}

func TestFetch(t *testing.T) {
	_, server := newFeed(t)
	c := NewClient(Options{BaseURL: server.URL, Pause: time.Millisecond}, zerolog.Nop())

	// 12h is a 404, 13h is empty and 14h is corrupt; all are skipped.
	bars, err := c.Fetch(context.Background(), "eurusd", hour0, hour0.Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, hour0, bars[0].Time)
	assert.InDelta(t, 1.08505, bars[0].Open, 1e-12)
	assert.InDelta(t, 1.08525, bars[0].Close, 1e-12)
	assert.Equal(t, 4.0, bars[0].Volume)

	assert.Equal(t, hour0.Add(62*time.Minute), bars[1].Time)
	assert.InDelta(t, 1.08395, bars[1].Close, 1e-12)
}

func TestFetchTrimsToRange(t *testing.T) {
	_, server := newFeed(t)
	c := NewClient(Options{BaseURL: server.URL, Pause: time.Millisecond}, zerolog.Nop())

	bars, err := c.Fetch(context.Background(), "EURUSD", hour0.Add(30*time.Minute), hour0.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, hour0.Add(62*time.Minute), bars[0].Time)
}

func TestFetchUsesCache(t *testing.T) {
	f, server := newFeed(t)
	cache := t.TempDir()
	c := NewClient(Options{BaseURL: server.URL, Pause: time.Millisecond, CacheDir: cache}, zerolog.Nop())

	first, err := c.Fetch(context.Background(), "EURUSD", hour0, hour0.Add(2*time.Hour))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cache, "EURUSD", "2024", "01", "15", "10h_ticks.bi5"))
	require.NoError(t, err)

	second, err := c.Fetch(context.Background(), "EURUSD", hour0, hour0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.hits["/EURUSD/2024/00/15/10h_ticks.bi5"])
	assert.Equal(t, 1, f.hits["/EURUSD/2024/00/15/11h_ticks.bi5"])
}

func TestFetchErrors(t *testing.T) {
	c := NewClient(Options{}, zerolog.Nop())

	_, err := c.Fetch(context.Background(), " ", hour0, hour0.Add(time.Hour))
	assert.Error(t, err)

	_, err = c.Fetch(context.Background(), "EURUSD", hour0, hour0)
	assert.Error(t, err)
}

func TestFetchCancelled(t *testing.T) {
	_, server := newFeed(t)
	c := NewClient(Options{BaseURL: server.URL}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "EURUSD", hour0, hour0.Add(3*time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

package dukascopy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ulikunitz/xz/lzma"

	"github.com/rustyeddy/fvg/market"
)

// Tick is one quote from a tick file.
type Tick struct {
	Time      time.Time
	Ask       float64
	Bid       float64
	AskVolume float64
	BidVolume float64
}

func (t Tick) Mid() float64 {
	return (t.Ask + t.Bid) / 2
}

// record is the 20-byte big-endian layout of a decompressed tick.
type record struct {
	Millis uint32
	Ask    uint32
	Bid    uint32
	AskVol float32
	BidVol float32
}

// PointScale returns the divisor from integer points to prices: 1e3 for
// yen-quoted pairs, 1e5 otherwise.
func PointScale(symbol string) float64 {
	if strings.HasSuffix(strings.ToUpper(symbol), "JPY") {
		return 1_000
	}
	return 100_000
}

// Decode reads an LZMA-compressed tick file for the hour starting at hour.
func Decode(r io.Reader, hour time.Time, scale float64) ([]Tick, error) {
	lr, err := lzma.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("bi5: %w", err)
	}

	ticks := []Tick{}
	for {
		var rec record
		err := binary.Read(lr, binary.BigEndian, &rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bi5 record %d: %w", len(ticks), err)
		}
		ticks = append(ticks, Tick{
			Time:      hour.Add(time.Duration(rec.Millis) * time.Millisecond),
			Ask:       float64(rec.Ask) / scale,
			Bid:       float64(rec.Bid) / scale,
			AskVolume: float64(rec.AskVol),
			BidVolume: float64(rec.BidVol),
		})
	}
	return ticks, nil
}

// Minutes aggregates time-ordered ticks into one-minute mid-price bars.
// Volume is the sum of ask and bid volume.
func Minutes(ticks []Tick) []market.Bar {
	var out []market.Bar
	for _, t := range ticks {
		m := t.Time.Truncate(time.Minute)
		px := t.Mid()
		vol := t.AskVolume + t.BidVolume

		n := len(out)
		if n > 0 && out[n-1].Time.Equal(m) {
			cur := &out[n-1]
			cur.High = max(cur.High, px)
			cur.Low = min(cur.Low, px)
			cur.Close = px
			cur.Volume += vol
			continue
		}
		out = append(out, market.Bar{Time: m, Open: px, High: px, Low: px, Close: px, Volume: vol})
	}
	return out
}

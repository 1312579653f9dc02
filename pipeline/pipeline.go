// Package pipeline runs gap detection over one bar series at several
// timeframes and hands the results to a journal.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/fvg/fvg"
	"github.com/rustyeddy/fvg/journal"
	"github.com/rustyeddy/fvg/market"
	"github.com/rustyeddy/fvg/pkg/id"
)

// Options configures Run. Journal may be nil to skip persistence.
type Options struct {
	Ticker     string
	Timeframes []market.Timeframe
	Journal    journal.Journal
	Logger     zerolog.Logger

	// NewID and Now default to id.New and time.Now.
	NewID func() string
	Now   func() time.Time
}

// Result is the outcome of one timeframe.
type Result struct {
	Run      journal.Run
	Gaps     []fvg.Gap
	Insights fvg.Insights
}

// Run resamples bars to each timeframe, scans and analyzes them, and
// records every result. Unsupported timeframes and timeframes that
// resample to nothing are skipped with a warning. Results follow the order
// of opts.Timeframes.
func Run(ctx context.Context, bars []market.Bar, opts Options) ([]Result, error) {
	if opts.NewID == nil {
		opts.NewID = id.New
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	results := make([]*Result, len(opts.Timeframes))
	g, ctx := errgroup.WithContext(ctx)
	for i, tf := range opts.Timeframes {
		i, tf := i, tf // per-iteration copies for go < 1.22 loop semantics
		log := opts.Logger.With().Str("ticker", opts.Ticker).Str("timeframe", string(tf)).Logger()
		if !tf.Supported() {
			log.Warn().Msg("Unsupported timeframe, skipping")
			continue
		}

		g.Go(func() error {
			res, err := runTimeframe(ctx, bars, tf, opts, log)
			if err != nil {
				return fmt.Errorf("timeframe %s: %w", tf, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func runTimeframe(ctx context.Context, bars []market.Bar, tf market.Timeframe, opts Options, log zerolog.Logger) (*Result, error) {
	rs, err := market.Resample(bars, tf)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		log.Warn().Msg("No data after resampling, skipping")
		return nil, nil
	}
	log.Info().Int("bars", len(rs)).Msg("Detecting FVGs")

	gaps, err := fvg.Scan(rs)
	if err != nil {
		return nil, err
	}
	ins := fvg.Analyze(gaps)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := journal.Run{
		ID:        opts.NewID(),
		Ticker:    opts.Ticker,
		Timeframe: string(tf),
		Bars:      len(rs),
		CreatedAt: opts.Now().UTC(),
	}
	if opts.Journal != nil {
		if err := opts.Journal.RecordGaps(run, gaps); err != nil {
			return nil, fmt.Errorf("record gaps: %w", err)
		}
		if err := opts.Journal.RecordInsights(run, ins); err != nil {
			return nil, fmt.Errorf("record insights: %w", err)
		}
	}

	summarize(log.Info().Str("run_id", run.ID), ins).Msg("Insights")
	return &Result{Run: run, Gaps: gaps, Insights: ins}, nil
}

func summarize(e *zerolog.Event, ins fvg.Insights) *zerolog.Event {
	e = e.Int("total_fvgs", ins.Total)
	if ins.Breakdown == nil {
		return e
	}
	e = e.Int("bullish", ins.Bullish).
		Int("bearish", ins.Bearish).
		Int("filled", ins.Filled).
		Float64("fill_rate", ins.FillRate).
		Float64("avg_gap_size", ins.AvgGapSize)
	if ins.AvgTimeToFill != nil {
		e = e.Float64("avg_time_to_fill_min", *ins.AvgTimeToFill)
	}
	return e
}

// Package journal persists scan results: the gap list and insight report
// of each (ticker, timeframe) run.
package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/fvg/fvg"
)

// Run identifies one scan of one ticker at one timeframe.
type Run struct {
	ID        string
	Ticker    string
	Timeframe string
	Bars      int
	CreatedAt time.Time
}

// prefix is the file name stem shared by every file written for a run.
func (r Run) prefix() string {
	return fmt.Sprintf("%s_%s", r.Ticker, r.Timeframe)
}

// Journal records scan results. Implementations must be safe for
// concurrent use by runs with distinct IDs.
type Journal interface {
	RecordGaps(Run, []fvg.Gap) error
	RecordInsights(Run, fvg.Insights) error
	Close() error
}

// Multi fans every record out to each journal in order.
type Multi []Journal

func (m Multi) RecordGaps(r Run, gaps []fvg.Gap) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordGaps(r, gaps))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordInsights(r Run, ins fvg.Insights) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordInsights(r, ins))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}

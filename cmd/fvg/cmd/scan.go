package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/fvg/config"
	"github.com/rustyeddy/fvg/dukascopy"
	"github.com/rustyeddy/fvg/journal"
	"github.com/rustyeddy/fvg/market"
	"github.com/rustyeddy/fvg/oanda"
	"github.com/rustyeddy/fvg/pipeline"
	"github.com/rustyeddy/fvg/yahoo"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Detect Fair Value Gaps and write the results",
	Long: `Load bars, resample them to each timeframe, detect gaps and their
fills, and write gap lists, insight reports and chart data.

Flags override the matching config file values.

Examples:
  fvg scan --ticker AAPL --start 2024-05-01 --end 2024-05-08
  fvg scan --source dukascopy --ticker EURUSD --start 2024-01-15 --end 2024-01-16
  fvg scan --csv bars.csv --ticker EURUSD --timeframes 1h,4h --formats csv,parquet
  fvg scan --config scan.yaml`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var scanFlags struct {
	source     string
	ticker     string
	start      string
	end        string
	csv        string
	timeframes []string
	outputDir  string
	formats    []string
	db         string
	bins       int
}

func init() {
	rootCmd.AddCommand(scanCmd)

	f := scanCmd.Flags()
	f.StringVarP(&scanFlags.ticker, "ticker", "t", "", "ticker symbol")
	f.StringVar(&scanFlags.start, "start", "", "first day to download (YYYY-MM-DD)")
	f.StringVar(&scanFlags.end, "end", "", "day after the last day to download (YYYY-MM-DD)")
	f.StringVar(&scanFlags.source, "source", "", "bar source: yahoo, oanda, dukascopy or csv")
	f.StringVar(&scanFlags.csv, "csv", "", "read bars from a CSV file instead of downloading")
	f.StringSliceVar(&scanFlags.timeframes, "timeframes", nil, "timeframes to scan, e.g. 1D,1h,15min")
	f.StringVarP(&scanFlags.outputDir, "output-dir", "o", "", "output directory")
	f.StringSliceVar(&scanFlags.formats, "formats", nil, "output formats: csv, json, parquet, sqlite")
	f.StringVar(&scanFlags.db, "db", "", "SQLite journal path")
	f.IntVar(&scanFlags.bins, "bins", 0, "fill-duration histogram bins")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyScanFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := cmd.Context()
	bars, err := loadBars(ctx, cfg)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		log.Warn().Str("ticker", cfg.Data.Ticker).Msg("No bars to analyze")
		return nil
	}

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	tfs := make([]market.Timeframe, len(cfg.Scan.Timeframes))
	for i, tf := range cfg.Scan.Timeframes {
		tfs[i] = market.Timeframe(tf)
	}

	results, err := pipeline.Run(ctx, bars, pipeline.Options{
		Ticker:     cfg.Data.Ticker,
		Timeframes: tfs,
		Journal:    j,
		Logger:     log.Logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Scanned %s: %d bars, results in %s\n", cfg.Data.Ticker, len(bars), cfg.Output.Dir)
	for _, r := range results {
		fmt.Printf("  %-6s %5d bars %5d FVGs", r.Run.Timeframe, r.Run.Bars, r.Insights.Total)
		if r.Insights.Breakdown != nil {
			fmt.Printf("  fill rate %5.1f%%", r.Insights.FillRate*100)
		}
		fmt.Printf("  run %s\n", r.Run.ID)
	}
	return nil
}

func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("source") {
		cfg.Data.Source = scanFlags.source
	}
	if f.Changed("ticker") {
		cfg.Data.Ticker = scanFlags.ticker
	}
	if f.Changed("start") {
		cfg.Data.Start = scanFlags.start
	}
	if f.Changed("end") {
		cfg.Data.End = scanFlags.end
	}
	if f.Changed("csv") {
		cfg.Data.Source = "csv"
		cfg.Data.CSV = scanFlags.csv
	}
	if f.Changed("timeframes") {
		cfg.Scan.Timeframes = scanFlags.timeframes
	}
	if f.Changed("output-dir") {
		cfg.Output.Dir = scanFlags.outputDir
	}
	if f.Changed("formats") {
		cfg.Output.Formats = scanFlags.formats
	}
	if f.Changed("db") {
		cfg.Output.DBPath = scanFlags.db
	}
	if f.Changed("bins") {
		cfg.Scan.HistogramBins = scanFlags.bins
	}
}

func loadBars(ctx context.Context, cfg *config.Config) ([]market.Bar, error) {
	if cfg.Data.Source == "csv" {
		bars, stats, err := market.LoadCSV(cfg.Data.CSV)
		if err != nil {
			return nil, fmt.Errorf("load bars: %w", err)
		}
		log.Info().Str("path", cfg.Data.CSV).Int("rows", stats.Rows).
			Int("dropped", stats.Dropped).Int("duplicates", stats.Duplicates).Msg("Loaded bars")
		return bars, nil
	}

	start, err := cfg.StartTime()
	if err != nil {
		return nil, err
	}
	end, err := cfg.EndTime()
	if err != nil {
		return nil, err
	}
	p := cfg.Provider

	switch cfg.Data.Source {
	case "oanda":
		token := p.Token
		if token == "" {
			token = os.Getenv("OANDA_TOKEN")
		}
		if token == "" {
			return nil, fmt.Errorf("oanda source needs provider.token or $OANDA_TOKEN")
		}
		gran, err := oanda.GranularityFor(p.Interval)
		if err != nil {
			return nil, err
		}
		return oanda.NewClient(token, p.Practice, log.Logger).Fetch(ctx, cfg.Data.Ticker, gran, start, end)

	case "dukascopy":
		client := dukascopy.NewClient(dukascopy.Options{
			BaseURL:  p.BaseURL,
			Workers:  p.Workers,
			Timeout:  cfg.TimeoutDuration(),
			CacheDir: p.CacheDir,
		}, log.Logger)
		return client.Fetch(ctx, cfg.Data.Ticker, start, end)

	default:
		client := yahoo.NewClient(yahoo.Options{
			BaseURL:      p.BaseURL,
			Interval:     p.Interval,
			Retries:      p.Retries,
			Pause:        cfg.PauseDuration(),
			ChunkDays:    p.ChunkDays,
			LookbackDays: p.LookbackDays,
			Timeout:      cfg.TimeoutDuration(),
		}, log.Logger)
		return client.Fetch(ctx, cfg.Data.Ticker, start, end)
	}
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	var m journal.Multi
	add := func(j journal.Journal, err error) error {
		if err != nil {
			m.Close()
			return fmt.Errorf("open journal: %w", err)
		}
		m = append(m, j)
		return nil
	}

	dir := cfg.Output.Dir
	for _, format := range slices.Compact(sortedCopy(cfg.Output.Formats)) {
		var err error
		switch format {
		case "csv":
			err = add(journal.NewCSV(dir, cfg.Scan.HistogramBins))
		case "json":
			err = add(journal.NewJSON(dir))
		case "parquet":
			err = add(journal.NewParquet(dir))
		case "sqlite":
			err = add(journal.NewSQLite(cfg.Output.DBPath))
		default:
			err = fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// sortedCopy returns a sorted copy of s, leaving s unmodified
// (equivalent to slices.Sorted(slices.Values(s)) for Go < 1.23).
func sortedCopy(s []string) []string {
	c := slices.Clone(s)
	slices.Sort(c)
	return c
}

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fvg/journal"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Query past scans in the SQLite journal",
	Long: `List and inspect scans recorded with the sqlite output format.

Subcommands:
  list - List recorded runs, newest first
  show - Show the insight report and gaps of one run

Examples:
  fvg runs list --ticker AAPL
  fvg runs show 01HZX3K4Q8VYB6N2E5R7T9W0AC --gaps`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var (
	runsDBPath   string
	runsTicker   string
	runsShowGaps bool
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsCmd.PersistentFlags().StringVarP(&runsDBPath, "db", "d", "", "path to SQLite journal DB (default from config)")
	runsListCmd.Flags().StringVarP(&runsTicker, "ticker", "t", "", "only list runs for this ticker")
	runsShowCmd.Flags().BoolVar(&runsShowGaps, "gaps", false, "also list every gap")
}

func openRunsDB(cmd *cobra.Command) (*journal.SQLite, error) {
	path := runsDBPath
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		path = cfg.Output.DBPath
	}

	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	j, err := openRunsDB(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(runsTicker)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-26s  %-8s %-6s %7s %6s %9s  %s\n", "RUN", "TICKER", "TF", "BARS", "FVGS", "FILL", "CREATED")
	for _, r := range runs {
		total, fill := "-", "-"
		if r.Total.Valid {
			total = fmt.Sprint(r.Total.Int64)
		}
		if r.FillRate.Valid {
			fill = fmt.Sprintf("%.1f%%", r.FillRate.Float64*100)
		}
		fmt.Printf("%-26s  %-8s %-6s %7d %6s %9s  %s\n",
			r.ID, r.Ticker, r.Timeframe, r.Bars, total, fill, r.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	j, err := openRunsDB(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	runID := args[0]
	r, err := j.GetRun(runID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %s %s, %d bars, %s\n", r.ID, r.Ticker, r.Timeframe, r.Bars, r.CreatedAt.Format(time.RFC3339))

	ins, err := j.InsightsByRun(runID)
	switch {
	case errors.Is(err, journal.ErrRunNotFound):
		fmt.Println("No insights recorded")
	case err != nil:
		return fmt.Errorf("load insights: %w", err)
	default:
		out, err := json.MarshalIndent(ins, "", "    ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	if !runsShowGaps {
		return nil
	}
	gaps, err := j.GapsByRun(runID)
	if err != nil {
		return fmt.Errorf("load gaps: %w", err)
	}
	for _, g := range gaps {
		fill := "unfilled"
		if g.FillTime != nil {
			fill = "filled " + g.FillTime.Format(time.RFC3339)
		}
		fmt.Printf("  %s  %-7s [%g, %g]  %s\n", g.Timestamp.Format(time.RFC3339), g.Type, g.GapLow, g.GapHigh, fill)
	}
	return nil
}

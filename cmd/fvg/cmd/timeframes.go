package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fvg/market"
)

var timeframesCmd = &cobra.Command{
	Use:   "timeframes",
	Short: "List the supported timeframes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, tf := range market.Timeframes() {
			d, _ := tf.Duration()
			fmt.Printf("  %-6s %s\n", tf, d)
		}
	},
}

func init() {
	rootCmd.AddCommand(timeframesCmd)
}

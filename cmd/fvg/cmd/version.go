package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the fvg CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fvg version %s\n", version)
		fmt.Println("Fair Value Gap detection and analysis")
		fmt.Println("https://github.com/rustyeddy/fvg")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

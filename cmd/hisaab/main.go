// Command hisaab runs the shared-expense server and its maintenance tools.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "hisaab",
	Short:        "Shared-expense tracking and settlement",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/hisaab/internal/service"
	"github.com/mmynk/hisaab/pkg/api"
)

var settleCmd = &cobra.Command{
	Use:   "settle [file]",
	Short: "Compute settlements for a JSON document of members and expenses",
	Long: `Reads {"groupMembers": [...], "expenses": [...]} from file, or stdin
when file is "-" or omitted, and prints the settlement plan as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		return settle(r, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(settleCmd)
}

func settle(r io.Reader, w io.Writer) error {
	var in api.SettleInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(service.SettleInput(&in))
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowkeep/rowkeep/internal/envelope"
)

var createTableCmd = &cobra.Command{
	Use:   "create-table <table>",
	Short: "Create or migrate a logical table from a JSON schema body",
	Long: `Create a logical table, or migrate an existing one in place if the
submitted schema's hash differs from the stored one and the diff is additive.

Examples:
  rowkeep create-table orders --file orders.schema.json
  cat orders.schema.json | rowkeep create-table orders`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readBody()
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		var req envelope.CreateTableRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		req.Table = args[0]
		printResponse(db.CreateTable(rootCtx, domain, &req))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createTableCmd)
}

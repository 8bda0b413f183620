package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowkeep/rowkeep/internal/envelope"
)

var putCmd = &cobra.Command{
	Use:   "put <table>",
	Short: "Write a row to a logical table",
	Long: `Write a row to a logical table. The JSON body (--file or stdin)
mirrors a putRequest envelope:

  {"attributes": {"user_id": "u1", "ts": "..."}, "if": "not exists", "withTTL": 3600}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readBody()
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		var req envelope.PutRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		req.Table = args[0]
		printResponse(db.Put(rootCtx, domain, &req))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowkeep/rowkeep/internal/envelope"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <table>",
	Short: "Hard-delete rows from a logical table",
	Long: `Hard-delete rows matching a predicate. The JSON body (--file or
stdin) mirrors a deleteRequest envelope:

  {"attributes": {"user_id": "u1", "ts": {"lt": "..."}}}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readBody()
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		var req envelope.DeleteRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		req.Table = args[0]
		printResponse(db.Delete(rootCtx, domain, &req))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowkeep/rowkeep/internal/envelope"
)

var getCmd = &cobra.Command{
	Use:   "get <table>",
	Short: "Read rows from a logical table",
	Long: `Read rows from a logical table. The JSON body (--file or stdin)
carries attributes, proj, order, limit, next, index and distinct, mirroring
a getRequest envelope:

  {"attributes": {"user_id": "u1"}, "proj": ["*"], "limit": 50}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readBody()
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		var req envelope.GetRequest
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("decode request: %w", err)
			}
		}
		req.Table = args[0]
		printResponse(db.Get(rootCtx, domain, &req))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

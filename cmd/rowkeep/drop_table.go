package main

import (
	"github.com/spf13/cobra"

	"github.com/rowkeep/rowkeep/internal/envelope"
)

var dropTableCmd = &cobra.Command{
	Use:   "drop-table <table>",
	Short: "Drop a logical table and its meta row",
	Long: `Drop a logical table. Idempotent: dropping an already-absent table
still succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printResponse(db.DropTable(rootCtx, domain, &envelope.DropTableRequest{Table: args[0]}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dropTableCmd)
}

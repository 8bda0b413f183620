package main

import (
	"github.com/spf13/cobra"

	"github.com/rowkeep/rowkeep/internal/envelope"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <table>",
	Short: "Print a logical table's stored schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printResponse(db.GetTableSchema(rootCtx, domain, &envelope.GetTableSchemaRequest{Table: args[0]}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

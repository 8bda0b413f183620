package main

import (
	"github.com/spf13/cobra"
)

var listTablesCmd = &cobra.Command{
	Use:   "list-tables",
	Short: "List every managed logical table",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := db.ListTables(rootCtx)
		if err != nil {
			return err
		}
		printResponse(names)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listTablesCmd)
}

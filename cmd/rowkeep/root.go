package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowkeep/rowkeep/internal/config"
	"github.com/rowkeep/rowkeep/internal/logging"
	"github.com/rowkeep/rowkeep/internal/tablestore"
)

var (
	cfgFile   string
	domain    string
	bodyFile  string
	jsonPlain bool

	cfg *config.Config
	db  *tablestore.DB

	rootCtx = context.Background()
)

var rootCmd = &cobra.Command{
	Use:   "rowkeep",
	Short: "Operate a rowkeep logical table store",
	Long: `rowkeep drives a logical table storage engine backed by embedded SQLite.

Commands speak the same request/response envelope the library API does:
create-table, get, put and delete take a JSON body (via --file or stdin),
drop-table and schema take only the table name, and each prints the
resulting envelope.Response as JSON.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "rowkeep" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logging.New(logging.Options{
			Path:       cfg.LogPath,
			Level:      cfg.LogLevel,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
		})
		db, err = tablestore.Open(rootCtx, cfg, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db != nil {
			return db.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to rowkeep config file")
	rootCmd.PersistentFlags().StringVar(&domain, "domain", "", "storage group domain the table belongs to")
	rootCmd.PersistentFlags().StringVar(&bodyFile, "file", "", "read the JSON request body from this file instead of stdin")
	rootCmd.PersistentFlags().BoolVar(&jsonPlain, "compact", false, "print response JSON without indentation")
}

// readBody reads a JSON request body from --file, or stdin if --file wasn't
// given. Commands that take no body (drop-table, schema, list-tables) never
// call this.
func readBody() ([]byte, error) {
	if bodyFile != "" {
		return os.ReadFile(bodyFile)
	}
	return io.ReadAll(os.Stdin)
}

func printResponse(resp any) {
	var out []byte
	var err error
	if jsonPlain {
		out, err = json.Marshal(resp)
	} else {
		out, err = json.MarshalIndent(resp, "", "  ")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

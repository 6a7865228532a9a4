package main

import (
	"fmt"

	"boundary-map/internal/content"
	"boundary-map/internal/migrate"
	"boundary-map/internal/utils"

	"github.com/spf13/cobra"
)

var (
	importDriver string
	importDSN    string
)

var importCmd = &cobra.Command{
	Use:   "import-content",
	Short: "Load content.json into the SQL content store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		driver, dsn := cfg.ContentDriver, cfg.ContentDSN
		if cmd.Flags().Changed("driver") {
			driver = importDriver
		}
		if cmd.Flags().Changed("dsn") {
			dsn = importDSN
		}
		if driver == "" || driver == "json" {
			return fmt.Errorf("a SQL driver is required (postgres, sqlite3, mysql)")
		}
		js, err := content.LoadJSON(ctx, source())
		if err != nil {
			return err
		}
		st, err := content.OpenSQLStore(ctx, utils.NormalizeDriver(driver), dsn)
		if err != nil {
			return err
		}
		defer st.Close()
		n, err := st.Import(ctx, js.Entries())
		if err != nil {
			return err
		}
		fmt.Printf("imported %d content records into %s\n", n, migrate.ContentTable)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDriver, "driver", "", "SQL driver (overrides CONTENT_DRIVER)")
	importCmd.Flags().StringVar(&importDSN, "dsn", "", "Data source name (overrides CONTENT_DSN)")
	rootCmd.AddCommand(importCmd)
}

package main

import (
	"fmt"

	"boundary-map/internal/search"

	"github.com/spf13/cobra"
)

var reindexBatch int

var reindexCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Bulk index search records into Elasticsearch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		recs, err := search.Load(ctx, source())
		if err != nil {
			return err
		}
		client, err := search.NewESClient(cfg.ESURL)
		if err != nil {
			return err
		}
		es := search.NewESIndex(client, cfg.ESIndex)
		if err := es.EnsureIndex(ctx); err != nil {
			return err
		}
		n, err := es.BulkIndex(ctx, recs, reindexBatch)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d of %d records into %s\n", n, len(recs), cfg.ESIndex)
		return nil
	},
}

func init() {
	reindexCmd.Flags().IntVar(&reindexBatch, "batch", 500, "Documents per bulk request")
	rootCmd.AddCommand(reindexCmd)
}

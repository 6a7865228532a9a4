package main

import (
	"context"
	"fmt"

	"boundary-map/internal/boundary"
	"boundary-map/internal/catalog"
	"boundary-map/internal/datasource"

	"github.com/spf13/cobra"
)

// 各层级文件大小的告警阈值（KB），ADM3 及以上共用最后一档
var sizeLimitsKB = []int{500, 1000, 2000, 3000}

func sizeLimitKB(rank int) int {
	if rank < 0 {
		rank = len(sizeLimitsKB) - 1
	}
	if rank >= len(sizeLimitsKB) {
		return sizeLimitsKB[len(sizeLimitsKB)-1]
	}
	return sizeLimitsKB[rank]
}

type levelReport struct {
	Country  string
	Level    string
	Path     string
	Features int
	SizeKB   int
	Oversize bool
	Err      error
}

// checkCatalog：逐个读取并解析目录中的层级文件
func checkCatalog(ctx context.Context, src datasource.Source, cat *catalog.Catalog) []levelReport {
	var out []levelReport
	for _, c := range cat.All() {
		for _, l := range c.Levels {
			rep := levelReport{Country: c.ISO, Level: l.Code, Path: c.DatasetPath(l)}
			b, err := datasource.ReadAll(ctx, src, rep.Path)
			if err == nil {
				var ds *boundary.Dataset
				if ds, err = boundary.Parse(boundary.Key{Country: c.ISO, Level: l.Code}, b); err == nil {
					rep.Features = len(ds.Features)
					rep.SizeKB = ds.Size / 1024
					rep.Oversize = rep.SizeKB > sizeLimitKB(l.Rank)
				}
			}
			rep.Err = err
			out = append(out, rep)
		}
	}
	return out
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify every catalog level file is readable and parses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src := source()
		cat, err := catalog.Load(ctx, src)
		if err != nil {
			return err
		}
		failed, oversize := 0, 0
		for _, r := range checkCatalog(ctx, src, cat) {
			switch {
			case r.Err != nil:
				failed++
				fmt.Printf("FAIL  %s %-5s %s: %v\n", r.Country, r.Level, r.Path, r.Err)
			case r.Oversize:
				oversize++
				fmt.Printf("WARN  %s %-5s %6d KB (limit %d KB) %d features\n", r.Country, r.Level, r.SizeKB, sizeLimitKB(catalog.ParseRank(r.Level)), r.Features)
			default:
				logVerbose("ok    %s %-5s %6d KB %d features", r.Country, r.Level, r.SizeKB, r.Features)
			}
		}
		fmt.Printf("\n%d countries checked, %d failed, %d oversize\n", cat.Len(), failed, oversize)
		if failed > 0 {
			return fmt.Errorf("%d level files failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

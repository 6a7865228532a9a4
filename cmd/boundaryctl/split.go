package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"boundary-map/internal/catalog"
	"boundary-map/internal/search"

	"github.com/spf13/cobra"
)

var (
	splitOut       string
	splitByCountry []string
	splitRemove    bool
)

// writeSplit：写出分片与清单，返回写出的文件数
func writeSplit(dir string, m search.Manifest, files map[string][]search.Record) (int, error) {
	n := 0
	for name, recs := range files {
		if err := writeJSONFile(filepath.Join(dir, filepath.FromSlash(name)), map[string]any{"index": recs}); err != nil {
			return n, err
		}
		n++
	}
	if err := writeJSONFile(filepath.Join(dir, search.ManifestFile), m); err != nil {
		return n, err
	}
	return n, nil
}

func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

var splitCmd = &cobra.Command{
	Use:   "split-search",
	Short: "Split the flat search index into per-continent files plus a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src := source()
		cat, err := catalog.Load(ctx, src)
		if err != nil {
			return err
		}
		recs, err := search.Load(ctx, src)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("no search records in %s", src)
		}
		by := map[string]bool{}
		for _, c := range splitByCountry {
			by[c] = true
		}
		m, files := search.Split(recs, cat, by)
		out := splitOut
		if out == "" {
			out = cfg.DataDir
		}
		n, err := writeSplit(out, m, files)
		if err != nil {
			return err
		}
		for cont, p := range m.Continents {
			count := p.Count
			if p.SplitByCountry {
				count = p.TotalCount
			}
			logVerbose("%s: %d entries", cont, count)
		}
		if splitRemove {
			if err := os.Remove(filepath.Join(out, search.IndexFile)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		fmt.Printf("wrote %d index files and %s (%d records)\n", n, search.ManifestFile, len(recs))
		return nil
	},
}

func init() {
	splitCmd.Flags().StringVar(&splitOut, "out", "", "Output directory (default: data dir)")
	splitCmd.Flags().StringSliceVar(&splitByCountry, "by-country", []string{"Asia"}, "Continents further split per country")
	splitCmd.Flags().BoolVar(&splitRemove, "remove-flat", false, "Remove the flat search-index.json afterwards")
	rootCmd.AddCommand(splitCmd)
}

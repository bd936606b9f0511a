package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/cipengine/internal/cip/catalog"
)

// loadCatalog returns the built-in catalog, with path merged over it when set.
func loadCatalog(path string) (*catalog.Catalog, error) {
	core := catalog.Core()
	if path == "" {
		return core, nil
	}
	extra, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	return catalog.NewCatalog(&catalog.File{Version: 1, Name: "core", Entries: core.ListAll()}, extra), nil
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the named requests usable with --key",
	}
	cmd.AddCommand(newCatalogListCmd())
	cmd.AddCommand(newCatalogExportCmd())
	return cmd
}

func newCatalogListCmd() *cobra.Command {
	var (
		path     string
		category string
	)
	cmd := &cobra.Command{
		Use:   "list [query]",
		Short: "List catalog entries, optionally matching a query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(path)
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			out := cmd.OutOrStdout()
			for _, e := range cat.Search(query) {
				if category != "" && !strings.EqualFold(string(e.Category), category) {
					continue
				}
				fmt.Fprintf(out, "%-30s %-22s %s\n", e.Key, e.Service, e.Message())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "catalog", "", "Extra catalog YAML merged over the built-in one")
	cmd.Flags().StringVar(&category, "category", "", "Only entries in this category (discovery|configuration|connection|data_access)")
	return cmd
}

func newCatalogExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write the built-in catalog as YAML to start a site catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core := catalog.Core()
			file := &catalog.File{Version: 1, Name: "site", Entries: core.ListAll()}
			if err := catalog.Save(args[0], file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries to %s\n", len(file.Entries), args[0])
			return nil
		},
	}
}

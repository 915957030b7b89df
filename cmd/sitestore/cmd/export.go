package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aweris/sitestore"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all collections as JSON",
	Long:  "Write every known collection to a single JSON document. Assets are referenced by URL, not included.",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	return withSite(func(site *sitestore.Site) error {
		doc, err := site.ExportData(context.Background())
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if output == "" {
			_, err = os.Stdout.Write(doc)
			return err
		}
		if err := os.WriteFile(output, doc, 0644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d collections to %s\n", len(site.Collections()), output)
		return nil
	})
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aweris/sitestore"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import collections from a JSON export",
	Long:  "Replace collections with the arrays found in an export document. Unknown keys are ignored.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	return withSite(func(site *sitestore.Site) error {
		return reportResult(site.ImportData(context.Background(), data))
	})
}

func reportResult(res sitestore.Result) error {
	if len(res.Imported) > 0 {
		fmt.Fprintf(os.Stderr, "Imported: %s\n", strings.Join(res.Imported, ", "))
	}
	if !res.Success {
		return fmt.Errorf("import failed: %s", res.Message)
	}
	if res.Message != "" {
		fmt.Fprintln(os.Stderr, res.Message)
	}
	return nil
}

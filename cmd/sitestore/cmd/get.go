package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aweris/sitestore"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <collection>",
	Short: "Print a collection",
	Long:  "Print the records of a collection as JSON, reading the cloud first and falling back to the local cache and defaults.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	return withSite(func(site *sitestore.Site) error {
		records := site.Get(context.Background(), args[0])

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(records)
	})
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aweris/sitestore"
	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save <collection> [file]",
	Short: "Replace a collection",
	Long:  "Replace a collection with the JSON array read from file, or from stdin when no file is given.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) error {
	key := args[0]

	var (
		data []byte
		err  error
	)
	if len(args) > 1 && args[1] != "-" {
		data, err = os.ReadFile(args[1])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var records sitestore.Records
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("input must be a JSON array: %w", err)
	}

	return withSite(func(site *sitestore.Site) error {
		push, err := site.Save(context.Background(), key, records)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d records to %s\n", len(records), key)

		if !push.Dispatched() {
			fmt.Fprintln(os.Stderr, "Cloud unavailable, saved locally only")
			return nil
		}
		if err := push.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "Cloud sync failed, saved locally only: %v\n", err)
		}
		return nil
	})
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aweris/sitestore"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a full backup to an OCI registry",
	Long:  "Create a full backup and push it to the image ref configured with --backup-ref.",
	Args:  cobra.NoArgs,
	RunE:  runPublish,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the published backup",
	Long:  "Pull the backup published at --backup-ref, write it to disk and optionally restore it.",
	Args:  cobra.NoArgs,
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringP("output", "o", ".", "output file or directory")
	fetchCmd.Flags().Bool("restore", false, "restore the fetched backup")
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(fetchCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	return withSite(func(site *sitestore.Site) error {
		bar, progress := newStatusBar("Publishing")
		digest, err := site.PublishBackup(context.Background(), progress)
		_ = bar.Finish()
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Done. %s@%s\n", site.BackupRef(), digest)
		return nil
	})
}

func runFetch(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	restore, _ := cmd.Flags().GetBool("restore")

	return withSite(func(site *sitestore.Site) error {
		fmt.Fprintf(os.Stderr, "Pulling %s...\n", site.BackupRef())
		b, err := site.PullBackup(context.Background())
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		if err := writeBackup(b, output); err != nil {
			return err
		}
		if restore {
			return restoreArchive(site, b.Archive)
		}
		return nil
	})
}

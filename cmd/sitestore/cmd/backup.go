package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aweris/sitestore"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a full backup archive",
	Long:  "Create a zip archive with every collection and the assets they reference.",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <archive>",
	Short: "Restore a full backup archive",
	Long:  "Import the collections of a backup archive and upload its assets under their original keys.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func init() {
	backupCmd.Flags().StringP("output", "o", ".", "output file or directory")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	return withSite(func(site *sitestore.Site) error {
		bar, progress := newStatusBar("Backing up")
		b, err := site.CreateFullBackup(context.Background(), progress)
		_ = bar.Finish()
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		return writeBackup(b, output)
	})
}

func writeBackup(b *sitestore.Backup, output string) error {
	path := output
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		path = filepath.Join(output, b.FileName())
	}
	if err := os.WriteFile(path, b.Archive, 0644); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Wrote %s (%d assets)\n", path, len(b.Assets))
	if b.Partial() {
		fmt.Fprintf(os.Stderr, "Warning: %d assets could not be downloaded: %s\n", len(b.Skipped), strings.Join(b.Skipped, ", "))
	}
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	archive, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	return withSite(func(site *sitestore.Site) error {
		return restoreArchive(site, archive)
	})
}

func restoreArchive(site *sitestore.Site, archive []byte) error {
	bar, progress := newStatusBar("Restoring")
	res, err := site.RestoreFullBackup(context.Background(), archive, progress)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	return reportResult(res)
}

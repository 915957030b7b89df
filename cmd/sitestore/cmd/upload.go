package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aweris/sitestore"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an asset",
	Long:  "Upload a file to cloud storage and print its URL. Prints a data URL when the cloud is unavailable.",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().String("content-type", "", "content type (default: from extension)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	contentType, _ := cmd.Flags().GetString("content-type")

	return withSite(func(site *sitestore.Site) error {
		url := site.UploadAsset(context.Background(), sitestore.File{
			Name:        filepath.Base(args[0]),
			ContentType: contentType,
			Data:        data,
		})
		fmt.Println(url)
		return nil
	})
}

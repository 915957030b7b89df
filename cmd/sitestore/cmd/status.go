package cmd

import (
	"context"
	"os"
	"strconv"

	"github.com/aweris/sitestore"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage status",
	Long:  "Probe the cloud and print the mode, cache usage and record count of every collection.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSite(func(site *sitestore.Site) error {
		ctx := context.Background()

		counts := table.NewWriter()
		counts.SetOutputMirror(os.Stdout)
		counts.SetStyle(table.StyleRounded)
		counts.Style().Format.Header = text.FormatTitle
		counts.Style().Color.Border = text.Colors{text.FgCyan}
		counts.Style().Color.Separator = text.Colors{text.FgCyan}
		counts.Style().Color.Header = text.Colors{text.FgMagenta}
		counts.AppendHeader(table.Row{"Collection", "Records"})
		for _, key := range site.Collections() {
			counts.AppendRow(table.Row{key, len(site.Get(ctx, key))})
		}

		mode := "cloud"
		if !site.Available() {
			mode = "local only"
		}
		size, err := site.CacheSize(ctx)
		if err != nil {
			return err
		}

		info := table.NewWriter()
		info.SetOutputMirror(os.Stdout)
		info.SetStyle(table.StyleRounded)
		info.Style().Color.Border = text.Colors{text.FgCyan}
		info.Style().Color.Separator = text.Colors{text.FgCyan}
		info.AppendRows([]table.Row{
			{"Mode", mode},
			{"KV endpoint", orNone(viper.GetString("kv_endpoint"))},
			{"File endpoint", orNone(viper.GetString("file_endpoint"))},
			{"Cache driver", viper.GetString("cache_driver")},
			{"Cache size", strconv.FormatInt(size, 10) + " bytes"},
			{"Backup ref", orNone(site.BackupRef())},
		})

		counts.Render()
		info.Render()
		return nil
	})
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aweris/sitestore"
	"github.com/aweris/sitestore/internal/permission"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var canCmd = &cobra.Command{
	Use:   "can <role> [resource] [action]",
	Short: "Check role permissions",
	Long:  "Print the permission matrix of a role, or check a single resource and action. Exits non-zero when denied.",
	Args:  cobra.RangeArgs(1, 3),
	RunE:  runCan,
}

func init() {
	rootCmd.AddCommand(canCmd)
}

func runCan(cmd *cobra.Command, args []string) error {
	return withSite(func(site *sitestore.Site) error {
		role := site.Role(context.Background(), args[0])
		if role == nil {
			return fmt.Errorf("unknown role %q", args[0])
		}

		if len(args) == 3 {
			action := sitestore.Action(args[2])
			if !sitestore.Can(role, args[1], action) {
				return fmt.Errorf("%s may not %s %s", role.ID, action, args[1])
			}
			fmt.Printf("%s may %s %s\n", role.ID, action, args[1])
			return nil
		}

		resources := permission.Resources
		if len(args) == 2 {
			resources = []string{args[1]}
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleRounded)
		t.SetTitle("%s (%s)", role.Name, role.ID)
		t.Style().Format.Header = text.FormatTitle
		t.Style().Color.Border = text.Colors{text.FgCyan}
		t.Style().Color.Separator = text.Colors{text.FgCyan}
		t.Style().Color.Header = text.Colors{text.FgMagenta}

		header := table.Row{"Resource"}
		for _, a := range permission.Actions {
			header = append(header, string(a))
		}
		t.AppendHeader(header)

		for _, res := range resources {
			row := table.Row{res}
			for _, a := range permission.Actions {
				row = append(row, mark(sitestore.Can(role, res, a)))
			}
			t.AppendRow(row)
		}
		t.Render()
		return nil
	})
}

func mark(allowed bool) string {
	if allowed {
		return text.FgGreen.Sprint("yes")
	}
	return text.FgRed.Sprint("no")
}

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/aweris/sitestore"
	"github.com/schollz/progressbar/v3"
)

// newStatusBar renders backup status lines as a spinner on stderr.
func newStatusBar(description string) (*progressbar.ProgressBar, sitestore.ProgressFunc) {
	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription("[cyan]"+description+"[reset]"),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(10*time.Millisecond),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
	return bar, func(status string) {
		bar.Describe("[cyan]" + status + "[reset]")
		_ = bar.Add(1)
	}
}

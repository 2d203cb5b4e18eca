package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show projected changesets",
	Long:  `Display the changesets projected for a remote, newest first.`,
	Run:   runLog,
}

var (
	logOneline bool
	logLimit   int
	logRemote  string
)

func init() {
	logCmd.Flags().BoolVar(&logOneline, "oneline", false, "Show each changeset on a single line")
	logCmd.Flags().IntVarP(&logLimit, "n", "n", 0, "Limit the number of changesets to show")
	logCmd.Flags().StringVar(&logRemote, "remote", "", "Remote to show (defaults to the configured remote)")
}

func runLog(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	remoteID := logRemote
	if remoteID == "" {
		remoteID = c.Config.RemoteID
	}

	records, err := c.Store.ListChangesets(remoteID, logLimit)
	if err != nil {
		exitError("failed to get projection log: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No changesets fetched yet")
		return
	}

	tip, _ := c.Store.GetTip(remoteID)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	for _, rec := range records {
		isTip := tip != nil && tip.CommitHash == rec.CommitHash
		subject := strings.SplitN(strings.TrimSpace(rec.Message), "\n", 2)[0]

		if logOneline {
			yellow.Printf("C%d %s ", rec.ChangesetID, shortID(rec.CommitHash))
			if isTip {
				cyan.Printf("(tfs/%s) ", remoteID)
			}
			fmt.Println(subject)
			continue
		}

		yellow.Printf("changeset C%d commit %s", rec.ChangesetID, rec.CommitHash)
		if isTip {
			cyan.Printf(" (tfs/%s)", remoteID)
		}
		fmt.Println()
		fmt.Printf("Author: %s <%s>\n", rec.AuthorName, rec.AuthorEmail)
		fmt.Printf("Date:   %s (%s)\n", rec.Date.Format("Mon Jan 2 15:04:05 2006"), humanize.Time(rec.Date))
		fmt.Printf("\n    %s\n\n", strings.ReplaceAll(strings.TrimSpace(rec.Message), "\n", "\n    "))
	}
}

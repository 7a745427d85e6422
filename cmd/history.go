package cmd

import (
	"fmt"
	"net/http"
	"strconv"

	"propsync/internal/model"

	"github.com/spf13/cobra"
)

var (
	historyN      int
	historyFailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync history of the running session",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		var histories []model.History
		r := daemonClient().R().
			SetQueryParam("n", strconv.Itoa(historyN)).
			SetSuccessResult(&histories)
		if historyFailed {
			r.SetQueryParam("failed", "true")
		}

		if err := daemonCall(r, http.MethodGet, "/history"); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			if h.Status == model.StatusFailed {
				status = "✗"
			}

			fmt.Printf("%s [%s] %-4s %-8s %s -> %s\n",
				status,
				h.SyncedAt.Format("2006-01-02 15:04:05"),
				h.Direction,
				h.Action,
				h.LocalPath,
				h.RemoteKey,
			)
			if h.ErrMsg != "" {
				fmt.Printf("    %s\n", h.ErrMsg)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "show failed entries only")
	rootCmd.AddCommand(historyCmd)
}

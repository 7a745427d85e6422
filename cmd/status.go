package cmd

import (
	"fmt"
	"net/http"
	"time"

	"propsync/internal/daemon"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View the running sync session",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result daemon.StatusResponse
		r := daemonClient().R().SetSuccessResult(&result)
		if err := daemonCall(r, http.MethodGet, "/status"); err != nil {
			return err
		}

		snap := result.Session
		lastSync := "-"
		if snap.LastSync != nil {
			lastSync = snap.LastSync.Format("2006-01-02 15:04:05")
		}

		fmt.Printf("%-30s %-30s %-8s %-8s %-8s %s\n",
			"ROOT", "TARGET", "SYNCED", "DELETED", "FAILED", "LAST SYNC")
		fmt.Printf("%-30s %-30s %-8d %-8d %-8d %s\n",
			snap.Root, snap.Target, snap.Synced, snap.Deleted, snap.Failed, lastSync)
		fmt.Printf("uptime: %s\n", time.Since(snap.StartedAt).Round(time.Second))
		if snap.LastError != "" {
			fmt.Printf("last error: %s\n", snap.LastError)
		}
		fmt.Printf("history: %d total, %d ok, %d failed\n",
			result.Stats.Total, result.Stats.Success, result.Stats.Failed)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"propsync/internal/config"
	"propsync/internal/db"
	"propsync/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg   *config.Config
	debug bool
	home  string
)

var rootCmd = &cobra.Command{
	Use:           "propsync",
	Short:         "Publish a workspace to a remote property store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logger.Init(debug)

		var err error
		cfg, err = config.Load(home)
		if err != nil {
			return err
		}

		clientCmds := map[string]bool{
			"status": true, "stop": true, "history": true, "serve": true,
		}
		if !clientCmds[cmd.Name()] {
			if err := db.Init(cfg.DBPath); err != nil {
				return err
			}
		}

		return nil
	},
}

// Execute runs the command line. Usage errors exit with -1, everything else
// with 1.
func Execute() {
	c, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}

	if _, ok := errors.AsType[*UsageError](err); ok {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, c.UsageString())
		os.Exit(-1)
	}

	_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func daemonURL(path string) string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.DaemonPort)) + path
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&home, "home", "", "workspace home (default: located from the working directory)")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
}

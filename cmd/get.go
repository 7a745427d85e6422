package cmd

import (
	"fmt"
	"strings"

	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/syncer"

	"github.com/spf13/cobra"
)

var (
	getStrategy string
	getForce    bool
)

var getCmd = &cobra.Command{
	Use:   "get <path>...",
	Short: "Download remote properties into the workspace",
	Args:  usageArgs(cobra.MinimumNArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		strategy := cfg.ConflictStrategy
		if getStrategy != "" {
			strategy = model.ConflictStrategy(strings.ToUpper(getStrategy))
			if !strategy.Valid() {
				return &UsageError{Err: fmt.Errorf("unknown conflict strategy %q", getStrategy)}
			}
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		s, err := openSession(ctx, strategy)
		if err != nil {
			return err
		}
		defer s.Close()

		for _, arg := range args {
			spec, err := s.resolve(arg)
			if err != nil {
				return err
			}

			session, err := s.orch.Get(ctx, spec, syncer.GetOptions{Force: getForce})
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", arg, err)
			}

			fmt.Printf("%s: %s\n", arg, session)
			if session.Cancelled {
				fmt.Println("cancelled")
				break
			}
		}

		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getStrategy, "strategy", "", "conflict strategy: ask, overwrite, skip, newer_wins, backup")
	getCmd.Flags().BoolVarP(&getForce, "force", "f", false, "overwrite local files without asking")
	rootCmd.AddCommand(getCmd)
}

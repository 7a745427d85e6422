package cmd

import (
	"fmt"

	"propsync/internal/logger"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <path>...",
	Short: "Delete remote properties; local files are kept",
	Args:  usageArgs(cobra.MinimumNArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		s, err := openSession(ctx, cfg.ConflictStrategy)
		if err != nil {
			return err
		}
		defer s.Close()

		for _, arg := range args {
			spec, err := s.resolve(arg)
			if err != nil {
				return err
			}

			session, err := s.orch.Delete(ctx, spec)
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", arg, err)
			}

			fmt.Printf("%s: %s\n", arg, session)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

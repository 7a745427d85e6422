package cmd

import (
	"fmt"

	"propsync/internal/logger"
	"propsync/internal/syncer"

	"github.com/spf13/cobra"
)

var publishForce bool

var publishCmd = &cobra.Command{
	Use:   "publish <path>...",
	Short: "Publish changed files to the remote",
	Long: `Publish every file matching the given paths whose modification time
differs from the last synchronized state. Paths may contain * and ** and are
resolved against the workspace src folder.`,
	Args: usageArgs(cobra.MinimumNArgs(1)),
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

			s.spinner.Start("publishing " + arg)
			session, err := s.orch.Publish(ctx, spec, syncer.PublishOptions{Force: publishForce})
			s.spinner.Stop()
			if err != nil {
				return fmt.Errorf("failed to publish %s: %w", arg, err)
			}

			fmt.Printf("%s: %s\n", arg, session)
		}

		return nil
	},
}

func init() {
	publishCmd.Flags().BoolVarP(&publishForce, "force", "f", false, "publish files even when unchanged")
	rootCmd.AddCommand(publishCmd)
}

package cmd

import (
	"fmt"
	"time"

	"propsync/internal/logger"
	"propsync/internal/syncer"

	"github.com/spf13/cobra"
)

var (
	importBatchSize int
	importSleep     time.Duration
)

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Bulk load files into the remote in batches",
	Long: `Import sends every file matching the path, changed or not, as bulk
puts. The change registry is neither read nor written.`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		s, err := openSession(ctx, cfg.ConflictStrategy)
		if err != nil {
			return err
		}
		defer s.Close()

		spec, err := s.resolve(args[0])
		if err != nil {
			return err
		}

		opts := syncer.ImportOptions{BatchSize: cfg.BatchSize, Sleep: cfg.BatchSleep}
		if cmd.Flags().Changed("batch-size") {
			opts.BatchSize = importBatchSize
		}
		if cmd.Flags().Changed("sleep") {
			opts.Sleep = importSleep
		}
		if opts.BatchSize <= 0 {
			return &UsageError{Err: fmt.Errorf("--batch-size must be positive")}
		}

		s.spinner.Start("importing " + args[0])
		session, err := s.orch.Import(ctx, spec, opts)
		s.spinner.Stop()
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", args[0], err)
		}

		fmt.Printf("%s: %s\n", args[0], session)
		return nil
	},
}

func init() {
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 0, "files per batch (default from config)")
	importCmd.Flags().DurationVar(&importSleep, "sleep", 0, "pause between batches (default from config)")
	rootCmd.AddCommand(importCmd)
}

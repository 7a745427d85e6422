package cmd

import (
	"context"
	"path/filepath"
	"time"

	"propsync/internal/config"
	"propsync/internal/db"
	"propsync/internal/logger"
	"propsync/internal/repository"
	"propsync/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr  string
	serveDB    string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a development property server",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		dbPath := serveDB
		if dbPath == "" {
			dbPath = filepath.Join(cfg.Home, config.DirName, "properties.db")
		}

		conn, err := db.Open(dbPath, repository.Models()...)
		if err != nil {
			return err
		}

		srv := server.New(repository.NewPropertyRepository(conn), serveAddr, serveToken)
		srv.Start()

		logger.Log.Info("propsync server ready",
			zap.String("addr", serveAddr),
			zap.String("db", dbPath))

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "property database (default <home>/.propsync/properties.db)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "bearer token required from clients")
	rootCmd.AddCommand(serveCmd)
}

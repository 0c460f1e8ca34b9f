package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mgmu/hortus/internal/config"
	"github.com/mgmu/hortus/internal/database"
	"github.com/mgmu/hortus/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "hortus",
	Short: "Keep track of garden plants and their harvests",
	Long: `Hortus is a small web application recording the plants of a garden
and the harvests logged against each of them.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default hortus.toml in . or /etc/hortus)")
	rootCmd.PersistentFlags().String("store", "", "document store: mongo, postgres or bolt")
}

// environment is what every command needs: the configuration, a logger and a
// connected database.
type environment struct {
	cfg *config.Config
	log *zap.Logger
	db  database.Database
}

func setup(ctx context.Context, cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("app", cfg.App.Name))

	db, err := database.Open(cfg, log)
	if err != nil {
		logger.Sync(log)
		return nil, err
	}
	if err := db.Connect(ctx); err != nil {
		logger.Sync(log)
		return nil, fmt.Errorf("connecting to the %s store: %w", cfg.Store.Driver, err)
	}
	log.Info("Database connected", zap.String("driver", cfg.Store.Driver))
	return &environment{cfg, log, db}, nil
}

func (e *environment) close(ctx context.Context) {
	if err := e.db.Close(ctx); err != nil {
		e.log.Error("Error closing database", zap.Error(err))
	}
	logger.Sync(e.log)
}

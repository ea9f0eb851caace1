package main

import (
	"encoding/json"
	"fmt"
	"os"

	"cluster-intelligence-be/internal/bootstrap"
	"cluster-intelligence-be/internal/config"
	"cluster-intelligence-be/pkg/database"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	userFlag   string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:           "clusterctl",
	Short:         "Operate the cluster intelligence engine",
	Long:          `Inspect cluster health, rebalance topology and run content clustering for a single user.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User id whose clusters are operated on")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print raw JSON instead of a summary")
}

func userID() (uuid.UUID, error) {
	if userFlag == "" {
		return uuid.Nil, fmt.Errorf("--user is required")
	}
	id, err := uuid.Parse(userFlag)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --user: %w", err)
	}
	return id, nil
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.Store != "postgres" && cfg.VectorStore.Provider != "pgvector" {
		return nil, nil
	}
	opts := database.DefaultPoolOptions()
	opts.MaxOpenConns = 4
	opts.Quiet = true
	return database.Open(cfg.Database.Connection, opts)
}

// newContainer builds the engine without starting the health consumer. With
// the NATS bus a running server refreshes health for CLI mutations.
func newContainer() (*bootstrap.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return bootstrap.NewContainer(db, cfg), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

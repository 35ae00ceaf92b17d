package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/db"
	"github.com/regcheck/backend/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the RegCheck database",
	Long:  `Loads initial users and the regulatory passage corpus into the database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		logger.InitializeWithWriter(os.Stderr, logrus.InfoLevel)

		cfg = config.Load()
		db.Connect(cfg.Database.DSN())
		if cfg.Vector.Backend == "pgvector" {
			if err := db.EnableVector(); err != nil {
				return err
			}
		}
		return db.AutoMigrate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = db.Close()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

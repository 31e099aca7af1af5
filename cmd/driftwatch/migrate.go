package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/driftwatch/internal/config"
	"github.com/nextlevelbuilder/driftwatch/internal/store/sqlite"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the embedded SQLite schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := sqlite.Open(cfg.Storage.SQLitePath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer db.Close()
			fmt.Printf("schema up to date at %s\n", cfg.Storage.SQLitePath)
			return nil
		},
	}
}

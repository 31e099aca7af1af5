package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/driftwatch/internal/config"
	"github.com/nextlevelbuilder/driftwatch/internal/store/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and storage health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("driftwatch doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (using defaults, file not found)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Storage:")
	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		fmt.Printf("    %-18s OPEN FAILED (%s)\n", "SQLite:", err)
	} else {
		fmt.Printf("    %-18s %s (OK)\n", "SQLite:", cfg.Storage.SQLitePath)
		db.Close()
	}

	fmt.Println()
	fmt.Println("  Tick cadence:")
	fmt.Printf("    %-18s %s\n", "Main tick:", cfg.Tick.Interval)
	fmt.Printf("    %-18s %s\n", "Maintenance:", cfg.Tick.MaintenanceInterval)
	if cfg.Tick.MaintenanceCron != "" {
		fmt.Printf("    %-18s %s\n", "Maintenance cron:", cfg.Tick.MaintenanceCron)
	}
}

package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/herald/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("herald doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Provider:")
	name := cfg.Provider.Name
	if name == "" {
		name = "anthropic"
	}
	fmt.Printf("    %-12s %s\n", "Name:", name)
	if cfg.Provider.APIKey != "" {
		fmt.Printf("    %-12s configured\n", "API key:")
	} else {
		fmt.Printf("    %-12s MISSING (set HERALD_API_KEY)\n", "API key:")
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsPostgres() {
		fmt.Printf("    %-12s postgres\n", "Backend:")
		db, dbErr := sql.Open("pgx", cfg.Database.PostgresDSN)
		if dbErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", dbErr)
		} else if pingErr := db.Ping(); pingErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", pingErr)
			db.Close()
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
			db.Close()
		}
	} else {
		path := cfg.Database.SQLitePath
		if path == "" {
			path = "herald.db"
		}
		fmt.Printf("    %-12s sqlite\n", "Backend:")
		fmt.Printf("    %-12s %s\n", "Path:", path)
	}

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")
	checkChannel("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")

	fmt.Println()
	fmt.Println("  Delivery:")
	checkDelivery("Email list", cfg.Delivery.Email.Host != "", cfg.Delivery.Email.Password != "")
	checkDelivery("Board", cfg.Delivery.Board.URL != "", cfg.Delivery.Board.Token != "")
	fmt.Printf("    %-16s always available (chat surface)\n", "Direct message:")
}

func checkChannel(name string, enabled, hasToken bool) {
	switch {
	case enabled && hasToken:
		fmt.Printf("    %-16s enabled\n", name+":")
	case enabled:
		fmt.Printf("    %-16s enabled but NO TOKEN\n", name+":")
	default:
		fmt.Printf("    %-16s disabled\n", name+":")
	}
}

func checkDelivery(name string, configured, hasSecret bool) {
	switch {
	case configured && hasSecret:
		fmt.Printf("    %-16s configured\n", name+":")
	case configured:
		fmt.Printf("    %-16s configured but NO SECRET\n", name+":")
	default:
		fmt.Printf("    %-16s not configured\n", name+":")
	}
}

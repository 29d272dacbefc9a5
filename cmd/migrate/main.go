package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/db"
)

func main() {
	dirFlag := flag.String("dir", "migrations", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.CoreDatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "CORE_DATABASE_URL is required")
		os.Exit(1)
	}

	if err := db.RunMigrations(cfg.CoreDatabaseURL, *dirFlag); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}

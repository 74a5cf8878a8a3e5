// Command repair scans the chat database for inconsistencies left behind by
// crashes: message buckets whose session record is gone, and sessions with an
// empty display name. Run with -dry-run to report without mutating.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/levelup-hq/levelup/internal/services"
)

type repairConfig struct {
	ChatDBPath string `env:"CHAT_DB_PATH,notEmpty"`
}

func run() error {
	envFile := flag.String("env", "", "path to an env file to load before reading the environment")
	dryRun := flag.Bool("dry-run", false, "report inconsistencies without fixing them")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", *envFile, err)
		}
	}

	var cfg repairConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	store, err := services.NewBoltDB(cfg.ChatDBPath)
	if err != nil {
		return fmt.Errorf("failed to open chat db: %w", err)
	}
	defer store.Close()

	stats, err := store.Repair(*dryRun)
	if err != nil {
		return err
	}

	verb := "fixed"
	if *dryRun {
		verb = "found"
	}
	log.Printf("%s %d orphaned message buckets, %d unnamed sessions",
		verb, stats.OrphanedBucketsRemoved, stats.SessionsRenamed)
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

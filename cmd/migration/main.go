package main

import (
	"flag"
	"os"
	"server/cmd/migration/initialize"
	"server/cmd/migration/seed"
	"server/config"
	"server/internal/database"
	"server/internal/logger"
)

func main() {
	log := logger.New("migration")

	withSeed := flag.Bool("seed", false, "seed development data after migrating")
	flag.Parse()

	cfg, err := config.InitConfig()
	if err != nil {
		log.Er("failed to initialize config", err)
		os.Exit(1)
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Er("failed to create database", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := initialize.InitializeTables(db.SQL, cfg, log); err != nil {
		log.Er("failed to initialize tables", err)
		os.Exit(1)
	}

	if *withSeed {
		if err := seed.Seed(db.SQL, cfg, log); err != nil {
			log.Er("failed to seed database", err)
			os.Exit(1)
		}
	}
}

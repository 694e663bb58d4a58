package main

import (
	"log"

	"github.com/introweave/matchmaker/internal/config"
	"github.com/introweave/matchmaker/internal/db"
)

func main() {
	cfg := config.New()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if err := db.SeedDemoData(database); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}

	log.Println("Seeding complete.")
}

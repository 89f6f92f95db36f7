// Package main implements the entry point for the enrichment daemon,
// which runs background knowledge-enrichment tasks under resource budgets
// with crash recovery and an operational HTTP surface.
package main

import (
	"context"
	"flag"
	"log"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if *migrateCmd != "" {
		if err := app.runMigrationCommand(*migrateCmd); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	if err := app.run(context.Background()); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

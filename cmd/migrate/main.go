package main

import (
	"flag"
	"fmt"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/postgres"
)

// main provisions this core's five tables. There is no step-by-step
// migration history here, just idempotent CREATE TABLE/INDEX IF NOT
// EXISTS statements, so re-running it against an already-provisioned
// database is a no-op.
func main() {
	dryRun := flag.Bool("dry-run", false, "print the schema without executing it")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	log, err := logger.NewLogger()
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		return
	}

	if *dryRun {
		fmt.Println(postgres.Schema)
		return
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	log.Info("running database migrations...")
	if _, err := db.Exec(postgres.Schema); err != nil {
		log.Fatalw("failed to apply schema", "error", err)
	}
	log.Info("migration completed successfully")
}

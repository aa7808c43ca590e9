// Command migrate applies the embedded Postgres schema migrations.
package main

import (
	"context"
	"fmt"
	"os"

	"ms-marketplace/internal/config"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/database/migrations"
	"ms-marketplace/internal/logger"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		down    = flag.Bool("down", false, "roll back every migration")
		to      = flag.Uint("to", 0, "migrate up or down to this version")
		version = flag.Bool("version", false, "print the applied version and exit")
		dsn     = flag.String("dsn", "", "database DSN (defaults to DATABASE_DSN)")
	)
	flag.Parse()

	log := logger.NewLogger("migrate")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}

	db, err := database.Open(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	if !database.IsPostgres(db) {
		log.Info("MIGRATE", "SQLite target, creating schema from models")
		if err := database.CreateSchema(context.Background(), db); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		return
	}

	runner := migrations.NewRunner(db.DB, log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATE", err.Error())
		}
	}()
	switch {
	case *version:
		v, dirty, err := runner.Version()
		if err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		fmt.Fprintf(os.Stdout, "version %d dirty=%t\n", v, dirty)
	case *down:
		err = runner.Down()
	case flag.CommandLine.Changed("to"):
		err = runner.To(*to)
	default:
		err = runner.Up()
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
}

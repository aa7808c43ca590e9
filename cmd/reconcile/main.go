// Command reconcile reports ticket groups whose available seats disagree
// with their live bookings. With --fix it corrects them; with --follow it
// also repairs lots named by reconciliation incidents as they arrive.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	booking_db "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/database"
	inventory_db "ms-marketplace/internal/inventory/db"
	"ms-marketplace/internal/kafka"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/reconcile"
	"ms-marketplace/internal/reservation"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		fix    = flag.Bool("fix", false, "correct drifting ticket groups")
		follow = flag.Bool("follow", false, "keep consuming reconciliation incidents from Kafka")
		settle = flag.Duration("settle", 0, "gap between the two scans of a fix (defaults to RECONCILE_SETTLE_SECONDS)")
		group  = flag.StringSlice("ticket-group", nil, "limit a fix to these ticket group ids")
	)
	flag.Parse()

	log := logger.NewLogger("reconcile")
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	if flag.CommandLine.Changed("settle") {
		cfg.Reconcile.Settle = *settle
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	inventoryStore := &inventory_db.DB{Bun: db}
	engine := reservation.NewEngine(db, log, cfg.Reservation.MaxSeatsPerBooking)
	rec := reconcile.NewReconciler(inventoryStore, &booking_db.DB{Bun: db}, engine, log, cfg.Reconcile.Settle)

	var drifts []reconcile.Drift
	if *fix {
		drifts, err = rec.Fix(ctx, *group...)
	} else {
		drifts, err = rec.Scan(ctx)
	}
	if err != nil {
		log.Fatal("RECONCILIATION", err.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(drifts); err != nil {
		log.Error("RECONCILIATION", fmt.Sprintf("Failed to write report: %v", err))
	}
	log.Info("RECONCILIATION", fmt.Sprintf("%d ticket groups drifting", len(drifts)))

	if !*follow {
		return
	}
	consumer := kafka.NewReconciliationConsumer(cfg.Kafka.Brokers, cfg.Reconcile.GroupID, log)
	defer consumer.Close()
	if err := consumer.Run(ctx, rec.HandleEvent); err != nil {
		log.Fatal("KAFKA", err.Error())
	}
	log.Info("RECONCILIATION", "Stopped following incidents")
}

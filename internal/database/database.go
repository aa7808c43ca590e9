package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-marketplace/internal/config"
	"ms-marketplace/internal/database/migrations"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

const maxConnectAttempts = 5

// Open connects to Postgres or SQLite depending on the DSN scheme, retrying
// the initial ping a few times while the database container comes up.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	driver, dsn := driverFor(cfg.DSN)

	var sqldb *sql.DB
	var err error
	for i := 0; i < maxConnectAttempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to %s (attempt %d/%d)", driver, i+1, maxConnectAttempts))
		sqldb, err = sql.Open(driver, dsn)
		if err == nil {
			if err = sqldb.PingContext(ctx); err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect: %v", err))
		if i < maxConnectAttempts-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect after %d attempts: %w", maxConnectAttempts, err)
	}

	var db *bun.DB
	if driver == "postgres" {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		// SQLite allows a single writer.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	log.Info("DATABASE", fmt.Sprintf("%s connection successful", driver))
	return db, nil
}

// Prepare brings the schema up to date: SQL migrations on Postgres, model
// driven tables on SQLite.
func Prepare(ctx context.Context, db *bun.DB, log *logger.Logger) error {
	if !IsPostgres(db) {
		if err := CreateSchema(ctx, db); err != nil {
			return err
		}
		log.LogDatabase("CREATE", "schema", fmt.Sprintf("%d tables ready on SQLite", len(schemaModels)))
		return nil
	}
	runner := migrations.NewRunner(db.DB, log)
	if err := runner.Up(); err != nil {
		return err
	}
	log.LogDatabase("MIGRATE", "schema_migrations", "Postgres schema is current")
	return nil
}

// IsPostgres reports whether db speaks the Postgres dialect.
func IsPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

func driverFor(dsn string) (string, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqliteshim.ShimName, strings.TrimPrefix(dsn, "sqlite://")
	default:
		return sqliteshim.ShimName, dsn
	}
}

// OpenMemory returns an in-memory SQLite database with the full schema.
// Used for local runs and by package tests.
func OpenMemory(ctx context.Context) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var schemaModels = []interface{}{
	(*models.TicketGroup)(nil),
	(*models.TicketBooking)(nil),
	(*models.SalesBooking)(nil),
	(*models.LedgerEntry)(nil),
	(*models.LedgerAllocation)(nil),
	(*models.MiscExpense)(nil),
	(*models.AgentPayment)(nil),
}

type index struct {
	model   interface{}
	name    string
	columns []string
}

var schemaIndexes = []index{
	{(*models.TicketGroup)(nil), "idx_ticket_groups_agency", []string{"agency_id"}},
	{(*models.TicketGroup)(nil), "idx_ticket_groups_status_date", []string{"status", "date"}},
	{(*models.TicketBooking)(nil), "idx_ticket_bookings_buyer", []string{"buyer_agency_id", "created_at"}},
	{(*models.TicketBooking)(nil), "idx_ticket_bookings_seller", []string{"seller_agency_id", "created_at"}},
	{(*models.TicketBooking)(nil), "idx_ticket_bookings_group", []string{"ticket_group_id", "status"}},
	{(*models.SalesBooking)(nil), "idx_sales_bookings_customer", []string{"customer_id", "created_at"}},
	{(*models.LedgerEntry)(nil), "idx_ledger_entries_agency_date", []string{"agency_id", "date"}},
	{(*models.LedgerAllocation)(nil), "idx_ledger_allocations_entry", []string{"entry_id"}},
}

// CreateSchema builds tables straight from the models. Postgres deployments
// use the SQL migrations instead.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, m := range schemaModels {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	for _, idx := range schemaIndexes {
		if _, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// IsUniqueViolation reports a unique constraint failure on either driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"scielocore/internal/config"
	"scielocore/internal/repository/postgres"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before creating the schema (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema (kept for script compatibility; this command never writes data)")
	flag.Parse()
	_ = schemaOnly

	// Load .env file
	_ = godotenv.Load()

	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("BLOCKED: Cannot run --drop-tables in production environment")
	}

	ctx := context.Background()
	tables := postgres.NewTableNames(cfg.TablePrefix)

	log.Printf("Setting up schema (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	idpPool, err := postgres.CreateConnectionPool(ctx, cfg.IDPDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to id provider database: %v", err)
	}
	defer idpPool.Close()

	if *dropTables {
		log.Println("Dropping id provider tables...")
		if err := postgres.DropDocumentTables(ctx, idpPool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}
	if err := postgres.EnsureDocumentSchema(ctx, idpPool, tables, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to create id provider schema: %v", err)
	}
	log.Println("Id provider schema ready")

	if cfg.MigrationDatabaseURL == "" {
		log.Println("MIGRATION_DATABASE_URL not set, skipping migration schema")
		return
	}

	migrPool, err := postgres.CreateConnectionPool(ctx, cfg.MigrationDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to migration database: %v", err)
	}
	defer migrPool.Close()

	if *dropTables {
		log.Println("Dropping migration tables...")
		if err := postgres.DropMigrationTables(ctx, migrPool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}
	if err := postgres.EnsureMigrationSchema(ctx, migrPool, tables, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to create migration schema: %v", err)
	}
	log.Println("Migration schema ready")
}

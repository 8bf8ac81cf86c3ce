package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"clinic-core/common/database"
	"clinic-core/internal/config"
	"clinic-core/internal/repository"
	"clinic-core/internal/service"

	"github.com/lib/pq"
)

// apply-migration runs a SQL file against the configured database. With
// -schema the statements run inside that tenant schema, creating it first.
//
//	apply-migration migrations/001_public.sql
//	apply-migration -schema acme migrations/002_tenant.sql
func main() {
	schema := flag.String("schema", "", "tenant schema to apply the migration in")
	flag.Parse()
	if flag.NArg() < 1 {
		log.Fatalf("Usage: %s [-schema slug] <migration_file.sql>", os.Args[0])
	}

	sqlContent, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read migration file: %v", err)
	}

	if *schema != "" && !service.IsValidTenantSlug(*schema) {
		log.Fatalf("Invalid schema name %q", *schema)
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()
	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)

	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	if *schema != "" {
		mustExec(tx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(*schema))
		mustExec(tx, strings.Replace(repository.SearchPathStatement(*schema), "SET ", "SET LOCAL ", 1))
		fmt.Printf("Applying into schema: %s\n\n", *schema)
	}

	statements := splitStatements(string(sqlContent))
	for i, stmt := range statements {
		fmt.Printf("Executing statement %d/%d...\n", i+1, len(statements))
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			log.Fatalf("Failed to execute statement %d: %v\nStatement: %s", i+1, err, stmt[:min(100, len(stmt))])
		}
	}
	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit migration: %v", err)
	}
	fmt.Println("Migration completed successfully")
}

func mustExec(tx *sql.Tx, stmt string) {
	if _, err := tx.Exec(stmt); err != nil {
		_ = tx.Rollback()
		log.Fatalf("Failed to execute %q: %v", stmt, err)
	}
}

// splitStatements splits on semicolons, dropping empty statements and
// comment-only chunks. Migrations must not use semicolons inside strings
// or function bodies.
func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.TrimSpace(strings.Join(lines, "\n")))
		}
	}
	return out
}

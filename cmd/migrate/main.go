package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/config"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/db"
)

const migrationsDir = "migrations"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		log.Fatalf("ensure migration ledger failed: %v", err)
	}

	pending, err := pendingMigrations(ctx, pool)
	if err != nil {
		log.Fatalf("list migrations failed: %v", err)
	}
	if len(pending) == 0 {
		log.Println("repayment schema is up to date")
		return
	}

	for _, file := range pending {
		if err := apply(ctx, pool, file); err != nil {
			log.Fatalf("apply %s failed: %v", file, err)
		}
		log.Printf("applied %s", file)
	}
}

// pendingMigrations returns the .sql files under migrations/ that are not in
// the ledger yet, in lexical order.
func pendingMigrations(ctx context.Context, pool *db.Pool) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, err
	}

	applied := make(map[string]bool)
	rows, err := pool.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pending []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		file := filepath.Join(migrationsDir, e.Name())
		if !applied[file] {
			pending = append(pending, file)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// apply runs one migration file and records it in the ledger inside a single
// transaction, so a failing migration leaves no half-applied schema behind.
func apply(ctx context.Context, pool *db.Pool, file string) error {
	stmts, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(stmts)) == "" {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, string(stmts)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// migrationLockID serializes migrations across server instances sharing a database.
const migrationLockID = 7316001

// NewPostgresPool connects to the job database and verifies it answers. Job
// rows are small and writes are one per transition, so the pool stays small.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping job database: %w", err)
	}
	return pool, nil
}

type migration struct {
	version int
	file    string
}

// RunMigrations applies every NNN_*.sql file in migrationsDir that is not yet
// recorded in schema_migrations. Each file runs in its own transaction under
// an advisory lock, so concurrent instances apply it once.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string, log logrus.FieldLogger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir %s: %w", migrationsDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	for _, m := range sortedMigrations(names) {
		applied, err := applyMigration(ctx, pool, migrationsDir, m)
		if err != nil {
			return err
		}
		if applied {
			log.WithFields(logrus.Fields{"version": m.version, "file": m.file}).Info("applied migration")
		}
	}
	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, dir string, m migration) (bool, error) {
	sql, err := os.ReadFile(filepath.Join(dir, m.file))
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", m.file, err)
	}

	applied := false
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", m.version).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("migration %03d (%s): %w", m.version, m.file, err)
	}
	return applied, nil
}

// sortedMigrations keeps recognizable migration files in version order.
func sortedMigrations(names []string) []migration {
	out := make([]migration, 0, len(names))
	for _, name := range names {
		if v := migrationVersion(name); v > 0 {
			out = append(out, migration{version: v, file: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out
}

// migrationVersion parses "001_jobs.sql" as 1. Anything else is 0.
func migrationVersion(name string) int {
	if !strings.HasSuffix(name, ".sql") || len(name) < 4 || name[3] != '_' {
		return 0
	}
	version, err := strconv.Atoi(name[:3])
	if err != nil || version < 0 {
		return 0
	}
	return version
}

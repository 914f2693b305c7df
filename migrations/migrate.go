package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

//go:embed *.sql
var files embed.FS

const historyTable = "schema_migrations_school_timetable"

type migration struct {
	name string
	sql  string
}

// Up applies the embedded migrations in file name order. Each one runs in
// its own transaction and is recorded in the history table.
func Up(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return errors.New("migrations: no database")
	}

	pending, err := load()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+historyTable+` (
	filename   text PRIMARY KEY,
	applied_at timestamptz NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("create %s: %w", historyTable, err)
	}

	var done []string
	if err := db.SelectContext(ctx, &done, `SELECT filename FROM `+historyTable); err != nil {
		return fmt.Errorf("read %s: %w", historyTable, err)
	}
	applied := make(map[string]bool, len(done))
	for _, name := range done {
		applied[name] = true
	}

	for _, m := range pending {
		if applied[m.name] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

// Names lists the embedded migrations in apply order
func Names() ([]string, error) {
	all, err := load()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(all))
	for i, m := range all {
		names[i] = m.name
	}
	return names, nil
}

// load reads the embedded .sql files; fs.ReadDir returns them sorted by name
func load() ([]migration, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var all []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := files.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		all = append(all, migration{name: entry.Name(), sql: string(data)})
	}
	return all, nil
}

func apply(ctx context.Context, db *sqlx.DB, m migration) error {
	const record = `INSERT INTO ` + historyTable + ` (filename) VALUES ($1) ON CONFLICT (filename) DO NOTHING`

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.name, err)
	}

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		_ = tx.Rollback()
		if !alreadyExists(err) {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		// Schema created outside this runner: only record it
		if _, err := db.ExecContext(ctx, record, m.name); err != nil {
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, record, m.name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", m.name, err)
	}
	return tx.Commit()
}

// alreadyExists reports duplicate table, object or column errors
func alreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "42P07" || pgErr.Code == "42710" || pgErr.Code == "42701"
}

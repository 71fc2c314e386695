package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"routeledger/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one goose-formatted schema file.
type Migration struct {
	Version int64
	Name    string
	Up      string
}

// Migrations returns the embedded migrations ordered by version.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		raw, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, err
		}
		m, err := parseMigration(e.Name(), string(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return int(a.Version - b.Version) })
	return out, nil
}

func parseMigration(name, body string) (Migration, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return Migration{}, fmt.Errorf("migration %s: missing version prefix", name)
	}
	version, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return Migration{}, fmt.Errorf("migration %s: %w", name, err)
	}
	_, up, ok := strings.Cut(body, "-- +goose Up")
	if !ok {
		return Migration{}, fmt.Errorf("migration %s: missing goose Up marker", name)
	}
	up, _, _ = strings.Cut(up, "-- +goose Down")
	return Migration{Version: version, Name: name, Up: strings.TrimSpace(up)}, nil
}

// Migrate applies pending migrations, each in its own transaction.
// Applied versions are tracked in goose's version table so the goose CLI
// sees the same state.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS goose_db_version (
		id SERIAL PRIMARY KEY,
		version_id BIGINT NOT NULL,
		is_applied BOOLEAN NOT NULL,
		tstamp TIMESTAMP DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	var current int64
	err = pool.QueryRow(ctx, `SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied`).Scan(&current)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	txm := NewTxManager(pool)
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			q := txm.GetQuerier(ctx)
			if _, err := q.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := q.Exec(ctx, `INSERT INTO goose_db_version (version_id, is_applied) VALUES ($1, TRUE)`, m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", m.Name, err)
		}
		logger.Info(ctx, "migration applied", "version", m.Version, "name", m.Name)
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
)

const (
	migrationAttempts    = 3
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

// Transient CockroachDB/PostgreSQL failures worth another attempt.
var retryableMigrationCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// migrator applies the *.sql files of dir in lexical order, recording each in
// schema_migrations.
type migrator struct {
	conn   *pgxpool.Conn
	dir    string
	out    io.Writer
	logger *slog.Logger
}

func runMigrations(ctx context.Context, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	if command != "up" && command != "status" {
		return fmt.Errorf("unknown migrate command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, err := resolveDir(cfg.MigrationDir)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	m := migrator{conn: conn, dir: dir, out: os.Stdout, logger: migrationLogger(cfg)}
	if command == "status" {
		return m.status(ctx)
	}
	return m.up(ctx)
}

func migrationLogger(cfg config.Config) *slog.Logger {
	return slog.Default().With("component", "migrate", "dir", cfg.MigrationDir)
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m migrator) applied(ctx context.Context) (map[string]bool, error) {
	if _, err := m.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
                version TEXT PRIMARY KEY,
                applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	done := make(map[string]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}

func (m migrator) status(ctx context.Context) error {
	names, err := migrationFiles(m.dir)
	if err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		mark := " "
		if done[name] {
			mark = "x"
		}
		fmt.Fprintf(m.out, "[%s] %s\n", mark, name)
	}
	return nil
}

func (m migrator) up(ctx context.Context) error {
	names, err := migrationFiles(m.dir)
	if err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for _, name := range names {
		if done[name] {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := m.applyWithRetry(ctx, name, string(contents)); err != nil {
			return err
		}
		pending++
		fmt.Fprintf(m.out, "applied migration %s\n", name)
	}

	if pending == 0 {
		fmt.Fprintln(m.out, "schema is up to date")
	}
	return nil
}

func (m migrator) applyWithRetry(ctx context.Context, name, contents string) error {
	var err error
	for attempt := 1; attempt <= migrationAttempts; attempt++ {
		if attempt > 1 {
			if waitErr := sleepCtx(ctx, migrationBackoff(attempt)); waitErr != nil {
				return waitErr
			}
		}

		err = pgx.BeginTxFunc(ctx, m.conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, contents); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			return nil
		})
		if err == nil || !isTransient(err) {
			return err
		}
		m.logger.Warn("transient migration failure", "migration", name, "attempt", attempt, "error", err)
	}
	return fmt.Errorf("migration %s failed after %d attempts: %w", name, migrationAttempts, err)
}

// migrationBackoff doubles from migrationBaseBackoff, capped at migrationMaxBackoff.
func migrationBackoff(attempt int) time.Duration {
	backoff := migrationBaseBackoff << (attempt - 2)
	if backoff <= 0 || backoff > migrationMaxBackoff {
		return migrationMaxBackoff
	}
	return backoff
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && retryableMigrationCodes[pgErr.Code]
}

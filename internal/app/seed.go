package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
)

// seedFile maps a seed name such as "dev" to dev_seed.sql; names ending in
// .sql are used as is.
func seedFile(name string) string {
	if strings.HasSuffix(name, ".sql") {
		return name
	}
	return name + "_seed.sql"
}

func runSeed(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return errors.New("expected seed name (e.g. dev)")
	}
	name := seedFile(args[0])

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, err := resolveDir(cfg.SeedDir)
	if err != nil {
		return err
	}

	contents, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", name, err)
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

	if _, err := conn.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply seed %s: %w", name, err)
	}

	fmt.Printf("applied seed %s\n", name)
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrate applies pending schema migrations. An empty dir uses the
// migrations compiled into the binary.
func (r *Repository) Migrate(ctx context.Context, dir string, logger *slog.Logger) error {
	var fsys fs.FS = embeddedMigrations
	path := "migrations"
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("migrations dir: %w", err)
		}
		fsys = os.DirFS(dir)
		path = "."
	}

	// goose speaks database/sql; share the pool's connections.
	db := stdlib.OpenDBFromPool(r.pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close migration handle", slog.String("error", err.Error()))
		}
	}(db)

	goose.SetBaseFS(fsys)
	goose.SetLogger(gooseLogger{logger: logger.With("component", "migrate")})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, path); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

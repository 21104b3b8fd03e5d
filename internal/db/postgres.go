package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"xcam-worker-go/internal/config"
)

// Connect opens the worker database, verifies connectivity and applies the
// schema migrations.
func Connect(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	log.Info().Str("database", cfg.PostgresDB).Msg("postgres connection established")
	return conn, nil
}

func runMigrations(conn *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS xcam_actions (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			additions TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_xcam_actions_status ON xcam_actions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_xcam_actions_created_at ON xcam_actions(created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS xcam_cameras (
			id BIGSERIAL PRIMARY KEY,
			mac_address TEXT NOT NULL UNIQUE,
			ip_address TEXT NOT NULL,
			ip_type TEXT NOT NULL DEFAULT 'dynamic',
			username TEXT NOT NULL DEFAULT 'admin',
			password TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
	}

	for i, migration := range migrations {
		if _, err := conn.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

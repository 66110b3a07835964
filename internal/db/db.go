package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// ChangeChannel is the NOTIFY channel written by the documents trigger. The
// payload is the collection path of the changed document.
const ChangeChannel = "docstore_changes"

// Connect opens the Postgres connection and runs migrations.
func Connect(dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return db, nil
}

// Migrations returns the schema statements in execution order.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
            id TEXT NOT NULL,
            collection TEXT NOT NULL,
            unique_key TEXT,
            fields JSONB NOT NULL DEFAULT '{}'::jsonb,
            seq BIGSERIAL,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY (collection, id),
            UNIQUE (collection, unique_key)
        );`,
		`CREATE INDEX IF NOT EXISTS documents_fields_idx ON documents USING GIN (fields jsonb_path_ops);`,
		`CREATE OR REPLACE FUNCTION docstore_notify() RETURNS trigger AS $$
        BEGIN
            PERFORM pg_notify('` + ChangeChannel + `', NEW.collection);
            RETURN NEW;
        END;
        $$ LANGUAGE plpgsql;`,
		`DROP TRIGGER IF EXISTS documents_notify ON documents;`,
		`CREATE TRIGGER documents_notify AFTER INSERT OR UPDATE ON documents
            FOR EACH ROW EXECUTE FUNCTION docstore_notify();`,
	}
}

func runMigrations(db *sqlx.DB) error {
	for _, m := range Migrations() {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

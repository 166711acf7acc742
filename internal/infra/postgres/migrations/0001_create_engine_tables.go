package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_engine_tables.sql
var createEngineTablesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createEngineTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS submissions;
				DROP TABLE IF EXISTS student_progress;
				DROP TABLE IF EXISTS live_sessions;
				DROP TABLE IF EXISTS quiz_state;
				DROP TABLE IF EXISTS quiz_catalog;
			`)
			return err
		},
	)
}

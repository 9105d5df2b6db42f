package store

import (
	"context"

	"github.com/SIMOUNIX/harvestor/internal/common"
)

const harvestsTable = "harvests"

// DDL shared by Postgres and SQLite.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS harvests (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	document_type   TEXT NOT NULL,
	success         INTEGER NOT NULL,
	model           TEXT NOT NULL,
	provider        TEXT NOT NULL,
	strategy        TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	total_cost      DOUBLE PRECISION NOT NULL,
	input_tokens    BIGINT NOT NULL,
	output_tokens   BIGINT NOT NULL,
	duration_ms     BIGINT NOT NULL,
	file_path       TEXT,
	file_size       BIGINT NOT NULL,
	sha256          TEXT,
	error           TEXT,
	error_kind      TEXT,
	data            TEXT,
	validation      TEXT,
	warnings        TEXT,
	entity_name     TEXT,
	entity_id       TEXT,
	document_number TEXT,
	total_amount    DOUBLE PRECISION,
	currency        TEXT,
	bank_account    TEXT,
	bank_routing    TEXT,
	created_at      TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_harvests_document_id ON harvests (document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_harvests_entity_name ON harvests (entity_name)`,
	`CREATE INDEX IF NOT EXISTS idx_harvests_entity_id ON harvests (entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_harvests_doc_number ON harvests (document_number, entity_name)`,
	`CREATE INDEX IF NOT EXISTS idx_harvests_created_at ON harvests (created_at)`,
}

// Migrate creates the harvests table and its indexes. Safe to run repeatedly.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := db.drv.DB().ExecContext(ctx, stmt); err != nil {
			db.logger.Error("store.migrate.failed", "error", err)
			return common.NewAppError(common.CodeStore, "migrate", err)
		}
	}
	db.logger.Debug("store.migrate.ok", "statements", len(migrations))
	return nil
}

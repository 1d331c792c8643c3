package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"coffer/internal/logging"
)

// Schema versions:
// v1: roles, emergency, share_balances, asset_balances, timelock_ops, journal
// v2: journal gained the detail column
//
// Migrations are additive only: existing tables and columns are never renamed
// or dropped, so an implementation swap that brings new state can never
// collide with the persisted layout of an older one.
const CurrentSchemaVersion = 2

const baseSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS roles (
	role    TEXT NOT NULL,
	address TEXT NOT NULL,
	PRIMARY KEY (role, address)
);
CREATE TABLE IF NOT EXISTS emergency (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	state TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS share_balances (
	address TEXT PRIMARY KEY,
	shares  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS asset_balances (
	address TEXT PRIMARY KEY,
	balance INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS timelock_ops (
	id           TEXT PRIMARY KEY,
	proposer     TEXT NOT NULL,
	action       TEXT NOT NULL,
	args         TEXT NOT NULL DEFAULT '[]',
	scheduled_at TEXT NOT NULL,
	ready_at     TEXT NOT NULL,
	status       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS journal (
	id         TEXT PRIMARY KEY,
	actor      TEXT NOT NULL,
	action     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Migration adds a column to an existing table.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists all additive schema migrations. Applied only when
// the column is missing.
var pendingMigrations = []Migration{
	// v2: free-form detail on journal entries
	{"journal", "detail", "TEXT NOT NULL DEFAULT ''"},
}

// migrate creates the base schema and applies any missing additive
// migrations, then records the current version.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(baseSchema); err != nil {
		return fmt.Errorf("failed to create base schema: %w", err)
	}

	from, err := s.schemaVersion()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range pendingMigrations {
		ok, err := s.hasColumn(m.Table, m.Column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", m.Table, m.Column, err)
		}
		applied++
	}

	if _, err := s.db.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
		return err
	}

	if applied > 0 || from != CurrentSchemaVersion {
		logging.Store("migrated schema: v%d -> v%d (%d column migrations)", from, CurrentSchemaVersion, applied)
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func encodeArgs(args []string) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeArgs(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// Package store persists the custody system to SQLite: role memberships,
// emergency state, share balances, the stand-in asset's balances, the
// timelock queue, and an append-only audit journal.
//
// The in-memory components are authoritative during a run; the store is the
// write-behind snapshot consulted at boot. Writes happen inside the same
// serialized call that mutated the in-memory state.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"coffer/internal/asset"
	"coffer/internal/logging"
	"coffer/internal/timelock"
)

// sortableTime is RFC3339 with a fixed-width fractional second. RFC3339Nano
// trims trailing zeros, which breaks lexicographic ORDER BY on the TEXT
// columns; this layout keeps text order equal to chronological order.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes the database at path, creating the directory and schema
// as needed, and applies any pending migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logging.Store("opened database at %s (schema v%d)", path, CurrentSchemaVersion)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ReplaceRoleMembers rewrites the membership set for a role in one
// transaction.
func (s *Store) ReplaceRoleMembers(role string, addrs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM roles WHERE role = ?`, role); err != nil {
		return fmt.Errorf("failed to clear role %s: %w", role, err)
	}
	for _, a := range addrs {
		if _, err := tx.Exec(`INSERT INTO roles (role, address) VALUES (?, ?)`, role, a); err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}
	return tx.Commit()
}

// RoleMembers returns the persisted membership set for a role.
func (s *Store) RoleMembers(role string) ([]string, error) {
	rows, err := s.db.Query(`SELECT address FROM roles WHERE role = ?`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query role members: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveEmergencyState persists the current emergency state name.
func (s *Store) SaveEmergencyState(state string) error {
	_, err := s.db.Exec(`INSERT INTO emergency (id, state) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state`, state)
	if err != nil {
		return fmt.Errorf("failed to save emergency state: %w", err)
	}
	return nil
}

// EmergencyState returns the persisted state name, or ok=false on a fresh
// database.
func (s *Store) EmergencyState() (string, bool, error) {
	var state string
	err := s.db.QueryRow(`SELECT state FROM emergency WHERE id = 1`).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load emergency state: %w", err)
	}
	return state, true, nil
}

// ReplaceShareBalances rewrites the share ledger snapshot in one transaction.
func (s *Store) ReplaceShareBalances(balances map[string]uint64) error {
	return s.replaceBalances("share_balances", "shares", balances)
}

// ShareBalances returns the persisted share ledger snapshot.
func (s *Store) ShareBalances() (map[string]uint64, error) {
	return s.loadBalances("share_balances", "shares")
}

// ReplaceAssetBalances rewrites the stand-in asset balance snapshot.
func (s *Store) ReplaceAssetBalances(balances map[string]uint64) error {
	return s.replaceBalances("asset_balances", "balance", balances)
}

// AssetBalances returns the persisted stand-in asset balances.
func (s *Store) AssetBalances() (map[string]uint64, error) {
	return s.loadBalances("asset_balances", "balance")
}

func (s *Store) replaceBalances(table, column string, balances map[string]uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for addr, amount := range balances {
		if amount == 0 {
			continue
		}
		q := fmt.Sprintf(`INSERT INTO %s (address, %s) VALUES (?, ?)`, table, column)
		if _, err := tx.Exec(q, addr, int64(amount)); err != nil {
			return fmt.Errorf("failed to insert balance: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) loadBalances(table, column string) (map[string]uint64, error) {
	q := fmt.Sprintf(`SELECT address, %s FROM %s`, column, table)
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var addr string
		var amount int64
		if err := rows.Scan(&addr, &amount); err != nil {
			return nil, err
		}
		out[addr] = uint64(amount)
	}
	return out, rows.Err()
}

// SaveOperation persists a scheduled timelock operation. Implements
// timelock.Sink.
func (s *Store) SaveOperation(op timelock.Operation) error {
	args := encodeArgs(op.Args)
	_, err := s.db.Exec(`INSERT INTO timelock_ops
		(id, proposer, action, args, scheduled_at, ready_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.ID, string(op.Proposer), op.Action, args,
		op.ScheduledAt.UTC().Format(sortableTime),
		op.ReadyAt.UTC().Format(sortableTime),
		string(op.Status))
	if err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

// UpdateOperationStatus updates a persisted operation's status. Implements
// timelock.Sink.
func (s *Store) UpdateOperationStatus(id string, status timelock.Status) error {
	_, err := s.db.Exec(`UPDATE timelock_ops SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update operation status: %w", err)
	}
	return nil
}

// DeleteOperation removes a persisted operation. Implements timelock.Sink.
func (s *Store) DeleteOperation(id string) error {
	_, err := s.db.Exec(`DELETE FROM timelock_ops WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

// Operations returns all persisted timelock operations.
func (s *Store) Operations() ([]timelock.Operation, error) {
	rows, err := s.db.Query(`SELECT id, proposer, action, args, scheduled_at, ready_at, status
		FROM timelock_ops ORDER BY ready_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var out []timelock.Operation
	for rows.Next() {
		var op timelock.Operation
		var proposer, args, scheduledAt, readyAt, status string
		if err := rows.Scan(&op.ID, &proposer, &op.Action, &args, &scheduledAt, &readyAt, &status); err != nil {
			return nil, err
		}
		op.Proposer = asset.Address(proposer)
		op.Args = decodeArgs(args)
		op.Status = timelock.Status(status)
		if op.ScheduledAt, err = time.Parse(time.RFC3339Nano, scheduledAt); err != nil {
			return nil, fmt.Errorf("bad scheduled_at for %s: %w", op.ID, err)
		}
		if op.ReadyAt, err = time.Parse(time.RFC3339Nano, readyAt); err != nil {
			return nil, fmt.Errorf("bad ready_at for %s: %w", op.ID, err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

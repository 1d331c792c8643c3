package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"coffer/internal/asset"
	"coffer/internal/logging"
)

// JournalEntry is one audit record.
type JournalEntry struct {
	ID        string
	Actor     asset.Address
	Action    string
	Detail    string
	CreatedAt time.Time
}

// Record appends an audit entry. Implements vault.Journal; also used for
// emergency transitions and privileged administration. Journal writes are
// best-effort: a failed append is logged, never surfaced to the operation
// that triggered it.
func (s *Store) Record(actor asset.Address, action, detail string) {
	_, err := s.db.Exec(`INSERT INTO journal (id, actor, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), string(actor), action, detail,
		time.Now().UTC().Format(sortableTime))
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed to append journal entry (%s by %s): %v", action, actor, err)
	}
}

// Journal returns the most recent entries, newest first.
func (s *Store) Journal(limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, actor, action, detail, created_at
		FROM journal ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var actor, createdAt string
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.Actor = asset.Address(actor)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("bad created_at for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

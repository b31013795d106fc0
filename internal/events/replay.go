package events

import (
	"context"
	"database/sql"
)

// EntityRef identifies one entity in the log.
type EntityRef struct {
	Kind string
	ID   string
}

// Replay scans the whole log in insertion order and folds each entity's
// status transitions, yielding the final status per entity. Replaying from an
// empty store reproduces the live system's entity states after the same
// operation sequence.
func Replay(ctx context.Context, db *sql.DB) (map[EntityRef]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT entity_kind, entity_id, COALESCE(new_status,'') FROM events ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	states := map[EntityRef]string{}
	for rows.Next() {
		var kind, id, status string
		if err := rows.Scan(&kind, &id, &status); err != nil {
			return nil, err
		}
		if status == "" {
			continue
		}
		states[EntityRef{Kind: kind, ID: id}] = status
	}
	return states, rows.Err()
}

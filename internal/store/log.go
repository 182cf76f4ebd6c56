package store

import (
	"fmt"
	"time"
)

// LogEntry is one session lifecycle event: a state change, pairing, etc.
type LogEntry struct {
	ID        int64
	AgentID   string
	Timestamp time.Time
	Event     string
	Detail    *string
}

func (s *Store) AppendLog(agentID, event string, detail *string) error {
	_, err := s.db.Exec("INSERT INTO session_log (agent_id, event, detail) VALUES (?, ?, ?)", agentID, event, detail)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListLog returns the newest limit entries for agentID, oldest first.
func (s *Store) ListLog(agentID string, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT id, agent_id, timestamp, event, detail FROM (
			SELECT id, agent_id, timestamp, event, detail FROM session_log
			WHERE agent_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list log: %w", err)
	}
	defer rows.Close()
	var entries []*LogEntry
	for rows.Next() {
		e := &LogEntry{}
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Timestamp, &e.Event, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

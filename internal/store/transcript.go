package store

import (
	"database/sql"
	"fmt"

	"github.com/ehrlich-b/clawline/internal/chat"
)

// ReplaceTranscript stores msgs as the full cached transcript for agentID.
func (s *Store) ReplaceTranscript(agentID string, msgs []chat.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transcript: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO messages (agent_id, seq, role, content, ts, media_path, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, m := range msgs {
		if _, err := stmt.Exec(agentID, i, m.Role, m.Content, m.Timestamp, nullString(m.MediaPath), nullString(m.RunID)); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns the last limit cached messages for agentID in
// transcript order. limit <= 0 returns everything.
func (s *Store) ListMessages(agentID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT role, content, ts, media_path, run_id FROM (
			SELECT seq, role, content, ts, media_path, run_id FROM messages
			WHERE agent_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var media, run sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp, &media, &run); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.MediaPath, m.RunID = media.String, run.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteTranscript drops everything cached for agentID.
func (s *Store) DeleteTranscript(agentID string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM session_log WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete session log: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

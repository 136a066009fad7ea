package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"markestedt/clipsync/protocol"
)

// SaveMessage appends msg to the history of room and returns its id
func (db *DB) SaveMessage(ctx context.Context, room string, msg protocol.Message) (string, error) {
	query := `
		INSERT INTO messages (id, room, type, content, user_id, sent_at, clip_reg)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var clipReg sql.NullInt64
	if msg.RegisterIndex != nil {
		clipReg = sql.NullInt64{Int64: int64(*msg.RegisterIndex), Valid: true}
	}

	id := ulid.Make().String()
	_, err := db.conn.ExecContext(ctx, query,
		id, room, string(msg.Kind), msg.Content, msg.OriginID,
		msg.SentAt.UTC().Format(time.RFC3339Nano), clipReg,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save message: %w", err)
	}

	return id, nil
}

// RecentMessages returns up to limit of the newest messages of room, oldest first
func (db *DB) RecentMessages(ctx context.Context, room string, limit int) ([]protocol.Message, error) {
	query := `
		SELECT type, content, user_id, sent_at, clip_reg
		FROM messages
		WHERE room = ?
		ORDER BY rowid DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []protocol.Message
	for rows.Next() {
		var (
			m       protocol.Message
			kind    string
			sentAt  string
			clipReg sql.NullInt64
		)

		if err := rows.Scan(&kind, &m.Content, &m.OriginID, &sentAt, &clipReg); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.Kind = protocol.Kind(kind)
		if m.SentAt, err = time.Parse(time.RFC3339Nano, sentAt); err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", sentAt, err)
		}
		if clipReg.Valid {
			i := int(clipReg.Int64)
			m.RegisterIndex = &i
		}

		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest first from the query; history is delivered oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// PruneRoom deletes all but the newest keep messages of room
func (db *DB) PruneRoom(ctx context.Context, room string, keep int) (int64, error) {
	query := `
		DELETE FROM messages
		WHERE room = ? AND rowid NOT IN (
			SELECT rowid FROM messages WHERE room = ? ORDER BY rowid DESC LIMIT ?
		)
	`

	result, err := db.conn.ExecContext(ctx, query, room, room, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune room: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

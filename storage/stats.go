package storage

import (
	"context"
	"fmt"
)

// RoomStats summarizes the stored history of one room
type RoomStats struct {
	Room          string `json:"room"`
	Messages      int    `json:"messages"`
	Images        int    `json:"images"`
	RegisterSyncs int    `json:"registerSyncs"`
	Users         int    `json:"users"`
	LastSentAt    string `json:"lastSentAt"`
}

// GetRoomStats returns per-room counters, busiest room first
func (db *DB) GetRoomStats(ctx context.Context) ([]RoomStats, error) {
	query := `
		SELECT
			room,
			COUNT(*) as messages,
			SUM(CASE WHEN type = 'image' THEN 1 ELSE 0 END) as images,
			SUM(CASE WHEN clip_reg IS NOT NULL THEN 1 ELSE 0 END) as register_syncs,
			COUNT(DISTINCT user_id) as users,
			MAX(sent_at) as last_sent_at
		FROM messages
		GROUP BY room
		ORDER BY messages DESC, room
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query room stats: %w", err)
	}
	defer rows.Close()

	var stats []RoomStats
	for rows.Next() {
		var s RoomStats
		if err := rows.Scan(&s.Room, &s.Messages, &s.Images, &s.RegisterSyncs, &s.Users, &s.LastSentAt); err != nil {
			return nil, fmt.Errorf("failed to scan room stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetMessageCount returns the number of stored messages across all rooms
func (db *DB) GetMessageCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

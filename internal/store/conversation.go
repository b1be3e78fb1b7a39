package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a conversation summary row.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (friend_id, name, avatar, last_text, last_time, last_sender_id, unread, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(friend_id) DO UPDATE SET
			name = excluded.name,
			avatar = excluded.avatar,
			last_text = excluded.last_text,
			last_time = excluded.last_time,
			last_sender_id = excluded.last_sender_id,
			unread = excluded.unread,
			updated_at = excluded.updated_at`,
		c.FriendID, c.Name, c.Avatar, c.LastText, c.LastTime, c.LastSenderID, c.Unread, now)
	return err
}

// ListConversations returns summaries ordered by unread count descending,
// ties broken by most recent message; rows without messages sort last.
func (db *DB) ListConversations() ([]Conversation, error) {
	rows, err := db.Query(`
		SELECT friend_id, name, avatar, last_text, last_time, last_sender_id, unread
		FROM conversations
		ORDER BY unread DESC, last_time DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.FriendID, &c.Name, &c.Avatar, &c.LastText, &c.LastTime, &c.LastSenderID, &c.Unread); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single summary row, or nil when absent.
func (db *DB) GetConversation(friendID int64) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT friend_id, name, avatar, last_text, last_time, last_sender_id, unread
		FROM conversations WHERE friend_id = ?`, friendID).
		Scan(&c.FriendID, &c.Name, &c.Avatar, &c.LastText, &c.LastTime, &c.LastSenderID, &c.Unread)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ZeroUnread clears the unread count for a conversation.
func (db *DB) ZeroUnread(friendID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET unread = 0, updated_at = ? WHERE friend_id = ?`, now, friendID)
	return err
}

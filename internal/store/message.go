package store

import "fmt"

// UpsertMessage inserts or updates a message (idempotent on friend_id + key).
func (db *DB) UpsertMessage(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (friend_id, msg_key, server_id, local_id, sender_id, receiver_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(friend_id, msg_key) DO UPDATE SET
			body = excluded.body,
			created_at = excluded.created_at`,
		m.FriendID, m.Key, m.ServerID, m.LocalID, m.SenderID, m.ReceiverID, m.Body, m.CreatedAt)
	return err
}

// ReplaceHistory swaps the cached history for one conversation in a single
// transaction, used when a fresh authoritative history is fetched.
func (db *DB) ReplaceHistory(friendID int64, msgs []*Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE friend_id = ?`, friendID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (friend_id, msg_key, server_id, local_id, sender_id, receiver_id, body, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(friend_id, msg_key) DO NOTHING`,
			friendID, m.Key, m.ServerID, m.LocalID, m.SenderID, m.ReceiverID, m.Body, m.CreatedAt); err != nil {
			return fmt.Errorf("insert history row: %w", err)
		}
	}
	return tx.Commit()
}

// ListMessages returns the cached messages for a conversation in send order.
func (db *DB) ListMessages(friendID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, friend_id, msg_key, server_id, local_id, sender_id, receiver_id, body, created_at
		FROM messages
		WHERE friend_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, friendID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.FriendID, &m.Key, &m.ServerID, &m.LocalID, &m.SenderID, &m.ReceiverID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

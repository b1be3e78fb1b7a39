package api

import "time"

// StatusResponse describes the session and its realtime connection.
type StatusResponse struct {
	Session             string `json:"session"`
	State               string `json:"state"`
	ActiveFriendID      int64  `json:"active_friend_id,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	NotificationsUnread int    `json:"notifications_unread"`
}

// SummaryResponse is one conversation row.
type SummaryResponse struct {
	FriendID     int64      `json:"friend_id"`
	Name         string     `json:"name"`
	Avatar       string     `json:"avatar,omitempty"`
	LastText     string     `json:"last_text,omitempty"`
	LastTime     *time.Time `json:"last_time,omitempty"`
	LastSenderID int64      `json:"last_sender_id,omitempty"`
	Unread       int        `json:"unread"`
}

// MessageResponse is one message in a conversation.
type MessageResponse struct {
	ServerID    int64     `json:"server_id,omitempty"`
	LocalID     string    `json:"local_id,omitempty"`
	Provisional bool      `json:"provisional,omitempty"`
	SenderID    int64     `json:"sender_id"`
	ReceiverID  int64     `json:"receiver_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// OpenRequest selects the active conversation.
type OpenRequest struct {
	FriendID int64  `json:"friend_id"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// SendRequest posts a message to the active conversation.
type SendRequest struct {
	Text string `json:"text"`
}

// TypingRequest reports compose-box activity for a conversation.
type TypingRequest struct {
	FriendID int64 `json:"friend_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

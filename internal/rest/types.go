package rest

import "time"

// User is a friend/participant record as serialized by the backend.
type User struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Email  string `json:"email,omitempty"`
}

// Message is a chat message resource. The realtime feed broadcasts the same
// serialized shape inside new_message events.
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Sender    User      `json:"sender"`
	Receiver  *User     `json:"receiver,omitempty"`
}

// Conversation is one row of the conversation summary listing.
type Conversation struct {
	Friend       User       `json:"friend"`
	LastText     string     `json:"last_text"`
	LastTime     *time.Time `json:"last_time"`
	LastSenderID int64      `json:"last_sender_id"`
	Unread       int        `json:"unread"`
}

// Notification is a backend notification record.
type Notification struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type conversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type friendsResponse struct {
	Friends []User `json:"friends"`
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
}

type sendResponse struct {
	Message *Message `json:"message"`
}

type notificationsResponse struct {
	Notifications []Notification `json:"notifications"`
}

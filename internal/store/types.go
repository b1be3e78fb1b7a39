package store

// Conversation is a cached conversation summary row.
type Conversation struct {
	FriendID     int64
	Name         string
	Avatar       string
	LastText     string
	LastTime     int64 // unix millis, 0 when no message yet
	LastSenderID int64
	Unread       int
}

// Message is a cached chat message. Key is the dedup identity ("s:<server>"
// or "l:<local>"); ServerID is 0 for provisional messages.
type Message struct {
	ID         int64
	FriendID   int64
	Key        string
	ServerID   int64
	LocalID    string
	SenderID   int64
	ReceiverID int64
	Body       string
	CreatedAt  int64 // unix millis
}

package ws

import (
	"net/url"
	"strings"

	"github.com/nihinconnect/chatd/internal/rest"
)

// Frame is an outbound control payload sent to the realtime server.
type Frame struct {
	Action   string `json:"action"` // "join", "leave" or "typing"
	FriendID int64  `json:"friend_id"`
	Typing   *bool  `json:"typing,omitempty"`
}

// Join scopes the connection to a conversation group, so its messages stop
// triggering unread accounting.
func Join(friendID int64) Frame {
	return Frame{Action: "join", FriendID: friendID}
}

// Leave undoes a Join.
func Leave(friendID int64) Frame {
	return Frame{Action: "leave", FriendID: friendID}
}

// Typing signals the peer's typing indicator.
func Typing(friendID int64, typing bool) Frame {
	return Frame{Action: "typing", FriendID: friendID, Typing: &typing}
}

// Envelope is an inbound realtime event.
type Envelope struct {
	Type    string        `json:"type"`
	Message *rest.Message `json:"message"`
}

// TypeNewMessage is the only inbound event type the client consumes.
const TypeNewMessage = "new_message"

// FeedURL derives the realtime feed URL from the REST base URL, embedding
// the access token as a query parameter.
func FeedURL(apiBase, token string) string {
	base := strings.TrimRight(apiBase, "/")
	switch {
	case strings.HasPrefix(base, "https"):
		base = "wss" + strings.TrimPrefix(base, "https")
	case strings.HasPrefix(base, "http"):
		base = "ws" + strings.TrimPrefix(base, "http")
	}
	return base + "/ws/messages/?token=" + url.QueryEscape(token)
}

package chat

import (
	"slices"
	"strconv"
	"time"

	"github.com/nihinconnect/chatd/internal/rest"
)

// Message is one chat message in the active conversation. Identity is
// explicit: a confirmed message carries the server-assigned ServerID, a
// provisional one (shown before or instead of server confirmation) carries
// only a locally generated LocalID.
type Message struct {
	ServerID     int64
	LocalID      string
	SenderID     int64
	ReceiverID   int64
	SenderName   string
	SenderAvatar string
	Text         string
	CreatedAt    time.Time
}

// Provisional reports whether the message has not been confirmed by the
// server yet.
func (m Message) Provisional() bool {
	return m.ServerID == 0
}

// Key returns the dedup identity for the message.
func (m Message) Key() string {
	if m.Provisional() {
		return "l:" + m.LocalID
	}
	return "s:" + strconv.FormatInt(m.ServerID, 10)
}

// FromWire converts a backend-serialized message.
func FromWire(m rest.Message) Message {
	msg := Message{
		ServerID:     m.ID,
		SenderID:     m.Sender.ID,
		SenderName:   m.Sender.Name,
		SenderAvatar: m.Sender.Avatar,
		Text:         m.Text,
		CreatedAt:    m.CreatedAt,
	}
	if m.Receiver != nil {
		msg.ReceiverID = m.Receiver.ID
	}
	return msg
}

// Summary is one row of the conversation summary list: a friend plus the
// denormalized state of the conversation with them.
type Summary struct {
	FriendID     int64
	Name         string
	Avatar       string
	LastText     string
	LastTime     *time.Time
	LastSenderID int64
	Unread       int
}

// sortSummaries orders the list by unread count descending, ties broken by
// most recent last message; rows without any message sort last.
func sortSummaries(s []Summary) {
	slices.SortStableFunc(s, func(a, b Summary) int {
		if a.Unread != b.Unread {
			return b.Unread - a.Unread
		}
		switch da, db := lastMillis(a), lastMillis(b); {
		case da > db:
			return -1
		case da < db:
			return 1
		default:
			return 0
		}
	})
}

func lastMillis(s Summary) int64 {
	if s.LastTime == nil {
		return 0
	}
	return s.LastTime.UnixMilli()
}

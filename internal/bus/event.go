package bus

import "time"

// Event is a domain event carried on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published across the client. Subscribers filter by prefix.
const (
	// KindStatusChanged carries a status.StatusChange payload.
	KindStatusChanged = "session.status_changed"

	// KindWireMessage carries a decoded *ws.Envelope from the realtime feed.
	KindWireMessage = "rt.message"

	// KindMessageAppended carries a chat.Message appended to the active
	// conversation (inbound or locally echoed).
	KindMessageAppended = "chat.message"

	// KindSummaryUpdated carries the friend id whose summary row changed.
	KindSummaryUpdated = "chat.summary_updated"

	// KindNotificationsCleared is emitted after reading a message clears
	// server-side notifications; nav-bar style consumers reset badges on it.
	KindNotificationsCleared = "notify.cleared"
)

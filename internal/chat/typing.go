package chat

import (
	"sync"
	"time"

	"github.com/nihinconnect/chatd/internal/ws"
)

// typingIdle is how long after the last keystroke the trailing
// "stopped typing" signal fires.
const typingIdle = 2 * time.Second

type timer interface {
	Stop() bool
}

// Typist signals the peer's typing indicator for the active conversation.
// Every compose change sends typing:true and restarts a single trailing
// timer that sends typing:false after the idle window; sending a message
// cancels the timer and clears the indicator synchronously.
type Typist struct {
	sender Sender

	mu      sync.Mutex
	pending timer

	afterFunc func(time.Duration, func()) timer
}

// NewTypist creates a typist over the given realtime sender.
func NewTypist(sender Sender) *Typist {
	return &Typist{
		sender:    sender,
		afterFunc: func(d time.Duration, f func()) timer { return time.AfterFunc(d, f) },
	}
}

// Compose records a compose-box change for the given conversation.
func (t *Typist) Compose(friendID int64) {
	t.sender.SafeSend(ws.Typing(friendID, true))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		t.pending.Stop()
	}
	t.pending = t.afterFunc(typingIdle, func() {
		t.mu.Lock()
		t.pending = nil
		t.mu.Unlock()
		t.sender.SafeSend(ws.Typing(friendID, false))
	})
}

// Stop cancels any pending trailing signal and clears the indicator now.
func (t *Typist) Stop(friendID int64) {
	t.mu.Lock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.mu.Unlock()
	t.sender.SafeSend(ws.Typing(friendID, false))
}

package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nihinconnect/chatd/internal/bus"
	"github.com/nihinconnect/chatd/internal/rest"
	"go.uber.org/zap"
)

const (
	conversationPollInterval = 6 * time.Second
	notificationPollInterval = 30 * time.Second
)

// User-visible load failure messages.
const (
	errAuthRequired = "Please login to view messages"
	errLoadFailed   = "Failed to load conversations and friends"
)

// Directory is the REST surface the poller consumes.
type Directory interface {
	Conversations(ctx context.Context) ([]rest.Conversation, error)
	Friends(ctx context.Context) ([]rest.User, error)
	Notifications(ctx context.Context) ([]rest.Notification, error)
}

// Poller periodically refreshes the conversation summary list and the
// notification badge. Polls are cooperative: one in flight at a time, a
// skipped tick is simply dropped, and nothing runs while the view is not
// visible.
type Poller struct {
	projector *Projector
	directory Directory
	bus       *bus.Bus
	logger    *zap.Logger

	// Visible gates polling; defaults to always visible. Replaced by the
	// embedding application when it can tell the view is hidden.
	Visible func() bool

	convBusy  atomic.Bool
	notifBusy atomic.Bool

	mu          sync.Mutex
	lastError   string
	notifUnread int

	cancel context.CancelFunc
}

// NewPoller creates a poller feeding the given projector.
func NewPoller(projector *Projector, directory Directory, b *bus.Bus, logger *zap.Logger) *Poller {
	return &Poller{
		projector: projector,
		directory: directory,
		bus:       b,
		logger:    logger,
		Visible:   func() bool { return true },
	}
}

// Start runs the poll loop until the context is cancelled or Stop is called.
// An initial conversation refresh happens immediately.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	cleared, unsub := p.bus.Subscribe(bus.KindNotificationsCleared, 16)

	go func() {
		defer unsub()

		p.RefreshConversations(ctx)
		p.RefreshNotifications(ctx)

		convTick := time.NewTicker(conversationPollInterval)
		defer convTick.Stop()
		notifTick := time.NewTicker(notificationPollInterval)
		defer notifTick.Stop()

		for {
			select {
			case <-convTick.C:
				p.RefreshConversations(ctx)
			case <-notifTick.C:
				p.RefreshNotifications(ctx)
			case <-cleared:
				p.setNotifUnread(0)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the poll loop.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// RefreshConversations fetches the summary listing once. When the endpoint
// returns nothing or fails, the plain friends listing (zeroed metadata) is
// used instead; only a failure of both surfaces an error message.
func (p *Poller) RefreshConversations(ctx context.Context) {
	if !p.Visible() {
		return
	}
	if !p.convBusy.CompareAndSwap(false, true) {
		return // previous poll still in flight; skipped, not queued
	}
	defer p.convBusy.Store(false)

	convs, err := p.directory.Conversations(ctx)
	if err == nil && len(convs) > 0 {
		p.projector.ApplyConversations(convs)
		p.setLastError("")
		return
	}
	if err != nil {
		p.logger.Warn("conversations fetch failed", zap.Error(err))
	}

	friends, ferr := p.directory.Friends(ctx)
	if ferr != nil {
		p.logger.Warn("friends fallback failed", zap.Error(ferr))
		if err != nil {
			if rest.IsAuthError(err) || rest.IsAuthError(ferr) {
				p.setLastError(errAuthRequired)
			} else {
				p.setLastError(errLoadFailed)
			}
		}
		return
	}
	p.projector.ApplyFriendsFallback(friends)
	p.setLastError("")
}

// RefreshNotifications updates the unread notification count once.
func (p *Poller) RefreshNotifications(ctx context.Context) {
	if !p.Visible() {
		return
	}
	if !p.notifBusy.CompareAndSwap(false, true) {
		return
	}
	defer p.notifBusy.Store(false)

	notifs, err := p.directory.Notifications(ctx)
	if err != nil {
		p.logger.Warn("notifications fetch failed", zap.Error(err))
		return
	}
	unread := 0
	for _, n := range notifs {
		if !n.IsRead {
			unread++
		}
	}
	p.setNotifUnread(unread)
}

// LastError returns the current user-visible load failure, or "".
func (p *Poller) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// NotificationsUnread returns the last polled unread notification count.
func (p *Poller) NotificationsUnread() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notifUnread
}

func (p *Poller) setLastError(msg string) {
	p.mu.Lock()
	p.lastError = msg
	p.mu.Unlock()
}

func (p *Poller) setNotifUnread(n int) {
	p.mu.Lock()
	p.notifUnread = n
	p.mu.Unlock()
}

package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nihinconnect/chatd/internal/bus"
	"github.com/nihinconnect/chatd/internal/rest"
	"go.uber.org/zap"
)

type fakeDirectory struct {
	mu            sync.Mutex
	convs         []rest.Conversation
	convsErr      error
	friends       []rest.User
	friendsErr    error
	notifs        []rest.Notification
	notifsErr     error
	convCalls     int
	friendCalls   int
	notifCalls    int
}

func (d *fakeDirectory) Conversations(ctx context.Context) ([]rest.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.convCalls++
	return d.convs, d.convsErr
}

func (d *fakeDirectory) Friends(ctx context.Context) ([]rest.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.friendCalls++
	return d.friends, d.friendsErr
}

func (d *fakeDirectory) Notifications(ctx context.Context) ([]rest.Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifCalls++
	return d.notifs, d.notifsErr
}

func testPoller(dir *fakeDirectory) (*Poller, *Projector, *bus.Bus) {
	b := bus.New()
	proj := NewProjector(self, &fakeBackend{}, &fakeSender{open: true}, nil, nil, b, zap.NewNop())
	return NewPoller(proj, dir, b, zap.NewNop()), proj, b
}

func TestRefreshConversationsApplies(t *testing.T) {
	now := time.Now()
	dir := &fakeDirectory{
		convs: []rest.Conversation{
			{Friend: rest.User{ID: 2, Name: "A"}, LastText: "hi", LastTime: &now, Unread: 1},
		},
	}
	p, proj, _ := testPoller(dir)

	p.RefreshConversations(context.Background())

	sums := proj.Summaries()
	if len(sums) != 1 || sums[0].FriendID != 2 || sums[0].Unread != 1 {
		t.Fatalf("summaries = %+v, want the polled conversation", sums)
	}
	if dir.friendCalls != 0 {
		t.Error("friends fallback must not run when conversations succeed")
	}
	if p.LastError() != "" {
		t.Errorf("last error = %q, want none", p.LastError())
	}
}

func TestEmptyConversationsFallBackToFriends(t *testing.T) {
	dir := &fakeDirectory{
		friends: []rest.User{{ID: 7, Name: "G"}},
	}
	p, proj, _ := testPoller(dir)

	p.RefreshConversations(context.Background())

	sums := proj.Summaries()
	if len(sums) != 1 || sums[0].FriendID != 7 {
		t.Fatalf("summaries = %+v, want friends fallback", sums)
	}
	if p.LastError() != "" {
		t.Errorf("last error = %q, want none (fallback succeeded)", p.LastError())
	}
}

func TestConversationsErrorFallsBackToFriends(t *testing.T) {
	dir := &fakeDirectory{
		convsErr: errors.New("boom"),
		friends:  []rest.User{{ID: 7, Name: "G"}},
	}
	p, proj, _ := testPoller(dir)

	p.RefreshConversations(context.Background())

	if sums := proj.Summaries(); len(sums) != 1 {
		t.Fatalf("summaries = %+v, want friends fallback", sums)
	}
	if p.LastError() != "" {
		t.Errorf("last error = %q, want none", p.LastError())
	}
}

func TestBothEndpointsFailing(t *testing.T) {
	tests := []struct {
		name     string
		convsErr error
		friends  error
		want     string
	}{
		{"auth failure", &rest.Error{StatusCode: http.StatusUnauthorized}, &rest.Error{StatusCode: http.StatusUnauthorized}, errAuthRequired},
		{"auth failure on fallback only", errors.New("boom"), &rest.Error{StatusCode: http.StatusUnauthorized}, errAuthRequired},
		{"generic failure", errors.New("boom"), errors.New("boom"), errLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &fakeDirectory{convsErr: tt.convsErr, friendsErr: tt.friends}
			p, proj, _ := testPoller(dir)

			p.RefreshConversations(context.Background())

			if got := p.LastError(); got != tt.want {
				t.Errorf("last error = %q, want %q", got, tt.want)
			}
			if sums := proj.Summaries(); len(sums) != 0 {
				t.Errorf("summaries = %+v, want untouched", sums)
			}
		})
	}
}

func TestEmptyConversationsWithFriendsFailureKeepsQuiet(t *testing.T) {
	// Conversations succeeded (just empty); a failing fallback is not a
	// load failure worth surfacing.
	dir := &fakeDirectory{friendsErr: errors.New("boom")}
	p, _, _ := testPoller(dir)

	p.RefreshConversations(context.Background())

	if got := p.LastError(); got != "" {
		t.Errorf("last error = %q, want none", got)
	}
}

func TestRefreshSkippedWhileBusy(t *testing.T) {
	dir := &fakeDirectory{}
	p, _, _ := testPoller(dir)

	p.convBusy.Store(true)
	p.RefreshConversations(context.Background())
	if dir.convCalls != 0 {
		t.Error("refresh must be skipped while one is in flight")
	}

	p.notifBusy.Store(true)
	p.RefreshNotifications(context.Background())
	if dir.notifCalls != 0 {
		t.Error("notification refresh must be skipped while one is in flight")
	}
}

func TestRefreshSkippedWhileHidden(t *testing.T) {
	dir := &fakeDirectory{}
	p, _, _ := testPoller(dir)
	p.Visible = func() bool { return false }

	p.RefreshConversations(context.Background())
	p.RefreshNotifications(context.Background())

	if dir.convCalls != 0 || dir.notifCalls != 0 {
		t.Error("no polling while the view is hidden")
	}
}

func TestRefreshNotificationsCountsUnread(t *testing.T) {
	dir := &fakeDirectory{
		notifs: []rest.Notification{
			{ID: 1, IsRead: true},
			{ID: 2},
			{ID: 3},
		},
	}
	p, _, _ := testPoller(dir)

	p.RefreshNotifications(context.Background())

	if got := p.NotificationsUnread(); got != 2 {
		t.Errorf("unread = %d, want 2", got)
	}
}

func TestNotificationsErrorKeepsLastCount(t *testing.T) {
	dir := &fakeDirectory{notifs: []rest.Notification{{ID: 1}}}
	p, _, _ := testPoller(dir)

	p.RefreshNotifications(context.Background())
	if got := p.NotificationsUnread(); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}

	dir.mu.Lock()
	dir.notifsErr = errors.New("boom")
	dir.mu.Unlock()
	p.RefreshNotifications(context.Background())
	if got := p.NotificationsUnread(); got != 1 {
		t.Errorf("unread = %d, want 1 (stale count kept on failure)", got)
	}
}

func TestClearedEventZeroesBadge(t *testing.T) {
	dir := &fakeDirectory{notifs: []rest.Notification{{ID: 1}, {ID: 2}}}
	p, _, b := testPoller(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	waitFor(t, "initial notification poll", func() bool {
		return p.NotificationsUnread() == 2
	})

	b.Emit(bus.KindNotificationsCleared, nil)

	waitFor(t, "badge reset", func() bool {
		return p.NotificationsUnread() == 0
	})
}

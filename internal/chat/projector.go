package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nihinconnect/chatd/internal/bus"
	"github.com/nihinconnect/chatd/internal/rest"
	"github.com/nihinconnect/chatd/internal/store"
	"github.com/nihinconnect/chatd/internal/ws"
	"go.uber.org/zap"
)

// reconcileWindow bounds how far apart a provisional message and its server
// confirmation may be and still be treated as the same logical send.
const reconcileWindow = 5 * time.Second

// Sender is the realtime send surface the projector relies on.
type Sender interface {
	SafeSend(payload any)
	OnNextOpen(fn func())
}

// Backend is the REST surface the projector consumes.
type Backend interface {
	History(ctx context.Context, userID int64) ([]rest.Message, error)
	Send(ctx context.Context, receiverID int64, text string) (*rest.Message, error)
	MarkRead(ctx context.Context, userID int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

type conversation struct {
	friendID int64
	messages []Message
	byKey    map[string]int
}

// Projector owns the conversation summary list and the active conversation's
// message list, and is the only mutator of either. Inbound realtime events
// and local user actions funnel through it; the UI layer and the control API
// read snapshots.
type Projector struct {
	self    rest.User
	backend Backend
	sender  Sender
	typist  *Typist
	cache   *store.DB // optional write-through cache, may be nil
	bus     *bus.Bus
	logger  *zap.Logger

	mu        sync.Mutex
	summaries []Summary
	active    *conversation
	epoch     int // bumped on every conversation switch; guards stale fetches
}

// NewProjector creates a projector for the authenticated user.
func NewProjector(self rest.User, backend Backend, sender Sender, typist *Typist, cache *store.DB, b *bus.Bus, logger *zap.Logger) *Projector {
	return &Projector{
		self:    self,
		backend: backend,
		sender:  sender,
		typist:  typist,
		cache:   cache,
		bus:     b,
		logger:  logger,
	}
}

// HandleEnvelope applies one inbound realtime event.
func (p *Projector) HandleEnvelope(env *ws.Envelope) {
	if env == nil || env.Type != ws.TypeNewMessage || env.Message == nil {
		return
	}
	msg := FromWire(*env.Message)

	p.mu.Lock()
	if p.active != nil && (p.active.friendID == msg.SenderID || p.active.friendID == msg.ReceiverID) {
		changed := p.appendActiveLocked(msg)
		p.mu.Unlock()
		if !changed {
			return
		}
		p.persistMessage(msg)
		p.bus.Emit(bus.KindMessageAppended, msg)

		// Reading the message clears its unread/notification state
		// server-side; both calls are best effort.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), rest.DefaultTimeout)
			defer cancel()
			if err := p.backend.MarkRead(ctx, msg.SenderID); err != nil {
				p.logger.Debug("mark-read failed", zap.Error(err))
			}
			if err := p.backend.MarkAllNotificationsRead(ctx); err != nil {
				p.logger.Debug("mark-all-read failed", zap.Error(err))
			}
			p.bus.Emit(bus.KindNotificationsCleared, nil)
		}()
		return
	}

	p.bumpSummaryLocked(msg)
	p.mu.Unlock()
	p.persistSummaryFor(msg.SenderID)
	p.bus.Emit(bus.KindSummaryUpdated, msg.SenderID)
}

// appendActiveLocked adds msg to the active message list, deduplicating by
// identity. A confirmed message replaces a provisional entry for the same
// logical send (same sender and text within the reconcile window) instead of
// appearing alongside it. Returns whether the list changed.
func (p *Projector) appendActiveLocked(msg Message) bool {
	conv := p.active
	if _, ok := conv.byKey[msg.Key()]; ok {
		return false
	}

	if !msg.Provisional() {
		for i, existing := range conv.messages {
			if !existing.Provisional() || existing.SenderID != msg.SenderID || existing.Text != msg.Text {
				continue
			}
			if absDuration(existing.CreatedAt.Sub(msg.CreatedAt)) > reconcileWindow {
				continue
			}
			delete(conv.byKey, existing.Key())
			conv.messages[i] = msg
			conv.byKey[msg.Key()] = i
			return true
		}
	}

	conv.byKey[msg.Key()] = len(conv.messages)
	conv.messages = append(conv.messages, msg)
	return true
}

// bumpSummaryLocked updates (or inserts) the summary row for the event's
// sender and restores the sort invariant.
func (p *Projector) bumpSummaryLocked(msg Message) {
	t := msg.CreatedAt
	for i := range p.summaries {
		if p.summaries[i].FriendID == msg.SenderID {
			p.summaries[i].LastText = msg.Text
			p.summaries[i].LastTime = &t
			p.summaries[i].LastSenderID = msg.SenderID
			p.summaries[i].Unread++
			sortSummaries(p.summaries)
			return
		}
	}
	p.summaries = append(p.summaries, Summary{
		FriendID:     msg.SenderID,
		Name:         msg.SenderName,
		Avatar:       msg.SenderAvatar,
		LastText:     msg.Text,
		LastTime:     &t,
		LastSenderID: msg.SenderID,
		Unread:       1,
	})
	sortSummaries(p.summaries)
}

// Open switches the active conversation to the given friend: leaves the
// previous group, loads history, marks the conversation read and joins the
// new group (deferred to the next connection open when necessary).
func (p *Projector) Open(ctx context.Context, friend rest.User) {
	p.mu.Lock()
	if p.active != nil {
		p.sender.SafeSend(ws.Leave(p.active.friendID))
	}
	p.active = &conversation{friendID: friend.ID, byKey: make(map[string]int)}
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()

	history, err := p.backend.History(ctx, friend.ID)
	if err != nil {
		// Present an empty conversation rather than failing the view.
		p.logger.Warn("history fetch failed", zap.Error(err), zap.Int64("friend_id", friend.ID))
		history = nil
	}

	p.mu.Lock()
	if p.epoch != epoch || p.active == nil || p.active.friendID != friend.ID {
		// The user already switched again; discard the stale history.
		p.mu.Unlock()
		return
	}
	for _, wire := range history {
		p.appendActiveLocked(FromWire(wire))
	}
	for i := range p.summaries {
		if p.summaries[i].FriendID == friend.ID {
			p.summaries[i].Unread = 0
		}
	}
	p.mu.Unlock()

	p.persistHistory(friend.ID, history)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rest.DefaultTimeout)
		defer cancel()
		if err := p.backend.MarkRead(ctx, friend.ID); err != nil {
			p.logger.Debug("mark-read failed", zap.Error(err))
		}
	}()
	p.bus.Emit(bus.KindSummaryUpdated, friend.ID)

	p.sender.OnNextOpen(func() {
		p.sender.SafeSend(ws.Join(friend.ID))
	})
}

// Send delivers the composed text to the active conversation. Empty input
// and having no conversation selected are silently rejected. The REST path
// is authoritative; when it fails the message is echoed locally with a
// provisional id so the view still reflects the attempt (no automatic
// retry). Either way the peer's typing indicator is cleared.
func (p *Projector) Send(ctx context.Context, text string) {
	body := strings.TrimSpace(text)
	if body == "" {
		return
	}
	p.mu.Lock()
	if p.active == nil {
		p.mu.Unlock()
		return
	}
	friendID := p.active.friendID
	p.mu.Unlock()

	var msg Message
	if wire, err := p.backend.Send(ctx, friendID, body); err == nil {
		msg = FromWire(*wire)
		if msg.ReceiverID == 0 {
			msg.ReceiverID = friendID
		}
	} else {
		p.logger.Warn("send failed, echoing locally", zap.Error(err), zap.Int64("friend_id", friendID))
		msg = Message{
			LocalID:      "tmp-" + uuid.NewString(),
			SenderID:     p.self.ID,
			ReceiverID:   friendID,
			SenderName:   p.self.Name,
			SenderAvatar: p.self.Avatar,
			Text:         body,
			CreatedAt:    time.Now(),
		}
	}

	p.mu.Lock()
	changed := false
	if p.active != nil && p.active.friendID == friendID {
		changed = p.appendActiveLocked(msg)
	}
	p.mu.Unlock()
	if changed {
		p.persistMessage(msg)
		p.bus.Emit(bus.KindMessageAppended, msg)
	}

	if p.typist != nil {
		p.typist.Stop(friendID)
	} else {
		p.sender.SafeSend(ws.Typing(friendID, false))
	}
}

// ApplyConversations replaces the summary list with a fresh poll result.
func (p *Projector) ApplyConversations(convs []rest.Conversation) {
	summaries := make([]Summary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, Summary{
			FriendID:     c.Friend.ID,
			Name:         c.Friend.Name,
			Avatar:       c.Friend.Avatar,
			LastText:     c.LastText,
			LastTime:     c.LastTime,
			LastSenderID: c.LastSenderID,
			Unread:       c.Unread,
		})
	}
	sortSummaries(summaries)

	p.mu.Lock()
	// Keep the active conversation's unread at zero: it is being read.
	if p.active != nil {
		for i := range summaries {
			if summaries[i].FriendID == p.active.friendID {
				summaries[i].Unread = 0
			}
		}
		sortSummaries(summaries)
	}
	p.summaries = summaries
	p.mu.Unlock()

	p.persistSummaries()
}

// ApplyFriendsFallback replaces the summary list with a friends-only listing
// carrying no conversation metadata. Used when the conversations endpoint
// returns nothing or fails.
func (p *Projector) ApplyFriendsFallback(friends []rest.User) {
	summaries := make([]Summary, 0, len(friends))
	for _, f := range friends {
		summaries = append(summaries, Summary{FriendID: f.ID, Name: f.Name, Avatar: f.Avatar})
	}

	p.mu.Lock()
	p.summaries = summaries
	p.mu.Unlock()
}

// Summaries returns a copy of the conversation summary list.
func (p *Projector) Summaries() []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Summary(nil), p.summaries...)
}

// ActiveID returns the joined conversation's friend id, or 0.
func (p *Projector) ActiveID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return 0
	}
	return p.active.friendID
}

// Messages returns a copy of the active conversation's message list.
func (p *Projector) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	return append([]Message(nil), p.active.messages...)
}

func (p *Projector) persistMessage(msg Message) {
	if p.cache == nil {
		return
	}
	friendID := msg.SenderID
	if friendID == p.self.ID {
		friendID = msg.ReceiverID
	}
	if err := p.cache.UpsertMessage(storeMessage(friendID, msg)); err != nil {
		p.logger.Warn("cache message write failed", zap.Error(err))
	}
}

func (p *Projector) persistHistory(friendID int64, history []rest.Message) {
	if p.cache == nil {
		return
	}
	msgs := make([]*store.Message, 0, len(history))
	for _, wire := range history {
		msgs = append(msgs, storeMessage(friendID, FromWire(wire)))
	}
	if err := p.cache.ReplaceHistory(friendID, msgs); err != nil {
		p.logger.Warn("cache history write failed", zap.Error(err))
	}
}

func (p *Projector) persistSummaries() {
	if p.cache == nil {
		return
	}
	for _, s := range p.Summaries() {
		if err := p.cache.UpsertConversation(storeConversation(s)); err != nil {
			p.logger.Warn("cache summary write failed", zap.Error(err))
			return
		}
	}
}

func (p *Projector) persistSummaryFor(friendID int64) {
	if p.cache == nil {
		return
	}
	p.mu.Lock()
	var found *Summary
	for i := range p.summaries {
		if p.summaries[i].FriendID == friendID {
			s := p.summaries[i]
			found = &s
			break
		}
	}
	p.mu.Unlock()
	if found == nil {
		return
	}
	if err := p.cache.UpsertConversation(storeConversation(*found)); err != nil {
		p.logger.Warn("cache summary write failed", zap.Error(err))
	}
}

func storeMessage(friendID int64, msg Message) *store.Message {
	return &store.Message{
		FriendID:   friendID,
		Key:        msg.Key(),
		ServerID:   msg.ServerID,
		LocalID:    msg.LocalID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Body:       msg.Text,
		CreatedAt:  msg.CreatedAt.UnixMilli(),
	}
}

func storeConversation(s Summary) *store.Conversation {
	c := &store.Conversation{
		FriendID:     s.FriendID,
		Name:         s.Name,
		Avatar:       s.Avatar,
		LastText:     s.LastText,
		LastSenderID: s.LastSenderID,
		Unread:       s.Unread,
	}
	if s.LastTime != nil {
		c.LastTime = s.LastTime.UnixMilli()
	}
	return c
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
